package core

import (
	"github.com/git-pkgs/reposearch/client"
)

// Type aliases so server implementations only need to import core.
type (
	RateLimiter = client.RateLimiter
	Client      = client.Client
	Option      = client.Option
	URLBuilder  = client.URLBuilder
	BaseURLs    = client.BaseURLs
	HTTPError   = client.HTTPError
)

// Function aliases.
var (
	DefaultClient  = client.DefaultClient
	NewClient      = client.NewClient
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	BuildURLs      = client.BuildURLs
)
