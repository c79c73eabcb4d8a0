package client

import "fmt"

// URLBuilder constructs user-facing links for an artifact on a server.
type URLBuilder interface {
	Browse(repo, name, version string) string
	Download(repo, name, version string) string
	PURL(format, name, version string) string
}

// BaseURLs provides a default URLBuilder implementation.
type BaseURLs struct {
	BrowseFn   func(repo, name, version string) string
	DownloadFn func(repo, name, version string) string
	PURLFn     func(format, name, version string) string
}

func (b *BaseURLs) Browse(repo, name, version string) string {
	if b.BrowseFn != nil {
		return b.BrowseFn(repo, name, version)
	}
	return ""
}

func (b *BaseURLs) Download(repo, name, version string) string {
	if b.DownloadFn != nil {
		return b.DownloadFn(repo, name, version)
	}
	return ""
}

func (b *BaseURLs) PURL(format, name, version string) string {
	if b.PURLFn != nil {
		return b.PURLFn(format, name, version)
	}
	if version == "" {
		return fmt.Sprintf("pkg:%s/%s", "generic", name)
	}
	return fmt.Sprintf("pkg:%s/%s@%s", "generic", name, version)
}

// BuildURLs returns a map of all non-empty URLs for an artifact.
// Keys are "browse", "download", and "purl".
func BuildURLs(urls URLBuilder, repo, format, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Browse(repo, name, version); v != "" {
		result["browse"] = v
	}
	if v := urls.Download(repo, name, version); v != "" {
		result["download"] = v
	}
	if v := urls.PURL(format, name, version); v != "" {
		result["purl"] = v
	}
	return result
}
