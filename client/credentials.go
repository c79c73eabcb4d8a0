package client

import (
	"context"
	"encoding/base64"
	"sync"
	"time"
)

// Credentials supplies the authorization header attached to each request.
//
// Authorization returns ErrReauthenticate when the session is no longer usable;
// the request is then failed without being sent.
type Credentials interface {
	Authorization(ctx context.Context) (header, value string, err error)
}

// Invalidator is implemented by credential stores that want to know when the
// server rejected their credentials (HTTP 401).
type Invalidator interface {
	Invalidate()
}

// StaticCredentials always returns the same header.
type StaticCredentials struct {
	Header string
	Value  string
}

func (s *StaticCredentials) Authorization(context.Context) (string, string, error) {
	return s.Header, s.Value, nil
}

// BearerToken returns credentials sending "Authorization: Bearer <token>".
func BearerToken(token string) *StaticCredentials {
	return &StaticCredentials{Header: "Authorization", Value: "Bearer " + token}
}

// BasicAuth returns credentials sending HTTP basic authentication.
func BasicAuth(username, password string) *StaticCredentials {
	raw := username + ":" + password
	return &StaticCredentials{
		Header: "Authorization",
		Value:  "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)),
	}
}

// APIKey returns credentials sending key in a custom header.
func APIKey(header, key string) *StaticCredentials {
	return &StaticCredentials{Header: header, Value: key}
}

// Session is an in-memory bearer token with an optional expiry.
// Once expired or invalidated it returns ErrReauthenticate until Set is called again.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	invalid   bool
	now       func() time.Time
}

// NewSession creates a session holding token. A zero expiresAt never expires.
func NewSession(token string, expiresAt time.Time) *Session {
	return &Session{token: token, expiresAt: expiresAt, now: time.Now}
}

// Set replaces the token and clears any invalidation.
func (s *Session) Set(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
	s.invalid = false
}

// Invalidate marks the session as requiring reauthentication.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
}

// Valid reports whether the session can currently authorize requests.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked()
}

func (s *Session) validLocked() bool {
	if s.invalid || s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}

func (s *Session) Authorization(context.Context) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return "", "", ErrReauthenticate
	}
	return "Authorization", "Bearer " + s.token, nil
}
