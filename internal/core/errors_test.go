package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/git-pkgs/reposearch/client"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantMsg  string
	}{
		{"cancelled", context.Canceled, KindCancelled, "request cancelled"},
		{"wrapped cancel", fmt.Errorf("searching: %w", context.Canceled), KindCancelled, "request cancelled"},
		{"reauthenticate", client.ErrReauthenticate, KindUnauthorized, "session expired, sign in again"},
		{"401 with message", &client.HTTPError{StatusCode: 401, Message: "token expired"}, KindUnauthorized, "token expired"},
		{"403 bare", &client.HTTPError{StatusCode: 403}, KindUnauthorized, "credentials rejected by server"},
		{"500 with message", &client.HTTPError{StatusCode: 500, Message: "index rebuilding"}, KindServer, "index rebuilding"},
		{"502 bare", &client.HTTPError{StatusCode: 502}, KindServer, "server returned HTTP 502"},
		{"not found", &NotFoundError{Repository: "npm-local", Name: "lodash"}, KindServer, "npm-local: package lodash not found"},
		{"rate limited", &client.RateLimitError{RetryAfter: 3}, KindServer, "rate limited, retry after 3 seconds"},
		{"decode", &client.DecodeError{URL: "u", Err: errors.New("bad")}, KindServer, "invalid response from server"},
		{"breaker open", fmt.Errorf("circuit breaker open for h: %w", client.ErrUpstreamDown), KindNetwork, "server unavailable, try again later"},
		{"deadline", context.DeadlineExceeded, KindNetwork, "request timed out"},
		{"unknown", errors.New("boom"), KindServer, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatal("Classify returned nil")
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error does not wrap %v", tt.err)
			}
		})
	}
}

func TestClassify_TransportErrors(t *testing.T) {
	dnsErr := &url.Error{Op: "Get", URL: "https://nope.invalid", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	for _, err := range []error{dnsErr, opErr} {
		if got := Classify(err); got.Kind != KindNetwork {
			t.Errorf("Classify(%v).Kind = %q, want %q", err, got.Kind, KindNetwork)
		}
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := &Error{Kind: KindUnauthorized, Message: "nope"}
	if got := Classify(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Errorf("Classify should return the wrapped *Error, got %#v", got)
	}
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		err  *NotFoundError
		want string
	}{
		{&NotFoundError{Repository: "npm-local"}, "repository npm-local not found"},
		{&NotFoundError{Repository: "npm-local", Name: "lodash"}, "npm-local: package lodash not found"},
		{&NotFoundError{Repository: "npm-local", Name: "lodash", Version: "0.0.1"}, "npm-local: package lodash version 0.0.1 not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, ErrNotFound) {
			t.Errorf("%v should unwrap to ErrNotFound", tt.err)
		}
	}
}
