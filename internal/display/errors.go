// Package display turns orchestrator states and API results into text.
package display

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"

	"github.com/git-pkgs/reposearch/client"
	"github.com/git-pkgs/reposearch/internal/core"
)

// Describe returns the message shown to the user for a failed query.
func Describe(err *core.Error) string {
	if err == nil {
		return ""
	}

	switch err.Kind {
	case core.KindUnauthorized:
		if errors.Is(err, client.ErrReauthenticate) {
			return "Your session has expired. Sign in again."
		}
		return "Access denied: " + err.Message + ". Check your token or credentials."
	case core.KindNetwork:
		return describeNetwork(err)
	case core.KindCancelled:
		return ""
	}
	return "Server error: " + err.Message
}

func describeNetwork(err *core.Error) string {
	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	var recordErr tls.RecordHeaderError
	var netErr net.Error

	switch {
	case errors.Is(err, client.ErrUpstreamDown):
		return "The server is unavailable. Try again later."
	case errors.As(err, &dnsErr):
		return "Could not find server " + dnsErr.Name + ". Check the server URL."
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused. Is the server running?"
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr),
		errors.As(err, &invalidCert), errors.As(err, &recordErr):
		return "Could not establish a secure connection to the server."
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETDOWN):
		return "No network connection."
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "The request timed out."
	}
	return "Network error: " + err.Message
}
