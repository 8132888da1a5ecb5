package authapi

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Failure kinds for auth API calls. Callers classify with errors.Is; the
// concrete messages returned by the backend are carried in the wrapping
// error text.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("email already registered")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNetwork            = errors.New("network error")
	ErrTimeout            = errors.New("request timed out")
	ErrServer             = errors.New("server error")
)

// IsAuthError reports whether the backend rejected the caller's identity.
// These failures invalidate the session; everything else is transient from
// the session manager's point of view.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidCredentials)
}

// IsTransient reports whether the failure is a connectivity or backend
// availability problem, i.e. the stored credentials may still be valid.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer)
}

// classifyTransport maps a transport-level failure (no HTTP response) to
// ErrTimeout or ErrNetwork.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrNetwork
}
