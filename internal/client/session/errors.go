package session

import "errors"

var (
	// ErrRegistrationFailed is returned (wrapped) when the broker's
	// registration call fails: a network error, or a non-200 response, with
	// the broker's message appended when it sends one.
	ErrRegistrationFailed = errors.New("session: broker registration failed")

	// ErrSubdomainTaken is returned when the broker rejects a requested
	// subdomain as already in use.
	ErrSubdomainTaken = errors.New("session: subdomain is already taken")

	// ErrInvalidSubdomain is returned when the configured subdomain fails
	// client-side validation before any broker call is made.
	ErrInvalidSubdomain = errors.New("session: subdomain must be exactly 10 alphanumeric characters")

	// ErrMaxReconnectAttemptsExceeded is emitted as a fatal error when the
	// reconnect loop exhausts maxReconnectAttempts.
	ErrMaxReconnectAttemptsExceeded = errors.New("session: exceeded maximum reconnect attempts")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("session: closed")
)
