package forward

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Sentinel errors for a request that cannot be attempted against the origin.
// Forward does not return them: it answers such a request with a
// synthesized error response frame instead.
var (
	// ErrCircuitOpen means the breaker is open; the origin was not dialed.
	ErrCircuitOpen = errors.New("forward: circuit breaker is open")

	// ErrOriginUnhealthy means a health gate failed (on the first attempt,
	// or on the re-probe from the fourth attempt on).
	ErrOriginUnhealthy = errors.New("forward: origin health probe failed")
)

// errorType classifies an origin transport error into the taxonomy spec.md
// §7 maps to HTTP status codes and an X-Error-Type header.
type errorType string

const (
	typeTimeout            errorType = "timeout"
	typeConnectionRefused  errorType = "connection-refused"
	typeHostNotFound       errorType = "host-not-found"
	typeConnectionReset    errorType = "connection-reset"
	typeNetworkUnreachable errorType = "network-unreachable"
	typeUnknown            errorType = "unknown-error"
)

// statusFor maps an errorType to the HTTP status synthesized in the
// error-response frame.
func statusFor(t errorType) int {
	switch t {
	case typeTimeout:
		return 504
	case typeConnectionRefused, typeHostNotFound, typeConnectionReset, typeNetworkUnreachable:
		return 502
	default:
		return 500
	}
}

// classify determines the errorType for err. It prefers the structured
// net.Error/*net.OpError/context.DeadlineExceeded classification (the
// redesign over the source's substring matching); it falls back to
// substring matching on err.Error() only for errors that don't satisfy any
// of those interfaces, e.g. from a non-standard RoundTripper.
func classify(err error) errorType {
	if err == nil {
		return typeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return typeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return typeTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return typeTimeout
		}
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return typeConnectionRefused
		case errors.Is(opErr.Err, syscall.ECONNRESET):
			return typeConnectionReset
		case errors.Is(opErr.Err, syscall.ENETUNREACH), errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return typeNetworkUnreachable
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return typeHostNotFound
	}

	return classifyBySubstring(err.Error())
}

// classifyBySubstring is the fallback path for errors that don't satisfy
// any of the structured net error interfaces above.
func classifyBySubstring(msg string) errorType {
	switch {
	case strings.Contains(msg, "ECONNREFUSED"):
		return typeConnectionRefused
	case strings.Contains(msg, "ENOTFOUND"):
		return typeHostNotFound
	case strings.Contains(msg, "ECONNRESET"):
		return typeConnectionReset
	case strings.Contains(msg, "ENETUNREACH"), strings.Contains(msg, "EHOSTUNREACH"):
		return typeNetworkUnreachable
	case strings.Contains(msg, "timeout"):
		return typeTimeout
	default:
		return typeUnknown
	}
}

// isRetryable reports whether an origin dial error should trigger a retry
// per spec.md §4.3's retry policy (transport errors and timeouts only).
// ErrOriginUnhealthy is retryable too: a failed health gate on an early
// attempt must not short-circuit the loop before it reaches the §4.3 step 3
// re-probe at attempt >= 3.
func isRetryable(err error) bool {
	if errors.Is(err, ErrOriginUnhealthy) {
		return true
	}
	switch classify(err) {
	case typeTimeout, typeConnectionRefused, typeHostNotFound, typeConnectionReset, typeNetworkUnreachable:
		return true
	default:
		return false
	}
}
