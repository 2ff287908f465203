package forward

import (
	"strings"
	"time"
)

const (
	apiGETCap    = 60000
	uploadCap    = 180000
	uploadFactor = 2
	retryCap     = 60000
	sizeCap      = 180000

	// largeBodyThreshold is the body size, in bytes, above which the size
	// multiplier kicks in.
	largeBodyThreshold = 50 * 1024
)

// adaptiveTimeoutParams describes one request's shape for the purposes of
// computing its forwarder timeout.
type adaptiveTimeoutParams struct {
	baseMillis int
	isSSE      bool
	method     string
	path       string
	retryCount int
	bodyBytes  int
}

// sseTimeoutMillis is fixed regardless of the configured base timeout.
const sseTimeoutMillis = 3600000

// adaptiveTimeout computes the per-attempt timeout per spec.md §4.3 step 4.
func adaptiveTimeout(p adaptiveTimeoutParams) time.Duration {
	base := p.baseMillis
	var ms float64

	switch {
	case p.isSSE:
		ms = sseTimeoutMillis
	case strings.Contains(p.path, "/api/") && p.method == "GET":
		ms = minF(float64(base), apiGETCap)
	case p.method == "POST" || p.method == "PUT" || strings.Contains(p.path, "/upload"):
		ms = minF(float64(base)*uploadFactor, uploadCap)
	case p.retryCount > 0:
		ms = minF(float64(base)*pow(1.5, p.retryCount), retryCap)
	default:
		ms = float64(base)
	}

	if p.bodyBytes > largeBodyThreshold {
		multiplier := minF(1+float64(p.bodyBytes)/500000, 2)
		ms = minF(ms*multiplier, sizeCap)
	}

	return time.Duration(ms) * time.Millisecond
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
