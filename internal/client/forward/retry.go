package forward

import "time"

const (
	transportRetryBaseMillis = 1000
	transportRetryCapMillis  = 5000

	timeoutRetryBaseMillis = 2000
	timeoutRetryCapMillis  = 8000
)

// retryDelay returns the delay before retry attempt n (1-indexed), per
// spec.md §4.3's retry policy: transport errors back off by doubling,
// timeouts back off by 1.5x, each with their own cap.
func retryDelay(n int, errType errorType) time.Duration {
	var ms float64
	if errType == typeTimeout {
		ms = minF(timeoutRetryBaseMillis*pow(1.5, n-1), timeoutRetryCapMillis)
	} else {
		ms = minF(transportRetryBaseMillis*pow(2, n-1), transportRetryCapMillis)
	}
	return time.Duration(ms) * time.Millisecond
}

func pow(base float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= base
	}
	return result
}
