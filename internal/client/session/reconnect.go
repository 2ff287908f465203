package session

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

const (
	maxReconnectAttempts = 10
	reconnectBackoffMin  = 1000
	reconnectBackoffMax  = 2000
	reconnectMultiplier  = 1.5
	reconnectDelayCapMs  = 30000
)

// reconnectState tracks the controller's reconnect attempt counter. It is
// owned exclusively by the control loop (spec.md §5).
type reconnectState struct {
	attempts int
}

func (r *reconnectState) reset() {
	r.attempts = 0
}

// next returns the delay before the next reconnect attempt and increments
// the attempt counter. ok is false once maxReconnectAttempts is exceeded.
func (r *reconnectState) next() (delay time.Duration, attempt int, ok bool) {
	if r.attempts >= maxReconnectAttempts {
		return 0, r.attempts, false
	}
	r.attempts++
	return reconnectDelay(r.attempts), r.attempts, true
}

// reconnectDelay implements spec.md §3's ReconnectState formula for attempt
// n (1-indexed): min(random(1000..2000) * 1.5^(n-1), 30000) ms.
func reconnectDelay(n int) time.Duration {
	base := float64(randomBetween(reconnectBackoffMin, reconnectBackoffMax))
	ms := math.Min(base*math.Pow(reconnectMultiplier, float64(n-1)), float64(reconnectDelayCapMs))
	return time.Duration(ms) * time.Millisecond
}

func randomBetween(min, max int) int {
	span := max - min
	if span <= 0 {
		return min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return min
	}
	return min + int(n.Int64())
}
