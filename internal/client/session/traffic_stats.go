package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// TrafficStats tracks byte/request counters for one Session, for the CLI's
// status display. It is not on the hot path of any correctness invariant.
type TrafficStats struct {
	totalBytesIn  int64
	totalBytesOut int64
	totalRequests int64

	speedMu      sync.Mutex
	lastBytesIn  int64
	lastBytesOut int64
	lastTime     time.Time
	speedIn      int64
	speedOut     int64

	startTime time.Time
}

// NewTrafficStats creates a zeroed stats tracker starting now.
func NewTrafficStats() *TrafficStats {
	now := time.Now()
	return &TrafficStats{startTime: now, lastTime: now}
}

// AddBytesIn records bytes read from the broker WebSocket.
func (s *TrafficStats) AddBytesIn(n int64) { atomic.AddInt64(&s.totalBytesIn, n) }

// AddBytesOut records bytes written to the broker WebSocket.
func (s *TrafficStats) AddBytesOut(n int64) { atomic.AddInt64(&s.totalBytesOut, n) }

// AddRequest increments the forwarded-request counter.
func (s *TrafficStats) AddRequest() { atomic.AddInt64(&s.totalRequests, 1) }

// UpdateSpeed recomputes the bytes/sec rates from the delta since the last
// call. The CLI calls it every 5 seconds.
func (s *TrafficStats) UpdateSpeed() {
	s.speedMu.Lock()
	defer s.speedMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.1 {
		return
	}

	in := atomic.LoadInt64(&s.totalBytesIn)
	out := atomic.LoadInt64(&s.totalBytesOut)

	s.speedIn = int64(float64(in-s.lastBytesIn) / elapsed)
	s.speedOut = int64(float64(out-s.lastBytesOut) / elapsed)
	s.lastBytesIn = in
	s.lastBytesOut = out
	s.lastTime = now
}

// StatsSnapshot is a point-in-time copy of TrafficStats.
type StatsSnapshot struct {
	TotalBytesIn  int64
	TotalBytesOut int64
	TotalRequests int64
	SpeedIn       int64
	SpeedOut      int64
	Uptime        time.Duration
}

// Snapshot returns the current counters.
func (s *TrafficStats) Snapshot() StatsSnapshot {
	s.speedMu.Lock()
	speedIn, speedOut := s.speedIn, s.speedOut
	s.speedMu.Unlock()

	return StatsSnapshot{
		TotalBytesIn:  atomic.LoadInt64(&s.totalBytesIn),
		TotalBytesOut: atomic.LoadInt64(&s.totalBytesOut),
		TotalRequests: atomic.LoadInt64(&s.totalRequests),
		SpeedIn:       speedIn,
		SpeedOut:      speedOut,
		Uptime:        time.Since(s.startTime),
	}
}
