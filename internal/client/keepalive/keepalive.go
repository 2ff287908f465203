// Package keepalive implements the tunnel's ping/pong liveness loop (C6).
package keepalive

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"localrun/internal/shared/protocol"
)

const (
	// Interval is how often a ping frame is sent while connected.
	Interval = 30 * time.Second

	// unansweredLimit is how long the loop tolerates no pong before it
	// reports a liveness failure: an unanswered ping for 2x the interval.
	unansweredLimit = 2 * Interval
)

// Sender is the subset of the session's WebSocket writer the keepalive
// loop needs; satisfied by *Session, whose SendFrame wraps writeFrame.
type Sender interface {
	SendFrame(f *protocol.Frame) error
}

// Keepalive runs a single control-loop goroutine (grounded on the teacher's
// FrameWriter.writeLoop/Connection.StartWritePump ticker shape) that sends a
// ping every Interval and tracks whether pongs are coming back. It does not
// itself close the connection; a liveness failure is reported through the
// onUnanswered callback so the Session remains the sole owner of connection
// teardown.
type Keepalive struct {
	sender Sender
	log    *zap.Logger

	lastPongAt   atomic.Int64 // unix millis
	onUnanswered func()

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New creates a Keepalive. onUnanswered is invoked from the loop's own
// goroutine when no pong has been seen for unansweredLimit; it should
// trigger the Session's force-close path. log may be nil.
func New(sender Sender, onUnanswered func(), log *zap.Logger) *Keepalive {
	if log == nil {
		log = zap.NewNop()
	}
	k := &Keepalive{
		sender:       sender,
		onUnanswered: onUnanswered,
		log:          log,
		done:         make(chan struct{}),
	}
	k.lastPongAt.Store(time.Now().UnixMilli())
	return k
}

// Start begins the ping ticker loop. It returns immediately; the loop runs
// until Stop is called. Start may be called again after Stop (the Session
// starts one loop per WebSocket connection), each time with a fresh
// liveness window.
func (k *Keepalive) Start() {
	k.mu.Lock()
	k.stopped = false
	k.done = make(chan struct{})
	done := k.done
	k.mu.Unlock()

	k.lastPongAt.Store(time.Now().UnixMilli())
	go k.loop(done)
}

func (k *Keepalive) loop(done <-chan struct{}) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			k.sendPing()
			if k.unanswered() {
				k.log.Warn("keepalive: no pong received within liveness window, forcing close")
				if k.onUnanswered != nil {
					k.onUnanswered()
				}
				return
			}
		}
	}
}

func (k *Keepalive) sendPing() {
	now := time.Now().UnixMilli()
	frame, err := protocol.NewPingFrame(now)
	if err != nil {
		k.log.Error("keepalive: failed to build ping frame", zap.Error(err))
		return
	}
	if err := k.sender.SendFrame(frame); err != nil {
		// Ping failures do not themselves trigger reconnection; the
		// underlying WebSocket close event is authoritative (spec §4.6).
		k.log.Debug("keepalive: ping send failed", zap.Error(err))
		return
	}
	k.log.Debug("keepalive: sent ping", zap.Int64("timestamp", now))
}

func (k *Keepalive) unanswered() bool {
	last := k.lastPongAt.Load()
	return time.Since(time.UnixMilli(last)) > unansweredLimit
}

// HandlePing replies to an inbound ping with a pong carrying the same
// timestamp.
func (k *Keepalive) HandlePing(p *protocol.PingPongPayload) error {
	frame, err := protocol.NewPongFrame(p.Timestamp)
	if err != nil {
		return err
	}
	return k.sender.SendFrame(frame)
}

// HandlePong records that the connection is alive. No other action is
// taken; this is a diagnostic log only (spec §4.6).
func (k *Keepalive) HandlePong(p *protocol.PingPongPayload) {
	k.lastPongAt.Store(time.Now().UnixMilli())
	k.log.Debug("keepalive: received pong", zap.Int64("timestamp", p.Timestamp))
}

// Stop terminates the ping loop. Safe to call more than once.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.stopped = true
	close(k.done)
}
