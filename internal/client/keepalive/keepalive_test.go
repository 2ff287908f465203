package keepalive

import (
	"errors"
	"sync"
	"testing"
	"time"

	"localrun/internal/shared/protocol"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []*protocol.Frame
	failN int
}

func (f *fakeSender) SendFrame(fr *protocol.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("send failed")
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestKeepalive_HandlePingRepliesWithPong(t *testing.T) {
	sender := &fakeSender{}
	k := New(sender, nil, nil)

	if err := k.HandlePing(&protocol.PingPongPayload{Timestamp: 12345}); err != nil {
		t.Fatalf("HandlePing() error = %v", err)
	}

	if sender.count() != 1 {
		t.Fatalf("sent %d frames, want 1", sender.count())
	}
	p, err := protocol.DecodePing(sender.sent[0])
	if err != nil {
		t.Fatalf("DecodePing: %v", err)
	}
	if sender.sent[0].Type != protocol.FramePong {
		t.Errorf("frame type = %v, want FramePong", sender.sent[0].Type)
	}
	if p.Timestamp != 12345 {
		t.Errorf("pong timestamp = %d, want 12345", p.Timestamp)
	}
}

func TestKeepalive_HandlePongUpdatesLiveness(t *testing.T) {
	sender := &fakeSender{}
	k := New(sender, nil, nil)

	k.lastPongAt.Store(time.Now().Add(-time.Hour).UnixMilli())
	if !k.unanswered() {
		t.Fatal("expected unanswered() to be true before HandlePong")
	}

	k.HandlePong(&protocol.PingPongPayload{Timestamp: time.Now().UnixMilli()})
	if k.unanswered() {
		t.Error("expected unanswered() to be false after HandlePong")
	}
}

func TestKeepalive_PingSendFailureDoesNotPanicOrForceClose(t *testing.T) {
	sender := &fakeSender{failN: 1}
	var unansweredCalled bool
	k := New(sender, func() { unansweredCalled = true }, nil)

	k.sendPing()

	if unansweredCalled {
		t.Error("a single failed ping send must not trigger onUnanswered")
	}
}

func TestKeepalive_StopIsIdempotent(t *testing.T) {
	sender := &fakeSender{}
	k := New(sender, nil, nil)
	k.Start()

	k.Stop()
	k.Stop() // must not panic
}
