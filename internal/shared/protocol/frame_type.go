package protocol

import "fmt"

// FrameType discriminates the payload carried by a Frame. The tunnel's wire
// protocol is JSON-over-WebSocket; every message on the control channel is
// one of these types.
type FrameType string

const (
	// FrameRequest carries an HTTP request the broker wants forwarded to the origin.
	FrameRequest FrameType = "request"
	// FrameResponse carries the origin's response to a forwarded request.
	FrameResponse FrameType = "response"
	// FrameChunk carries a slice of a larger logical frame that exceeded the
	// per-message size budget.
	FrameChunk FrameType = "chunk"
	// FrameSSEStart opens a server-sent-events stream.
	FrameSSEStart FrameType = "sse-start"
	// FrameSSEChunk carries one chunk of SSE stream data.
	FrameSSEChunk FrameType = "sse-chunk"
	// FrameSSEEnd closes an SSE stream.
	FrameSSEEnd FrameType = "sse-end"
	// FramePing is a keepalive probe.
	FramePing FrameType = "ping"
	// FramePong answers a FramePing.
	FramePong FrameType = "pong"
)

// String returns the string representation of the frame type.
func (t FrameType) String() string {
	return string(t)
}

// IsValid reports whether t is one of the recognized frame types.
func (t FrameType) IsValid() bool {
	switch t {
	case FrameRequest, FrameResponse, FrameChunk, FrameSSEStart, FrameSSEChunk, FrameSSEEnd, FramePing, FramePong:
		return true
	default:
		return false
	}
}

// Chunkable reports whether frames of this type are themselves eligible to be
// split into FrameChunk frames (a FrameChunk frame is never itself chunked).
func (t FrameType) Chunkable() bool {
	switch t {
	case FrameRequest, FrameResponse, FrameSSEStart, FrameSSEChunk, FrameSSEEnd:
		return true
	default:
		return false
	}
}

func (t FrameType) validationError() error {
	if t.IsValid() {
		return nil
	}
	return fmt.Errorf("protocol: unknown frame type %q", string(t))
}
