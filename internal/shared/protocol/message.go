package protocol

import "encoding/json"

// Frame is the envelope for every message exchanged on the tunnel's
// WebSocket control channel: a type tag plus a type-specific payload.
type Frame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RequestPayload is sent by the broker when an HTTP request arrives for the
// tunnel's public URL and must be forwarded to the local origin.
type RequestPayload struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body,omitempty"`
}

// ResponsePayload carries the origin's response back to the broker.
type ResponsePayload struct {
	ID       string            `json:"id"`
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body"`
	IsBase64 bool              `json:"isBase64"`
}

// ChunkPayload carries one slice of a larger frame that was split because its
// serialized size exceeded the per-message chunk budget.
type ChunkPayload struct {
	MessageID    string    `json:"messageId"`
	ChunkIndex   int       `json:"chunkIndex"`
	TotalChunks  int       `json:"totalChunks"`
	Chunk        string    `json:"chunk"`
	OriginalType FrameType `json:"originalType"`
}

// SSEStartPayload announces the beginning of a server-sent-events stream.
type SSEStartPayload struct {
	RequestID string            `json:"requestId"`
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
}

// SSEChunkPayload carries one chunk of raw SSE stream text.
type SSEChunkPayload struct {
	RequestID string `json:"requestId"`
	Chunk     string `json:"chunk"`
}

// SSEEndPayload announces the end of an SSE stream.
type SSEEndPayload struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// PingPongPayload carries a keepalive timestamp.
type PingPongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload describes a synthesized error response (circuit-breaker
// rejection or forwarder failure) returned in place of an origin response.
type ErrorPayload struct {
	Error             string `json:"error"`
	ErrorType         string `json:"errorType"`
	RequestID         string `json:"requestId"`
	LocalServer       string `json:"localServer,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Timestamp         int64  `json:"timestamp"`
	Details           string `json:"details,omitempty"`
}

func newFrame(t FrameType, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: t, Data: data}, nil
}

// NewRequestFrame builds a FrameRequest frame.
func NewRequestFrame(p *RequestPayload) (*Frame, error) { return newFrame(FrameRequest, p) }

// NewResponseFrame builds a FrameResponse frame.
func NewResponseFrame(p *ResponsePayload) (*Frame, error) { return newFrame(FrameResponse, p) }

// NewChunkFrame builds a FrameChunk frame.
func NewChunkFrame(p *ChunkPayload) (*Frame, error) { return newFrame(FrameChunk, p) }

// NewSSEStartFrame builds a FrameSSEStart frame.
func NewSSEStartFrame(p *SSEStartPayload) (*Frame, error) { return newFrame(FrameSSEStart, p) }

// NewSSEChunkFrame builds a FrameSSEChunk frame.
func NewSSEChunkFrame(p *SSEChunkPayload) (*Frame, error) { return newFrame(FrameSSEChunk, p) }

// NewSSEEndFrame builds a FrameSSEEnd frame.
func NewSSEEndFrame(p *SSEEndPayload) (*Frame, error) { return newFrame(FrameSSEEnd, p) }

// NewPingFrame builds a FramePing frame carrying the given timestamp.
func NewPingFrame(timestamp int64) (*Frame, error) {
	return newFrame(FramePing, &PingPongPayload{Timestamp: timestamp})
}

// NewPongFrame builds a FramePong frame carrying the given timestamp.
func NewPongFrame(timestamp int64) (*Frame, error) {
	return newFrame(FramePong, &PingPongPayload{Timestamp: timestamp})
}

// DecodeRequest unmarshals a FrameRequest's payload.
func DecodeRequest(f *Frame) (*RequestPayload, error) {
	var p RequestPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeChunk unmarshals a FrameChunk's payload.
func DecodeChunk(f *Frame) (*ChunkPayload, error) {
	var p ChunkPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodePing unmarshals a FramePing or FramePong payload.
func DecodePing(f *Frame) (*PingPongPayload, error) {
	var p PingPongPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal serializes the frame to its wire representation.
func (f *Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal parses raw WebSocket message bytes into a Frame.
func Unmarshal(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := f.Type.validationError(); err != nil {
		return nil, err
	}
	return &f, nil
}
