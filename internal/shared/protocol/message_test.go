package protocol

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFrameType_Values(t *testing.T) {
	tests := []struct {
		name string
		ft   FrameType
		want string
	}{
		{name: "request", ft: FrameRequest, want: "request"},
		{name: "response", ft: FrameResponse, want: "response"},
		{name: "chunk", ft: FrameChunk, want: "chunk"},
		{name: "sse-start", ft: FrameSSEStart, want: "sse-start"},
		{name: "sse-chunk", ft: FrameSSEChunk, want: "sse-chunk"},
		{name: "sse-end", ft: FrameSSEEnd, want: "sse-end"},
		{name: "ping", ft: FramePing, want: "ping"},
		{name: "pong", ft: FramePong, want: "pong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.ft); got != tt.want {
				t.Errorf("FrameType value = %v, want %v", got, tt.want)
			}
			if !tt.ft.IsValid() {
				t.Errorf("IsValid() = false for %v, want true", tt.ft)
			}
		})
	}
}

func TestFrameType_IsValid_Unknown(t *testing.T) {
	if FrameType("bogus").IsValid() {
		t.Error("IsValid() = true for unknown frame type")
	}
}

func TestFrameType_Chunkable(t *testing.T) {
	if FrameChunk.Chunkable() {
		t.Error("a chunk frame must never itself be chunkable")
	}
	if FramePing.Chunkable() {
		t.Error("ping frames are always tiny and are never chunked")
	}
	if !FrameResponse.Chunkable() {
		t.Error("response frames must be chunkable")
	}
}

func TestNewRequestFrame_RoundTrip(t *testing.T) {
	body := "hello"
	req := &RequestPayload{
		ID:     "r1",
		Method: "GET",
		Path:   "/ping",
		Headers: map[string]string{
			"accept": "text/plain",
		},
		Body: &body,
	}

	frame, err := NewRequestFrame(req)
	if err != nil {
		t.Fatalf("NewRequestFrame() error = %v", err)
	}
	if frame.Type != FrameRequest {
		t.Errorf("Type = %v, want %v", frame.Type, FrameRequest)
	}

	raw, err := frame.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decodedFrame, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	decoded, err := DecodeRequest(decodedFrame)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}

	if decoded.ID != req.ID || decoded.Method != req.Method || decoded.Path != req.Path {
		t.Errorf("decoded = %+v, want %+v", decoded, req)
	}
	if !reflect.DeepEqual(decoded.Headers, req.Headers) {
		t.Errorf("Headers = %v, want %v", decoded.Headers, req.Headers)
	}
	if decoded.Body == nil || *decoded.Body != body {
		t.Errorf("Body = %v, want %v", decoded.Body, body)
	}
}

func TestNewResponseFrame_JSON(t *testing.T) {
	resp := &ResponsePayload{
		ID:     "r1",
		Status: 200,
		Headers: map[string]string{
			"content-type": "text/plain",
		},
		Body:     "pong",
		IsBase64: false,
	}

	frame, err := NewResponseFrame(resp)
	if err != nil {
		t.Fatalf("NewResponseFrame() error = %v", err)
	}

	raw, err := frame.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if asMap["type"] != "response" {
		t.Errorf("type = %v, want response", asMap["type"])
	}
	if asMap["data"] == nil {
		t.Error("data field missing")
	}
}

func TestNewChunkFrame_RoundTrip(t *testing.T) {
	chunk := &ChunkPayload{
		MessageID:    "123-abcdefghi",
		ChunkIndex:   1,
		TotalChunks:  3,
		Chunk:        "some data",
		OriginalType: FrameResponse,
	}

	frame, err := NewChunkFrame(chunk)
	if err != nil {
		t.Fatalf("NewChunkFrame() error = %v", err)
	}

	raw, err := frame.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decodedFrame, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	decoded, err := DecodeChunk(decodedFrame)
	if err != nil {
		t.Fatalf("DecodeChunk() error = %v", err)
	}
	if !reflect.DeepEqual(decoded, chunk) {
		t.Errorf("decoded = %+v, want %+v", decoded, chunk)
	}
}

func TestPingPongFrames(t *testing.T) {
	ts := int64(1700000000000)

	ping, err := NewPingFrame(ts)
	if err != nil {
		t.Fatalf("NewPingFrame() error = %v", err)
	}
	if ping.Type != FramePing {
		t.Errorf("Type = %v, want %v", ping.Type, FramePing)
	}

	pong, err := NewPongFrame(ts)
	if err != nil {
		t.Fatalf("NewPongFrame() error = %v", err)
	}
	if pong.Type != FramePong {
		t.Errorf("Type = %v, want %v", pong.Type, FramePong)
	}

	decoded, err := DecodePing(ping)
	if err != nil {
		t.Fatalf("DecodePing() error = %v", err)
	}
	if decoded.Timestamp != ts {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, ts)
	}
}

func TestUnmarshal_RejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"bogus","data":{}}`))
	if err == nil {
		t.Error("Unmarshal() error = nil, want error for unknown frame type")
	}
}

// Benchmark tests
func BenchmarkFrameMarshal(b *testing.B) {
	resp := &ResponsePayload{ID: "r1", Status: 200, Headers: map[string]string{"content-type": "text/plain"}, Body: "pong"}
	frame, _ := NewResponseFrame(resp)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		frame.Marshal()
	}
}

func BenchmarkFrameUnmarshal(b *testing.B) {
	resp := &ResponsePayload{ID: "r1", Status: 200, Headers: map[string]string{"content-type": "text/plain"}, Body: "pong"}
	frame, _ := NewResponseFrame(resp)
	raw, _ := frame.Marshal()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Unmarshal(raw)
	}
}
