package wire

import (
	"strings"
	"testing"
	"unicode/utf8"

	"localrun/internal/shared/protocol"
)

func smallFrame(t *testing.T) *protocol.Frame {
	f, err := protocol.NewRequestFrame(&protocol.RequestPayload{
		ID:     "req-1",
		Method: "GET",
		Path:   "/",
	})
	if err != nil {
		t.Fatalf("NewRequestFrame() error = %v", err)
	}
	return f
}

func TestChunk_SmallFrameNotChunked(t *testing.T) {
	frame := smallFrame(t)

	out, err := Chunk(frame, 1000)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(out) != 1 || out[0] != frame {
		t.Errorf("Chunk() of a small frame should be returned unmodified, got %d frames", len(out))
	}
}

func TestChunk_LargeFrameSplitsIntoChunks(t *testing.T) {
	body := strings.Repeat("x", 2*MaxMessageBytes)
	f, err := protocol.NewResponseFrame(&protocol.ResponsePayload{ID: "req-1", Status: 200, Body: body})
	if err != nil {
		t.Fatalf("build large frame: %v", err)
	}

	out, err := Chunk(f, 1000)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(out) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(out))
	}

	var messageID string
	for i, cf := range out {
		if cf.Type != protocol.FrameChunk {
			t.Fatalf("chunk %d has type %v, want FrameChunk", i, cf.Type)
		}
		p, err := protocol.DecodeChunk(cf)
		if err != nil {
			t.Fatalf("DecodeChunk(%d): %v", i, err)
		}
		if i == 0 {
			messageID = p.MessageID
		}
		if p.MessageID != messageID {
			t.Errorf("chunk %d messageId = %q, want %q", i, p.MessageID, messageID)
		}
		if p.ChunkIndex != i {
			t.Errorf("chunk %d has ChunkIndex %d", i, p.ChunkIndex)
		}
		if p.TotalChunks != len(out) {
			t.Errorf("chunk %d has TotalChunks %d, want %d", i, p.TotalChunks, len(out))
		}
		if p.OriginalType != protocol.FrameResponse {
			t.Errorf("chunk %d has OriginalType %v, want FrameResponse", i, p.OriginalType)
		}
		if len(p.Chunk) > ChunkPayloadBudget {
			t.Errorf("chunk %d is %d bytes, exceeds budget %d", i, len(p.Chunk), ChunkPayloadBudget)
		}
	}
}

func TestChunk_ReassemblesToOriginal(t *testing.T) {
	body := strings.Repeat("héllo wörld 日本語 ", 50000)
	f, err := protocol.NewResponseFrame(&protocol.ResponsePayload{ID: "req-1", Status: 200, Body: body})
	if err != nil {
		t.Fatalf("build large frame: %v", err)
	}
	raw, _ := f.Marshal()

	out, err := Chunk(f, 2000)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	var sb strings.Builder
	for _, cf := range out {
		p, err := protocol.DecodeChunk(cf)
		if err != nil {
			t.Fatalf("DecodeChunk: %v", err)
		}
		sb.WriteString(p.Chunk)
	}

	if sb.String() != string(raw) {
		t.Error("reassembled chunks do not byte-for-byte match the original serialization")
	}
}

func TestChunk_SingleCodePointExceedsBudget(t *testing.T) {
	_, err := splitUTF8("x", 0)
	if err == nil {
		t.Fatal("expected an error when a single code point exceeds the budget")
	}
}

func TestSplitUTF8_NeverBisectsCodePoint(t *testing.T) {
	s := strings.Repeat("日本語abc", 500)
	pieces, err := splitUTF8(s, 37)
	if err != nil {
		t.Fatalf("splitUTF8() error = %v", err)
	}

	var sb strings.Builder
	for _, p := range pieces {
		if !utf8.ValidString(p) {
			t.Errorf("piece %q is not valid UTF-8 on its own", p)
		}
		sb.WriteString(p)
	}
	if sb.String() != s {
		t.Error("concatenated pieces do not reproduce the original string")
	}
}
