package wire

import (
	"strconv"
	"testing"
	"time"

	"localrun/internal/shared/protocol"
)

func chunksFor(t *testing.T, body string, budget int) []*protocol.ChunkPayload {
	f, err := protocol.NewResponseFrame(&protocol.ResponsePayload{ID: "r1", Status: 200, Body: body})
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	raw, _ := f.Marshal()
	pieces, err := splitUTF8(string(raw), budget)
	if err != nil {
		t.Fatalf("splitUTF8: %v", err)
	}

	out := make([]*protocol.ChunkPayload, len(pieces))
	for i, p := range pieces {
		out[i] = &protocol.ChunkPayload{
			MessageID:    "msg-1",
			ChunkIndex:   i,
			TotalChunks:  len(pieces),
			Chunk:        p,
			OriginalType: protocol.FrameResponse,
		}
	}
	return out
}

func TestAssemblyTable_ReassemblesInOrder(t *testing.T) {
	table := NewAssemblyTable(nil)
	chunks := chunksFor(t, "0123456789abcdefghij", 10)
	if len(chunks) < 2 {
		t.Fatalf("need multiple chunks for this test, got %d", len(chunks))
	}

	now := time.Now()
	var result *protocol.Frame
	for i, c := range chunks {
		frame, done := table.Ingest(now, c)
		if i < len(chunks)-1 {
			if done {
				t.Fatalf("assembly completed early at chunk %d", i)
			}
		} else {
			if !done {
				t.Fatal("assembly did not complete on final chunk")
			}
			result = frame
		}
	}

	if result == nil || result.Type != protocol.FrameResponse {
		t.Fatalf("reassembled frame = %+v, want a response frame", result)
	}
	if table.Len() != 0 {
		t.Errorf("table.Len() = %d, want 0 after completion", table.Len())
	}
}

func TestAssemblyTable_OutOfOrderDelivery(t *testing.T) {
	table := NewAssemblyTable(nil)
	chunks := chunksFor(t, "the quick brown fox jumps over the lazy dog", 8)
	if len(chunks) < 3 {
		t.Fatalf("need several chunks, got %d", len(chunks))
	}

	now := time.Now()
	reversed := make([]*protocol.ChunkPayload, len(chunks))
	for i, c := range chunks {
		reversed[len(chunks)-1-i] = c
	}

	var done bool
	for _, c := range reversed {
		_, done = table.Ingest(now, c)
	}
	if !done {
		t.Fatal("assembly should complete once all out-of-order chunks arrive")
	}
}

func TestAssemblyTable_DuplicateChunkDoesNotDoubleCount(t *testing.T) {
	table := NewAssemblyTable(nil)
	chunks := chunksFor(t, "the quick brown fox jumps over the lazy dog", 8)
	if len(chunks) < 2 {
		t.Fatalf("need several chunks, got %d", len(chunks))
	}

	now := time.Now()
	table.Ingest(now, chunks[0])
	table.Ingest(now, chunks[0]) // duplicate

	for i := 1; i < len(chunks)-1; i++ {
		_, done := table.Ingest(now, chunks[i])
		if done {
			t.Fatalf("assembly should not complete before all distinct indexes arrive (at %d)", i)
		}
	}

	_, done := table.Ingest(now, chunks[len(chunks)-1])
	if !done {
		t.Fatal("assembly should complete once every distinct index has arrived, despite the earlier duplicate")
	}
}

func TestAssemblyTable_GCByAge(t *testing.T) {
	table := NewAssemblyTable(nil)
	chunks := chunksFor(t, "hello world, this needs to split into multiple chunks", 8)

	old := time.Now().Add(-time.Hour)
	table.Ingest(old, chunks[0])

	if table.Len() != 1 {
		t.Fatalf("table.Len() = %d, want 1", table.Len())
	}

	evicted := table.GC(time.Now())
	if evicted != 1 {
		t.Errorf("GC() evicted = %d, want 1", evicted)
	}
	if table.Len() != 0 {
		t.Errorf("table.Len() = %d after GC, want 0", table.Len())
	}
}

func TestAssemblyTable_GCByCap(t *testing.T) {
	table := NewAssemblyTable(nil)
	now := time.Now()

	for i := 0; i < maxAssemblyEntries+10; i++ {
		table.Ingest(now.Add(time.Duration(i)*time.Millisecond), &protocol.ChunkPayload{
			MessageID:    strconv.Itoa(i) + "-x",
			ChunkIndex:   0,
			TotalChunks:  2,
			Chunk:        "partial",
			OriginalType: protocol.FrameResponse,
		})
	}

	table.GC(now)
	if table.Len() > maxAssemblyEntries {
		t.Errorf("table.Len() = %d, want <= %d", table.Len(), maxAssemblyEntries)
	}
}

func TestAssemblyTable_PurgeClearsEverything(t *testing.T) {
	table := NewAssemblyTable(nil)
	now := time.Now()
	table.Ingest(now, &protocol.ChunkPayload{MessageID: "m1", ChunkIndex: 0, TotalChunks: 2, Chunk: "a", OriginalType: protocol.FrameResponse})

	table.Purge()
	if table.Len() != 0 {
		t.Errorf("table.Len() = %d after Purge, want 0", table.Len())
	}
}

func TestAssemblyTable_MalformedReassemblyDoesNotPanic(t *testing.T) {
	table := NewAssemblyTable(nil)
	now := time.Now()

	_, done := table.Ingest(now, &protocol.ChunkPayload{
		MessageID:    "bad",
		ChunkIndex:   0,
		TotalChunks:  1,
		Chunk:        "{not valid json",
		OriginalType: protocol.FrameResponse,
	})
	if done {
		t.Fatal("malformed reassembly should not report completion")
	}
}
