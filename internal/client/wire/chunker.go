// Package wire implements the tunnel's frame codec and chunker (C2): it
// serializes frames to JSON, splits oversized frames into ordered chunk
// frames, and reassembles chunks back into their original frame on the
// receiving side.
package wire

import (
	"fmt"
	"sort"

	"localrun/internal/shared/protocol"
	"localrun/internal/shared/utils"
)

const (
	// MaxMessageBytes is the broker's hard per-WebSocket-message ceiling.
	// A serialized frame at or under this size is sent as a single message.
	MaxMessageBytes = 1 * 1024 * 1024

	// ChunkPayloadBudget is the maximum UTF-8 byte length of a single
	// chunk's payload, left with headroom under MaxMessageBytes for the
	// chunk envelope's own JSON framing.
	ChunkPayloadBudget = 768 * 1024
)

// Chunk serializes frame to JSON. If it fits within MaxMessageBytes it is
// returned unmodified as a single-element slice; otherwise it is split into
// ordered `chunk` frames, none of which bisects a UTF-8 code point.
func Chunk(frame *protocol.Frame, nowMillis int64) ([]*protocol.Frame, error) {
	raw, err := frame.Marshal()
	if err != nil {
		return nil, fmt.Errorf("wire: marshal frame: %w", err)
	}

	if len(raw) <= MaxMessageBytes {
		return []*protocol.Frame{frame}, nil
	}

	pieces, err := splitUTF8(string(raw), ChunkPayloadBudget)
	if err != nil {
		return nil, err
	}

	messageID := utils.GenerateMessageID(nowMillis)
	total := len(pieces)
	chunks := make([]*protocol.Frame, total)
	for i, piece := range pieces {
		cf, err := protocol.NewChunkFrame(&protocol.ChunkPayload{
			MessageID:    messageID,
			ChunkIndex:   i,
			TotalChunks:  total,
			Chunk:        piece,
			OriginalType: frame.Type,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: build chunk %d/%d: %w", i, total, err)
		}
		chunks[i] = cf
	}

	return chunks, nil
}

// splitUTF8 splits s into consecutive substrings, each at most budget bytes,
// none of which splits a multi-byte UTF-8 code point. Rune boundaries are
// located once up front so each split point is found by a binary search
// rather than a byte-by-byte scan.
func splitUTF8(s string, budget int) ([]string, error) {
	if len(s) == 0 {
		return []string{""}, nil
	}

	boundaries := runeBoundaries(s)

	var pieces []string
	start := 0
	for start < len(s) {
		end := largestBoundaryWithin(boundaries, start, budget)
		if end <= start {
			return nil, fmt.Errorf("wire: code point at byte offset %d exceeds chunk budget of %d bytes", start, budget)
		}
		pieces = append(pieces, s[start:end])
		start = end
	}

	return pieces, nil
}

// runeBoundaries returns the byte offset of the start of every rune in s,
// plus a final entry equal to len(s).
func runeBoundaries(s string) []int {
	boundaries := make([]int, 0, len(s)+1)
	for i := range s {
		boundaries = append(boundaries, i)
	}
	boundaries = append(boundaries, len(s))
	return boundaries
}

// largestBoundaryWithin returns the largest boundary offset b such that
// start < b <= start+budget, found via binary search over boundaries.
func largestBoundaryWithin(boundaries []int, start, budget int) int {
	limit := start + budget
	idx := sort.Search(len(boundaries), func(i int) bool {
		return boundaries[i] > limit
	})
	if idx == 0 {
		return start
	}
	return boundaries[idx-1]
}
