package wire

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"localrun/internal/shared/protocol"
)

const (
	// maxAssemblyAge evicts an in-progress reassembly that has been
	// incomplete for longer than this.
	maxAssemblyAge = 30 * time.Second

	// maxAssemblyEntries caps how many concurrent reassemblies the table
	// holds; the oldest-by-creation are evicted past this count.
	maxAssemblyEntries = 100

	// gcEveryN triggers opportunistic GC on roughly 1 in gcEveryN chunk
	// arrivals, per the design note that GC shouldn't run its own ticker.
	gcEveryN = 10
)

type assembly struct {
	totalChunks   int
	receivedCount int
	chunks        []string
	present       []bool
	originalType  protocol.FrameType
	createdAt     time.Time
}

// AssemblyTable reassembles inbound `chunk` frames into their original
// frame. It is owned by a single Session instance (never a package-level
// global) and is only ever mutated from the Session's WebSocket reader
// goroutine, so it needs no internal locking for that access pattern; the
// mutex here only guards against GC or Purge being invoked concurrently from
// elsewhere (e.g. session shutdown).
type AssemblyTable struct {
	mu       sync.Mutex
	entries  map[string]*assembly
	arrivals int
	log      *zap.Logger
}

// NewAssemblyTable creates an empty assembly table. log may be nil, in which
// case a no-op logger is used.
func NewAssemblyTable(log *zap.Logger) *AssemblyTable {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssemblyTable{
		entries: make(map[string]*assembly),
		log:     log,
	}
}

// Ingest stores one chunk payload and, once every chunk for its messageId
// has arrived, reassembles and returns the original frame. It returns
// (nil, false) when more chunks are still expected, and runs opportunistic
// GC roughly every gcEveryN calls.
func (t *AssemblyTable) Ingest(now time.Time, p *protocol.ChunkPayload) (*protocol.Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.arrivals++
	if t.arrivals%gcEveryN == 0 {
		t.gcLocked(now)
	}

	a, ok := t.entries[p.MessageID]
	if !ok {
		a = &assembly{
			totalChunks:  p.TotalChunks,
			chunks:       make([]string, p.TotalChunks),
			present:      make([]bool, p.TotalChunks),
			originalType: p.OriginalType,
			createdAt:    now,
		}
		t.entries[p.MessageID] = a
	}

	if p.ChunkIndex < 0 || p.ChunkIndex >= a.totalChunks {
		t.log.Warn("wire: chunk index out of range", zap.String("messageId", p.MessageID), zap.Int("chunkIndex", p.ChunkIndex), zap.Int("totalChunks", a.totalChunks))
		return nil, false
	}

	if !a.present[p.ChunkIndex] {
		a.present[p.ChunkIndex] = true
		a.receivedCount++
	}
	a.chunks[p.ChunkIndex] = p.Chunk

	if a.receivedCount < a.totalChunks {
		return nil, false
	}

	delete(t.entries, p.MessageID)

	var sb strings.Builder
	for _, c := range a.chunks {
		sb.WriteString(c)
	}

	frame, err := protocol.Unmarshal([]byte(sb.String()))
	if err != nil {
		t.log.Warn("wire: discarding reassembled message that failed to parse", zap.String("messageId", p.MessageID), zap.Error(err))
		return nil, false
	}

	return frame, true
}

// GC evicts assemblies older than maxAssemblyAge, then trims down to
// maxAssemblyEntries by oldest-creation-first if still over the cap. It
// returns the number of entries evicted.
func (t *AssemblyTable) GC(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gcLocked(now)
}

func (t *AssemblyTable) gcLocked(now time.Time) int {
	evicted := 0

	for id, a := range t.entries {
		if now.Sub(a.createdAt) > maxAssemblyAge {
			delete(t.entries, id)
			evicted++
		}
	}

	if len(t.entries) > maxAssemblyEntries {
		ordered := make([]string, 0, len(t.entries))
		for id := range t.entries {
			ordered = append(ordered, id)
		}
		sort.Slice(ordered, func(i, j int) bool {
			return t.entries[ordered[i]].createdAt.Before(t.entries[ordered[j]].createdAt)
		})

		excess := len(t.entries) - maxAssemblyEntries
		for i := 0; i < excess; i++ {
			delete(t.entries, ordered[i])
			evicted++
		}
	}

	if evicted > 0 {
		t.log.Debug("wire: assembly table GC evicted entries", zap.Int("count", evicted), zap.Int("remaining", len(t.entries)))
	}

	return evicted
}

// Purge discards all in-progress assemblies, e.g. on session close.
func (t *AssemblyTable) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*assembly)
}

// Len reports the number of in-progress assemblies.
func (t *AssemblyTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
