package pool

import "sync"

// AdaptiveBufferPool supplies the two fixed buffer sizes the session's
// WebSocket reader and the SSE streamer care about: a buffer sized to the
// WebSocket message ceiling, and a smaller buffer for incremental
// origin-stream reads.
type AdaptiveBufferPool struct {
	messagePool *sync.Pool
	readPool    *sync.Pool
}

const (
	// MessageBufferSize matches the broker's hard per-message WebSocket
	// ceiling (spec §4.2); used as the scratch buffer when reading inbound
	// WebSocket messages.
	MessageBufferSize = 1 * 1024 * 1024

	// StreamReadBufferSize is the read increment used when streaming an SSE
	// response from the origin.
	StreamReadBufferSize = 32 * 1024
)

// NewAdaptiveBufferPool creates a new adaptive buffer pool.
func NewAdaptiveBufferPool() *AdaptiveBufferPool {
	return &AdaptiveBufferPool{
		messagePool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, MessageBufferSize)
				return &buf
			},
		},
		readPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, StreamReadBufferSize)
				return &buf
			},
		},
	}
}

// GetMessageBuffer returns a buffer sized to MessageBufferSize.
// It must be returned via PutMessageBuffer when done.
func (p *AdaptiveBufferPool) GetMessageBuffer() *[]byte {
	return p.messagePool.Get().(*[]byte)
}

// PutMessageBuffer returns a message buffer to the pool for reuse.
func (p *AdaptiveBufferPool) PutMessageBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:cap(*buf)]
	p.messagePool.Put(buf)
}

// GetReadBuffer returns a buffer sized to StreamReadBufferSize.
// It must be returned via PutReadBuffer when done.
func (p *AdaptiveBufferPool) GetReadBuffer() *[]byte {
	return p.readPool.Get().(*[]byte)
}

// PutReadBuffer returns a read buffer to the pool for reuse.
func (p *AdaptiveBufferPool) PutReadBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:cap(*buf)]
	p.readPool.Put(buf)
}
