// Package sse implements the server-sent-events streamer (C4): it forwards
// a long-lived origin response chunk by chunk as sse-chunk frames, with no
// retry and no body deadline once connected.
package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"localrun/internal/client/wire"
	"localrun/internal/shared/pool"
	"localrun/internal/shared/protocol"
	pkgconfig "localrun/pkg/config"
)

// dialTimeout bounds only the initial connection to the origin; once the
// response headers are received there is no further deadline on the
// stream (spec.md §4.4).
const dialTimeout = 300 * time.Second

// Config describes how to reach the local origin, mirroring forward.Config
// but kept independent so sse has no dependency on the forward package.
type Config struct {
	LocalHost string
	Port      int
	TLS       pkgconfig.TLSOptions
}

// Streamer forwards one SSE request/response pair.
type Streamer struct {
	cfg     Config
	client  *http.Client
	buffers *pool.AdaptiveBufferPool
	log     *zap.Logger
}

// New builds a Streamer using the given transport (so the session and the
// request forwarder can share one *http.Transport and its connection
// pool/TLS settings). log may be nil.
func New(cfg Config, transport http.RoundTripper, log *zap.Logger) *Streamer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Streamer{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		buffers: pool.NewAdaptiveBufferPool(),
		log:     log,
	}
}

func (s *Streamer) originURL(path string) string {
	scheme := "http"
	if s.cfg.TLS.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, s.cfg.LocalHost, s.cfg.Port, path)
}

// Stream dials the origin, emits sse-start, forwards every chunk read from
// the body as sse-chunk, and emits sse-end when the origin closes the
// stream cleanly. A dial or read error is returned to the caller, which
// records it against the circuit breaker; no retry is attempted here.
func (s *Streamer) Stream(ctx context.Context, req *protocol.RequestPayload, emit func(*protocol.Frame) error) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dialTimer := time.AfterFunc(dialTimeout, cancel)
	defer dialTimer.Stop()

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, s.originURL(req.Path), nil)
	if err != nil {
		return fmt.Errorf("sse: building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sse: dialing origin: %w", err)
	}
	defer resp.Body.Close()
	// Connected: stop the dial timer rather than cancelling reqCtx, since
	// cancelling a request's context also aborts reading its body. The
	// remaining read has no deadline.
	dialTimer.Stop()

	startFrame, err := protocol.NewSSEStartFrame(&protocol.SSEStartPayload{
		RequestID: req.ID,
		Status:    resp.StatusCode,
		Headers:   flattenHeaders(resp.Header),
	})
	if err != nil {
		return err
	}
	if err := emitChunked(startFrame, emit); err != nil {
		return err
	}

	s.log.Debug("sse: stream connected", zap.String("requestId", req.ID), zap.Int("status", resp.StatusCode))

	if err := s.pump(ctx, req.ID, resp.Body, emit); err != nil {
		return err
	}

	endFrame, err := protocol.NewSSEEndFrame(&protocol.SSEEndPayload{RequestID: req.ID, Reason: "stream_ended"})
	if err != nil {
		return err
	}
	return emitChunked(endFrame, emit)
}

func (s *Streamer) pump(ctx context.Context, requestID string, body io.Reader, emit func(*protocol.Frame) error) error {
	buf := s.buffers.GetReadBuffer()
	defer s.buffers.PutReadBuffer(buf)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := body.Read(*buf)
		if n > 0 {
			chunkFrame, buildErr := protocol.NewSSEChunkFrame(&protocol.SSEChunkPayload{
				RequestID: requestID,
				Chunk:     string((*buf)[:n]),
			})
			if buildErr != nil {
				return buildErr
			}
			if emitErr := emitChunked(chunkFrame, emit); emitErr != nil {
				return emitErr
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sse: reading origin stream: %w", err)
		}
	}
}

// emitChunked applies the outbound chunking rules (§4.2) to frame before
// handing it to emit; sse-chunk and sse-end frames are subject to the same
// chunking as any other outbound frame.
func emitChunked(frame *protocol.Frame, emit func(*protocol.Frame) error) error {
	frames, err := wire.Chunk(frame, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sse: chunking frame: %w", err)
	}
	for _, f := range frames {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return flat
}
