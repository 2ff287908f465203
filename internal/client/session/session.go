// Package session implements the tunnel session controller (C1): it owns
// registration, the WebSocket control channel, reconnection, and every
// other component (chunker, forwarder, SSE streamer, health/breaker,
// keepalive), routing inbound frames to them and serializing outbound
// writes back onto the one connection.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"localrun/internal/client/forward"
	"localrun/internal/client/health"
	"localrun/internal/client/keepalive"
	"localrun/internal/client/sse"
	"localrun/internal/client/wire"
	"localrun/internal/shared/pool"
	"localrun/internal/shared/protocol"
	"localrun/internal/shared/utils"
	pkgconfig "localrun/pkg/config"
)

const (
	registerToConnectDelay = 10 * time.Millisecond
	wsHandshakeTimeout     = 10 * time.Second
	gracefulDrainTimeout   = 5 * time.Second
	defaultWorkerPoolSize  = 64
	defaultWorkerQueueSize = 1024
)

// Session is the tunnel's long-lived control object. Exactly one WebSocket,
// one pending reconnect timer, and one keepalive timer are active at a time
// (spec.md §4.1).
type Session struct {
	cfg *pkgconfig.TunnelConfig
	log *zap.Logger

	httpClient *http.Client

	mu    sync.Mutex
	state State
	info  *TunnelInfo
	conn  *websocket.Conn

	writeMu sync.Mutex

	assemblies *wire.AssemblyTable
	breaker    *health.CircuitBreaker
	prober     *health.Prober
	forwarder  *forward.Forwarder
	streamer   *sse.Streamer
	keepalive  *keepalive.Keepalive
	workers    *pool.WorkerPool
	msgBuffers *pool.AdaptiveBufferPool
	Stats      *TrafficStats

	reconnect reconnectState

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closing   bool
	doneCh    chan struct{}

	firstConnectOnce sync.Once
	firstConnect     chan error

	onURL          func(string)
	onRequest      func(method, path string, headers map[string]string)
	onError        func(error)
	onClose        func()
	onCircuitOpen  func(consecutiveErrors int, cooldownMs int)
	onCircuitClose func()

	workerPoolSize  int
	workerQueueSize int
}

// Option configures a Session at construction time.
type Option func(*Session)

// OnURL registers the callback invoked once the tunnel's public URL is
// known, right after the WebSocket first connects.
func OnURL(fn func(string)) Option { return func(s *Session) { s.onURL = fn } }

// OnRequest registers the callback invoked for every inbound request frame,
// before it is forwarded.
func OnRequest(fn func(method, path string, headers map[string]string)) Option {
	return func(s *Session) { s.onRequest = fn }
}

// OnError registers the callback invoked on non-fatal and fatal errors.
func OnError(fn func(error)) Option { return func(s *Session) { s.onError = fn } }

// OnClose registers the callback invoked once the session reaches the
// closed state.
func OnClose(fn func()) Option { return func(s *Session) { s.onClose = fn } }

// OnCircuitBreakerOpen registers the callback invoked when the origin
// circuit breaker opens.
func OnCircuitBreakerOpen(fn func(consecutiveErrors int, cooldownMs int)) Option {
	return func(s *Session) { s.onCircuitOpen = fn }
}

// OnCircuitBreakerClose registers the callback invoked when the origin
// circuit breaker closes.
func OnCircuitBreakerClose(fn func()) Option { return func(s *Session) { s.onCircuitClose = fn } }

// WithLogger overrides the session's logger; nil keeps the no-op default.
func WithLogger(log *zap.Logger) Option { return func(s *Session) { s.log = log } }

// WithWorkerPool overrides the forwarder goroutine pool's size and queue
// depth (spec.md §5: a generous default so a slow origin cannot starve the
// process of goroutines).
func WithWorkerPool(workers, queueSize int) Option {
	return func(s *Session) { s.workerPoolSize, s.workerQueueSize = workers, queueSize }
}

// Open is the sole entry point: it validates cfg, registers with the
// broker, and blocks until either the first WebSocket connection succeeds
// or the reconnect budget is exhausted trying. The returned Session keeps
// reconnecting automatically in the background for the rest of its life.
func Open(ctx context.Context, cfg *pkgconfig.TunnelConfig, opts ...Option) (*Session, error) {
	if cfg.Subdomain != "" && !utils.ValidateSubdomain(cfg.Subdomain) {
		return nil, ErrInvalidSubdomain
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:             cfg,
		log:             zap.NewNop(),
		httpClient:      &http.Client{},
		state:           StateInit,
		ctx:             sessionCtx,
		cancel:          cancel,
		doneCh:          make(chan struct{}),
		firstConnect:    make(chan error, 1),
		workerPoolSize:  defaultWorkerPoolSize,
		workerQueueSize: defaultWorkerQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	s.assemblies = wire.NewAssemblyTable(s.log)
	s.breaker = health.NewCircuitBreaker(s.handleBreakerOpen, s.handleBreakerClose)
	s.prober = health.NewProber(nil)
	s.workers = pool.NewWorkerPool(s.workerPoolSize, s.workerQueueSize)
	s.msgBuffers = pool.NewAdaptiveBufferPool()
	s.Stats = NewTrafficStats()

	forwarderCfg := forward.Config{
		LocalHost:            cfg.LocalHost,
		Port:                 cfg.Port,
		TLS:                  cfg.TLS,
		RequestTimeoutMillis: cfg.RequestTimeoutMillis,
		MaxRetries:           cfg.MaxRetries,
	}
	fwd, err := forward.New(forwarderCfg, s.breaker, s.prober, nil, s.log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session: building forwarder: %w", err)
	}
	s.forwarder = fwd
	s.streamer = sse.New(sse.Config{LocalHost: cfg.LocalHost, Port: cfg.Port, TLS: cfg.TLS}, fwd.Transport(), s.log)
	fwd.SetSSEHandler(s.streamer)

	s.keepalive = keepalive.New(s, s.forceCloseFromKeepalive, s.log)

	s.setState(StateRegistering)
	info, err := register(sessionCtx, s.httpClient, cfg.BrokerURL, cfg.Subdomain)
	if err != nil {
		s.setState(StateClosed)
		cancel()
		return nil, err
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	s.log.Info("session: registered", zap.String("id", info.ID), zap.String("url", info.URL))

	select {
	case <-time.After(registerToConnectDelay):
	case <-sessionCtx.Done():
		return nil, ErrClosed
	}

	go s.controlLoop()

	select {
	case err := <-s.firstConnect:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-sessionCtx.Done():
		return nil, ErrClosed
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// URL returns the broker-assigned public URL, empty before registration.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return ""
	}
	return s.info.URL
}

// controlLoop owns the single active WebSocket for the life of the
// Session: dial, serve until disconnect, then either reconnect with
// backoff or finish closing.
func (s *Session) controlLoop() {
	for {
		if s.isClosing() {
			s.finishClose()
			return
		}

		err := s.dialAndServe()

		if err == nil {
			// Disconnected because Close() was called: intentional.
			s.finishClose()
			return
		}

		if s.isClosing() {
			s.finishClose()
			return
		}

		s.log.Warn("session: websocket connection lost", zap.Error(err))
		s.emitError(err)

		delay, attempt, ok := s.reconnect.next()
		if !ok {
			s.log.Error("session: exceeded maximum reconnect attempts")
			s.signalFirstConnect(ErrMaxReconnectAttemptsExceeded)
			s.emitError(ErrMaxReconnectAttemptsExceeded)
			s.mu.Lock()
			s.closing = true
			s.mu.Unlock()
			s.finishClose()
			return
		}

		s.setState(StateReconnecting)
		s.log.Info("session: reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			s.finishClose()
			return
		}
	}
}

// dialAndServe dials the WebSocket, serves it until it closes, and reports
// why it stopped: nil means the Session's own Close() tore it down
// intentionally; non-nil is a connection loss that should trigger a
// reconnect.
func (s *Session) dialAndServe() error {
	s.mu.Lock()
	info := s.info
	s.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	url := wsURL(s.cfg.BrokerURL, info.ID)

	dialCtx, cancel := context.WithTimeout(s.ctx, wsHandshakeTimeout)
	conn, _, err := dialer.DialContext(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("session: websocket dial: %w", err)
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		s.signalFirstConnect(ErrClosed)
		return nil
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	s.reconnect.reset()
	s.log.Info("session: websocket connected", zap.String("url", info.URL))
	if s.onURL != nil {
		s.onURL(info.URL)
	}
	s.signalFirstConnect(nil)

	s.keepalive.Start()
	err = s.readLoop(conn)
	s.keepalive.Stop()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	closing := s.closing
	s.mu.Unlock()

	conn.Close()

	if closing {
		return nil
	}
	return err
}

func (s *Session) signalFirstConnect(err error) {
	s.firstConnectOnce.Do(func() {
		s.firstConnect <- err
	})
}

// readLoop reads frames off the WebSocket until it closes or errors,
// routing each to the appropriate handler. It is the chunk assembly
// table's single writer (spec.md §5).
//
// Each message is read through a single message-ceiling-sized scratch
// buffer (reused across the whole loop, not just one message) rather than
// gorilla's default per-message allocation, since most frames are far
// smaller than the 1MiB WebSocket ceiling the scratch buffer is sized to.
func (s *Session) readLoop(conn *websocket.Conn) error {
	scratch := s.msgBuffers.GetMessageBuffer()
	defer s.msgBuffers.PutMessageBuffer(scratch)

	for {
		_, r, err := conn.NextReader()
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if _, err := io.CopyBuffer(&buf, r, *scratch); err != nil {
			return err
		}
		data := buf.Bytes()
		s.Stats.AddBytesIn(int64(len(data)))

		frame, err := protocol.Unmarshal(data)
		if err != nil {
			s.log.Warn("session: discarding unparseable frame", zap.Error(err))
			continue
		}

		s.routeInbound(frame)
	}
}

func (s *Session) routeInbound(frame *protocol.Frame) {
	switch frame.Type {
	case protocol.FrameRequest:
		s.handleRequestFrame(frame)

	case protocol.FrameChunk:
		chunkPayload, err := protocol.DecodeChunk(frame)
		if err != nil {
			s.log.Warn("session: malformed chunk payload", zap.Error(err))
			return
		}
		if reassembled, complete := s.assemblies.Ingest(time.Now(), chunkPayload); complete {
			s.routeInbound(reassembled)
		}

	case protocol.FramePing:
		ping, err := protocol.DecodePing(frame)
		if err != nil {
			s.log.Warn("session: malformed ping payload", zap.Error(err))
			return
		}
		if err := s.keepalive.HandlePing(ping); err != nil {
			s.log.Warn("session: failed to reply to ping", zap.Error(err))
		}

	case protocol.FramePong:
		pong, err := protocol.DecodePing(frame)
		if err != nil {
			s.log.Warn("session: malformed pong payload", zap.Error(err))
			return
		}
		s.keepalive.HandlePong(pong)

	default:
		s.log.Debug("session: ignoring unexpected inbound frame type", zap.String("type", frame.Type.String()))
	}
}

func (s *Session) handleRequestFrame(frame *protocol.Frame) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		s.log.Warn("session: malformed request payload", zap.Error(err))
		return
	}

	if s.Stats != nil {
		s.Stats.AddRequest()
	}
	if s.onRequest != nil {
		s.onRequest(req.Method, req.Path, req.Headers)
	}

	submitted := s.workers.Submit(func() { s.forwardRequest(req) })
	if !submitted {
		s.log.Debug("session: worker pool queue full, forwarding on its own goroutine", zap.String("requestId", req.ID))
	}
}

func (s *Session) forwardRequest(req *protocol.RequestPayload) {
	if err := s.forwarder.Forward(s.ctx, req, s.writeFrame); err != nil {
		s.log.Warn("session: forwarding request failed", zap.String("requestId", req.ID), zap.Error(err))
		s.emitError(err)
	}
}

// writeFrame marshals one already-chunked-if-necessary frame and writes it
// as a single WebSocket text message. It does not itself chunk: the
// forwarder and SSE streamer apply wire.Chunk before invoking it, and the
// keepalive's ping/pong frames are sent as they are.
func (s *Session) writeFrame(f *protocol.Frame) error {
	raw, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("session: marshal outbound frame: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(wsHandshakeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("session: websocket write: %w", err)
	}
	if s.Stats != nil {
		s.Stats.AddBytesOut(int64(len(raw)))
	}
	return nil
}

// SendFrame satisfies keepalive.Sender.
func (s *Session) SendFrame(f *protocol.Frame) error {
	return s.writeFrame(f)
}

func (s *Session) handleBreakerOpen() {
	cooldownMs := int(health.CooldownPeriod.Milliseconds())
	consecutive := s.breaker.ConsecutiveErrors()
	s.log.Warn("session: circuit breaker open", zap.Int("consecutiveErrors", consecutive))
	if s.onCircuitOpen != nil {
		s.onCircuitOpen(consecutive, cooldownMs)
	}
}

func (s *Session) handleBreakerClose() {
	s.log.Info("session: circuit breaker closed")
	if s.onCircuitClose != nil {
		s.onCircuitClose()
	}
}

func (s *Session) emitError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// forceCloseFromKeepalive is invoked from the keepalive loop's own
// goroutine when a ping has gone unanswered past the liveness window.
func (s *Session) forceCloseFromKeepalive() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) finishClose() {
	s.cancel()
	s.setState(StateClosed)
	s.workers.Close()
	s.assemblies.Purge()
	s.log.Info("session: closed")
	if s.onClose != nil {
		s.onClose()
	}
	s.closeOnce.Do(func() { close(s.doneCh) })
}

// Close tears the session down: it stops timers, closes the WebSocket,
// clears in-progress chunk assemblies, and emits the close event. It is
// idempotent and does not wait for in-flight work to drain; use
// GracefulShutdown for that.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.cancel()
}

// GracefulShutdown calls Close and then waits up to 5 s for active chunk
// assemblies to drain before returning (spec.md §5).
func (s *Session) GracefulShutdown(ctx context.Context) {
	s.Close()

	deadline := time.After(gracefulDrainTimeout)
	for s.assemblies.Len() > 0 {
		select {
		case <-deadline:
			s.log.Warn("session: graceful shutdown drain timed out", zap.Int("pending", s.assemblies.Len()))
			return
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Wait blocks until the session reaches the closed state.
func (s *Session) Wait() {
	<-s.doneCh
}
