package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"localrun/internal/client/health"
	"localrun/internal/shared/pool"
	"localrun/internal/shared/protocol"
	pkgconfig "localrun/pkg/config"
)

// SSEHandler streams a server-sent-events response from the origin,
// invoking emit for each sse-start/sse-chunk/sse-end frame it produces.
// Declared here (rather than importing the sse package) so forward and sse
// stay leaf packages with no dependency between them; the session wires a
// concrete *sse.Streamer in.
type SSEHandler interface {
	Stream(ctx context.Context, req *protocol.RequestPayload, emit func(*protocol.Frame) error) error
}

// Config describes how to reach the local origin.
type Config struct {
	LocalHost            string
	Port                 int
	TLS                  pkgconfig.TLSOptions
	RequestTimeoutMillis int
	MaxRetries           int
}

// Forwarder implements the request forwarder (C3): circuit-breaker gate,
// SSE delegation, health gate, adaptive timeout, retrying origin dial, and
// response body encoding.
type Forwarder struct {
	cfg     Config
	client  *http.Client
	breaker *health.CircuitBreaker
	prober  *health.Prober
	sse     SSEHandler
	log     *zap.Logger
}

// New builds a Forwarder. If sse is nil, SSE requests are forwarded as
// ordinary (non-streamed) requests — used by callers that don't need
// streaming support, e.g. unit tests of the non-SSE path.
func New(cfg Config, breaker *health.CircuitBreaker, prober *health.Prober, sse SSEHandler, log *zap.Logger) (*Forwarder, error) {
	if log == nil {
		log = zap.NewNop()
	}

	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("forward: building TLS config: %w", err)
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}

	return &Forwarder{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		breaker: breaker,
		prober:  prober,
		sse:     sse,
		log:     log,
	}, nil
}

func buildTLSConfig(opts pkgconfig.TLSOptions) (*tls.Config, error) {
	if !opts.UseTLS {
		return nil, nil
	}

	cfg := &tls.Config{InsecureSkipVerify: opts.AllowInvalidCert}

	if opts.AllowInvalidCert {
		return cfg, nil
	}

	if opts.CertPath != "" && opts.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading local-cert/local-key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.CAPath != "" {
		pool, err := loadCAPool(opts.CAPath)
		if err != nil {
			return nil, fmt.Errorf("loading local-ca: %w", err)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// SetSSEHandler attaches the SSE streamer after construction, so the
// session can build the forwarder first, hand its transport to the
// streamer, then wire the streamer back in without constructing the
// forwarder twice.
func (f *Forwarder) SetSSEHandler(h SSEHandler) {
	f.sse = h
}

// Transport exposes the forwarder's configured *http.Transport so the
// session can hand the same connection pool and TLS settings to the SSE
// streamer, rather than each maintaining its own.
func (f *Forwarder) Transport() http.RoundTripper {
	return f.client.Transport
}

func (f *Forwarder) originBaseURL() string {
	scheme := "http"
	if f.cfg.TLS.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, f.cfg.LocalHost, f.cfg.Port)
}

// Forward handles one inbound request frame, emitting one or more frames
// (chunked if large) via emit.
func (f *Forwarder) Forward(ctx context.Context, req *protocol.RequestPayload, emit func(*protocol.Frame) error) error {
	now := time.Now()

	if f.breaker.IsOpen(now) {
		return f.emitCircuitOpenError(req, emit)
	}

	if isSSERequest(req) && f.sse != nil {
		err := f.sse.Stream(ctx, req, emit)
		if err != nil {
			f.breaker.RecordError(time.Now())
			return f.emitForwarderError(req, err, emit)
		}
		f.breaker.RecordSuccess()
		return nil
	}

	resp, err := f.forwardWithRetries(ctx, req)
	if err != nil {
		f.log.Warn("forward: request to origin failed", zap.String("requestId", req.ID), zap.Error(err))
		f.breaker.RecordError(time.Now())
		return f.emitForwarderError(req, err, emit)
	}

	f.breaker.RecordSuccess()
	return f.emitResponse(req, resp, emit)
}

func isSSERequest(req *protocol.RequestPayload) bool {
	accept := strings.ToLower(req.Headers["accept"])
	cacheControl := strings.ToLower(req.Headers["cache-control"])
	return strings.Contains(accept, "text/event-stream") ||
		strings.Contains(req.Path, "/sse") ||
		cacheControl == "no-cache"
}

type originResponse struct {
	status  int
	headers http.Header
	body    []byte
}

func (f *Forwarder) forwardWithRetries(ctx context.Context, req *protocol.RequestPayload) (*originResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		unhealthy := false
		if f.shouldProbeHealth(attempt) {
			if attempt >= 3 {
				// The 4th-attempt-and-later re-probe must hit the network
				// again, not return the cached first-attempt result.
				f.prober.Invalidate()
			}
			unhealthy = !f.prober.IsHealthy(ctx, f.originBaseURL())
		}

		if unhealthy {
			lastErr = ErrOriginUnhealthy
		} else {
			resp, err := f.dial(ctx, req, attempt)
			if err == nil {
				return resp, nil
			}
			lastErr = err
		}

		if attempt == f.cfg.MaxRetries || !isRetryable(lastErr) {
			return nil, lastErr
		}

		delay := retryDelay(attempt+1, classify(lastErr))
		f.log.Debug("forward: retrying origin request",
			zap.String("requestId", req.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// shouldProbeHealth implements spec.md §4.3 step 3: the health gate fires
// on the first attempt, then again from the 4th attempt onward (retry
// count >= 3).
func (f *Forwarder) shouldProbeHealth(attempt int) bool {
	return attempt == 0 || attempt >= 3
}

func (f *Forwarder) dial(ctx context.Context, req *protocol.RequestPayload, attempt int) (*originResponse, error) {
	var bodyBytes int
	if req.Body != nil {
		bodyBytes = len(*req.Body)
	}

	timeout := adaptiveTimeout(adaptiveTimeoutParams{
		baseMillis: f.cfg.RequestTimeoutMillis,
		isSSE:      false,
		method:     req.Method,
		path:       req.Path,
		retryCount: attempt,
		bodyBytes:  bodyBytes,
	})

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader([]byte(*req.Body))
	}

	httpReq, err := http.NewRequestWithContext(dialCtx, req.Method, f.originBaseURL()+req.Path, body)
	if err != nil {
		return nil, err
	}
	applyHeaders(httpReq, req.Headers)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readResponseBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &originResponse{status: resp.StatusCode, headers: resp.Header, body: raw}, nil
}

// readResponseBody drains resp.Body through a pooled scratch buffer rather
// than io.ReadAll's internal growth-from-scratch allocation, since the
// forwarder reads a response body on every request the session forwards.
func readResponseBody(body io.Reader) ([]byte, error) {
	scratch := pool.GetBuffer(pool.SizeMedium)
	defer pool.PutBuffer(scratch)

	var buf bytes.Buffer
	if _, err := io.CopyBuffer(&buf, body, *scratch); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Forwarder) emitResponse(req *protocol.RequestPayload, resp *originResponse, emit func(*protocol.Frame) error) error {
	headers := flattenHeaders(resp.headers)

	encoded := decodeResponseBody(headers["content-type"], headers["content-encoding"], resp.body)
	if encoded.stripCE {
		delete(headers, "content-encoding")
	}
	if encoded.stripCL {
		delete(headers, "content-length")
	}

	frame, err := protocol.NewResponseFrame(&protocol.ResponsePayload{
		ID:       req.ID,
		Status:   resp.status,
		Headers:  headers,
		Body:     encoded.body,
		IsBase64: encoded.isBase64,
	})
	if err != nil {
		return err
	}

	return chunkAndEmit(frame, emit)
}

func (f *Forwarder) emitForwarderError(req *protocol.RequestPayload, err error, emit func(*protocol.Frame) error) error {
	t := classify(err)
	if err == ErrOriginUnhealthy {
		t = typeConnectionRefused
	}

	localServer := fmt.Sprintf("%s:%d", f.cfg.LocalHost, f.cfg.Port)
	body := errorBodyJSON(&protocol.ErrorPayload{
		Error:       err.Error(),
		ErrorType:   string(t),
		RequestID:   req.ID,
		LocalServer: localServer,
		Timestamp:   time.Now().UnixMilli(),
	})

	frame, buildErr := protocol.NewResponseFrame(&protocol.ResponsePayload{
		ID:     req.ID,
		Status: statusFor(t),
		Headers: map[string]string{
			"content-type":   "application/json",
			"x-error-type":   string(t),
			"x-local-server": localServer,
		},
		Body: body,
	})
	if buildErr != nil {
		return buildErr
	}

	return chunkAndEmit(frame, emit)
}

func (f *Forwarder) emitCircuitOpenError(req *protocol.RequestPayload, emit func(*protocol.Frame) error) error {
	body := errorBodyJSON(&protocol.ErrorPayload{
		Error:             "circuit breaker is open",
		ErrorType:         "circuit-breaker-open",
		RequestID:         req.ID,
		RetryAfterSeconds: 30,
		Timestamp:         time.Now().UnixMilli(),
	})

	frame, err := protocol.NewResponseFrame(&protocol.ResponsePayload{
		ID:     req.ID,
		Status: 503,
		Headers: map[string]string{
			"content-type": "application/json",
			"x-error-type": "circuit-breaker-open",
			"retry-after":  "30",
		},
		Body: body,
	})
	if err != nil {
		return err
	}
	return chunkAndEmit(frame, emit)
}
