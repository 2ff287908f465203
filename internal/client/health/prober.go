package health

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const (
	// probeTimeout bounds a single HEAD request against the origin.
	probeTimeout = 3 * time.Second

	// CacheTTL is how long a probe result is reused before a fresh probe
	// is required.
	CacheTTL = 10 * time.Second
)

// Prober caches origin liveness so the forwarder doesn't pay a network
// round trip on every request. The probed path is sticky: once `/health`
// or `/` has produced a usable answer, subsequent probes go straight to
// that path.
type Prober struct {
	client *http.Client

	mu         sync.Mutex
	isHealthy  bool
	lastCheck  time.Time
	probePath  string // "", "/health", or "/"
	haveResult bool
}

// NewProber creates a Prober that issues HEAD requests through client. If
// client is nil, a client with probeTimeout as its overall timeout is used.
func NewProber(client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	return &Prober{client: client}
}

// IsHealthy reports whether baseURL appears to be serving traffic,
// consulting the cache first and probing over the network only on a cache
// miss or expiry.
func (p *Prober) IsHealthy(ctx context.Context, baseURL string) bool {
	p.mu.Lock()
	if p.haveResult && time.Since(p.lastCheck) < CacheTTL {
		healthy := p.isHealthy
		p.mu.Unlock()
		return healthy
	}
	stickyPath := p.probePath
	p.mu.Unlock()

	healthy, path := p.probe(ctx, baseURL, stickyPath)

	p.mu.Lock()
	p.isHealthy = healthy
	p.lastCheck = time.Now()
	p.haveResult = true
	if path != "" {
		p.probePath = path
	}
	p.mu.Unlock()

	return healthy
}

// probe performs the actual network check. If stickyPath is set, only that
// path is tried, since it has previously been established as usable.
func (p *Prober) probe(ctx context.Context, baseURL, stickyPath string) (healthy bool, path string) {
	if stickyPath != "" {
		ok, _ := p.headOK(ctx, baseURL+stickyPath, stickyPath == "/health")
		return ok, stickyPath
	}

	// No sticky path means this is the first probe ever made, so a non-2xx
	// (or errored) "/health" result always falls through to "/" — per
	// spec, the "probePath has never been set" fallback condition is
	// unconditionally true here.
	healthOK, _ := p.headOK(ctx, baseURL+"/health", true)
	if healthOK {
		return true, "/health"
	}

	rootOK, _ := p.headOK(ctx, baseURL+"/", false)
	if rootOK {
		return true, "/"
	}
	return false, ""
}

// headOK issues one HEAD request with probeTimeout. When strictTwoXX is
// true only a 2xx response counts as success (the "/health" probe);
// otherwise 2xx-4xx counts (the "/" fallback probe, which just wants to
// know the server process is up). errored reports whether the request
// itself failed (network error, timeout) as opposed to merely returning an
// unsatisfactory status.
func (p *Prober) headOK(ctx context.Context, url string, strictTwoXX bool) (ok bool, errored bool) {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return false, true
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, true
	}
	defer resp.Body.Close()

	if strictTwoXX {
		return resp.StatusCode >= 200 && resp.StatusCode < 300, false
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 500, false
}

// Invalidate clears the cached result, forcing the next IsHealthy call to
// probe the network. The sticky probe path is preserved.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.haveResult = false
}
