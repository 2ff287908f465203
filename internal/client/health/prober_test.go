package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProber_HealthEndpointSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewProber(nil)
	if !p.IsHealthy(context.Background(), srv.URL) {
		t.Error("IsHealthy() = false, want true")
	}

	p.mu.Lock()
	path := p.probePath
	p.mu.Unlock()
	if path != "/health" {
		t.Errorf("probePath = %q, want /health", path)
	}
}

func TestProber_FallsBackToRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusNotFound)
		case "/":
			w.WriteHeader(http.StatusForbidden) // 403, within the 2xx-4xx acceptance range
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewProber(nil)
	if !p.IsHealthy(context.Background(), srv.URL) {
		t.Error("IsHealthy() = false, want true (fallback to / should count as healthy)")
	}

	p.mu.Lock()
	path := p.probePath
	p.mu.Unlock()
	if path != "/" {
		t.Errorf("probePath = %q, want /", path)
	}
}

func TestProber_UnhealthyWhenBothFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProber(nil)
	if p.IsHealthy(context.Background(), srv.URL) {
		t.Error("IsHealthy() = true, want false")
	}
}

func TestProber_CachesResultWithinTTL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(nil)
	p.IsHealthy(context.Background(), srv.URL)
	p.IsHealthy(context.Background(), srv.URL)
	p.IsHealthy(context.Background(), srv.URL)

	if calls != 1 {
		t.Errorf("origin received %d probe requests, want 1 (cached)", calls)
	}
}

func TestProber_StickyPathSkipsHealthEndpoint(t *testing.T) {
	healthHits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			healthHits++
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(nil)
	p.IsHealthy(context.Background(), srv.URL) // establishes sticky "/"
	p.Invalidate()
	p.IsHealthy(context.Background(), srv.URL) // should go straight to "/"

	if healthHits != 1 {
		t.Errorf("/health was hit %d times, want 1 (only on the very first probe)", healthHits)
	}
}
