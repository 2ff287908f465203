package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const registerTimeout = 10 * time.Second

// register issues the single broker registration HTTP call (spec.md §4.1):
// POST {host}/api/tunnels {subdomain} if a subdomain was requested,
// otherwise GET {host}/?new. There is no retry at this stage.
func register(ctx context.Context, client *http.Client, brokerURL, subdomain string) (*TunnelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	var req *http.Request
	var err error

	if subdomain != "" {
		body, marshalErr := json.Marshal(map[string]string{"subdomain": subdomain})
		if marshalErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(brokerURL, "/")+"/api/tunnels", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(brokerURL, "/")+"/?new", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	var decoded registerResponse
	_ = json.Unmarshal(raw, &decoded) // best-effort: a non-JSON body still surfaces resp.StatusCode below

	if resp.StatusCode != http.StatusOK {
		if isSubdomainTakenMessage(decoded.Message) {
			return nil, ErrSubdomainTaken
		}
		if decoded.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrRegistrationFailed, decoded.Message)
		}
		return nil, fmt.Errorf("%w: broker returned status %d", ErrRegistrationFailed, resp.StatusCode)
	}

	return &TunnelInfo{ID: decoded.ID, URL: decoded.URL, CachedURL: decoded.CachedURL, Port: decoded.Port}, nil
}

func isSubdomainTakenMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "already taken") || strings.Contains(lower, "reserved")
}

// wsURL derives the broker WebSocket URL from the base URL and tunnel id
// (spec.md §4.1): swap https→wss, http→ws, append /api/tunnels/{id}/ws.
func wsURL(brokerURL, tunnelID string) string {
	u := brokerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/api/tunnels/" + tunnelID + "/ws"
}
