package forward

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"localrun/internal/client/wire"
	"localrun/internal/shared/protocol"
)

// chunkAndEmit applies the outbound chunking rules (§4.2) to frame and
// passes the resulting frame(s) to emit in order.
func chunkAndEmit(frame *protocol.Frame, emit func(*protocol.Frame) error) error {
	frames, err := wire.Chunk(frame, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("forward: chunking response: %w", err)
	}
	for _, f := range frames {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

// errorBodyJSON marshals an ErrorPayload for a synthesized error response
// body. Marshal errors are swallowed in favor of a minimal fallback body,
// since ErrorPayload's fields are all marshal-safe scalars and this should
// never actually fail.
func errorBodyJSON(p *protocol.ErrorPayload) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return `{"error":"internal error building error response"}`
	}
	return string(raw)
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no valid certificates found in %s", path)
	}
	return pool, nil
}
