package forward

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

var errUnsupportedEncoding = errors.New("forward: unsupported content-encoding")

var binaryContentTypePrefixes = []string{"image/", "video/", "audio/"}

var binaryContentTypes = []string{"application/octet-stream", "application/pdf"}

var textContentTypeMarkers = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/x-javascript",
	"text/javascript",
	"application/xml",
	"application/xhtml+xml",
}

func isBinaryContentType(ct string) bool {
	for _, prefix := range binaryContentTypePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	for _, exact := range binaryContentTypes {
		if ct == exact || strings.HasPrefix(ct, exact+";") {
			return true
		}
	}
	return false
}

func isTextContentType(ct string) bool {
	for _, marker := range textContentTypeMarkers {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

// knownCompressionTokens are the Content-Encoding values this module knows
// how to decompress or deliberately leaves compressed.
var knownCompressionTokens = map[string]bool{
	"gzip":    true,
	"br":      true,
	"deflate": true,
}

// encodedBody is the outcome of the body-encoding decision (spec.md §4.3
// step 7): either a UTF-8 string body, or a base64-encoded one, plus the
// set of response headers that should be stripped before framing.
type encodedBody struct {
	body       string
	isBase64   bool
	stripCE    bool // strip Content-Encoding
	stripCL    bool // strip Content-Length
}

// decodeResponseBody applies spec.md §4.3 step 7's decision table.
func decodeResponseBody(contentType, contentEncoding string, raw []byte) encodedBody {
	ct := strings.ToLower(contentType)
	ce := strings.ToLower(strings.TrimSpace(contentEncoding))

	if isBinaryContentType(ct) {
		return encodedBody{body: base64.StdEncoding.EncodeToString(raw), isBase64: true}
	}

	if ce != "" {
		if knownCompressionTokens[ce] && isTextContentType(ct) {
			decompressed, err := decompress(ce, raw)
			if err != nil {
				return encodedBody{body: base64.StdEncoding.EncodeToString(raw), isBase64: true}
			}
			return encodedBody{body: string(decompressed), isBase64: false, stripCE: true, stripCL: true}
		}
		// Compression present but either the content type isn't text, or
		// the token is unrecognized (e.g. an encoding this module has no
		// decoder for, or a custom value). Base64 the compressed bytes
		// as-is; headers are left untouched either way.
		return encodedBody{body: base64.StdEncoding.EncodeToString(raw), isBase64: true}
	}

	return encodedBody{body: string(raw), isBase64: false}
}

// decompress inflates raw using the codec named by ce. brotli is not
// decompressed (no example repo in this module's lineage imports a brotli
// library; see DESIGN.md), so it always falls through to the caller's
// base64 fallback path.
func decompress(ce string, raw []byte) ([]byte, error) {
	switch ce {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, errUnsupportedEncoding
	}
}
