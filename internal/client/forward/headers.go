package forward

import (
	"net/http"
	"strings"
)

// flattenHeaders joins multi-valued headers with ", " into the flat
// map<string,string> shape the wire protocol carries.
func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for key, values := range h {
		flat[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return flat
}

// applyHeaders copies a flat header map onto an outgoing *http.Request.
func applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}
