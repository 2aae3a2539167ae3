// Package httputil holds the small HTTP helpers the teacher repeats in
// keysaver-server/server.go (writeJSON) and go-node/http_api.go (logReq),
// shared here by the directory, hop, and originator HTTP servers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/MichelKrispin/onionroute/internal/logging"
)

// WriteJSON encodes v as the JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WithLogging wraps next, logging method, path, and remote address for
// every request — grounded on go-node/http_api.go's logReq and
// server-public.go's inline public-handler log wrapper.
func WithLogging(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Printf("%s %s <- %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
