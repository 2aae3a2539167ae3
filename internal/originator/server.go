package originator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MichelKrispin/onionroute/internal/httputil"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

// Server exposes the Driver over HTTP: GET / (a placeholder page standing in
// for the reference's render_template("index.html"), since templates/static
// assets are out of scope here; it shows the public key and how to call
// /connect, and has no form) and POST /connect.
type Server struct {
	drv *Driver
	log *logging.Logger
}

// NewServer builds a Server around an already-constructed Driver.
func NewServer(drv *Driver, log *logging.Logger) *Server {
	return &Server{drv: drv, log: log}
}

// Handler returns the HTTP handler with all routes, wrapped in request
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/connect", s.handleConnect)
	return httputil.WithLogging(s.log, mux)
}

// GET / — a bare HTML page showing this originator's public key, enough to
// drive /connect by hand or from a small script.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := s.drv.PublicKeyPEM()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "<pre>%s</pre><p>POST {\"service\":...,\"route\":[...]} to /connect</p>", pemBytes)
}

// POST /connect — drive one onion round trip to service via route.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Service string   `json:"service"`
		Route   []string `json:"route"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Service == "" || len(body.Route) == 0 {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status": false,
			"error":  "Service URL and route have to be given in the JSON body",
		})
		return
	}

	result, err := s.drv.Connect(r.Context(), body.Service, body.Route)
	if err != nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status": false,
			"error":  err.Error(),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"data":   map[string]string{"result": result},
	})
}
