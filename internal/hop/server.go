package hop

import (
	"fmt"
	"io"
	"net/http"

	"github.com/MichelKrispin/onionroute/internal/httputil"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

// Server exposes the Forwarder over HTTP: POST / (the forwarding entry
// point), GET /get-public-key, GET /info. Grounded on
// original_source/IntermediateNode/main.py's three @app.route handlers.
type Server struct {
	fwd *Forwarder
	id  Identity
	log *logging.Logger
}

// NewServer builds a Server around an already-constructed Forwarder.
func NewServer(fwd *Forwarder, id Identity, log *logging.Logger) *Server {
	return &Server{fwd: fwd, id: id, log: log}
}

// Handler returns the HTTP handler with all routes, wrapped in request
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleForward)
	mux.HandleFunc("/get-public-key", s.handleGetPublicKey)
	mux.HandleFunc("/info", s.handleInfo)
	return httputil.WithLogging(s.log, mux)
}

// POST / — unwrap one onion layer, forward, wrap the reply, return it.
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawFrame, err := io.ReadAll(r.Body)
	if err != nil {
		fmt.Fprintf(w, "Error: %v", err)
		return
	}

	reply, err := s.fwd.Handle(r.Context(), rawFrame)
	if err != nil {
		fmt.Fprintf(w, "Error: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-binary")
	w.Write(reply)
}

// GET /get-public-key — return this hop's (fixed, startup-generated) public
// key in PEM form.
func (s *Server) handleGetPublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pemBytes, err := s.fwd.PublicKeyPEM()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Write(pemBytes)
}

// GET /info — diagnostic dump of this hop's configuration.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Directory: %s<br>THIS_NODE: %s<br>TRACKING_ID: %s<br>",
		s.id.DirectoryNode, s.id.ThisNode, s.id.TrackingID)
}
