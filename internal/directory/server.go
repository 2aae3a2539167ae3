package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MichelKrispin/onionroute/internal/httputil"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

// Server handles the directory's HTTP surface: GET /, POST /route,
// POST /notify, POST /check. Grounded on keysaver-server/server.go's
// Server/Handler shape and original_source/DirectoryNode/main.py's route
// table.
type Server struct {
	ctrl *Controller
	log  *logging.Logger
}

// NewServer builds a Server around an already-constructed Controller.
func NewServer(ctrl *Controller, log *logging.Logger) *Server {
	return &Server{ctrl: ctrl, log: log}
}

// Handler returns the HTTP handler with all routes, wrapped in request
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/notify", s.handleNotify)
	mux.HandleFunc("/check", s.handleCheck)
	return httputil.WithLogging(s.log, mux)
}

// GET / — diagnostic listing of every live circuit, plus the most recent
// terminated circuits from the audit log, with humanized ages (§ supplemented
// feature: richer than the reference's bare routes dict dump).
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	type liveCircuit struct {
		TrackingID string   `json:"tracking_id"`
		Hops       []string `json:"hops"`
		Age        string   `json:"age"`
	}
	type historyEntry struct {
		TrackingID string   `json:"tracking_id"`
		Hops       []string `json:"hops"`
		Outcome    string   `json:"outcome"`
		FinishedAt string   `json:"finished_at"`
	}

	live := make([]liveCircuit, 0)
	for _, snap := range s.ctrl.List() {
		hops := make([]string, 0, len(snap.Hops))
		for _, h := range snap.Hops {
			hops = append(hops, h.Address)
		}
		live = append(live, liveCircuit{
			TrackingID: snap.TrackingID,
			Hops:       hops,
			Age:        humanize.Time(snap.CreatedAt),
		})
	}

	resp := map[string]any{"routes": live}

	if s.ctrl.history != nil {
		entries, err := s.ctrl.history.Recent(20)
		if err == nil {
			out := make([]historyEntry, 0, len(entries))
			for _, e := range entries {
				out = append(out, historyEntry{
					TrackingID: e.TrackingID,
					Hops:       e.Hops,
					Outcome:    e.Outcome,
					FinishedAt: humanize.Time(e.FinishedAt),
				})
			}
			resp["history"] = out
		}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// POST /route — allocate a new circuit for the given public key.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	trackingID, route, err := s.ctrl.Allocate(ctx, body.PublicKey)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tracking_id": trackingID,
		"route":       route,
	})
}

// POST /notify — a hop reports success or failure for one circuit.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Status      string `json:"status"`
		NodeAddress string `json:"node_address"`
		TrackingID  string `json:"tracking_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" || body.NodeAddress == "" || body.TrackingID == "" {
		s.log.Printf("malformed /notify request")
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "status, node_address and tracking_id are required"})
		return
	}

	s.ctrl.Notify(body.TrackingID, body.NodeAddress, body.Status)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /check — block until the circuit named by tracking_id finishes or
// times out, then tear it down.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		TrackingID string `json:"tracking_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TrackingID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "tracking_id has to be sent to identify the route"})
		return
	}

	status, errMsg := s.ctrl.Await(r.Context(), body.TrackingID)
	if errMsg != "" {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
