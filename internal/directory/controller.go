// Package directory implements the circuit controller of spec.md §4.D: it
// allocates three-hop circuits, tracks per-hop acknowledgements, exposes a
// completion-wait operation, and tears circuits down. Grounded on
// original_source/DirectoryNode/main.py's routes dict and /route, /notify,
// /check handlers, restructured per §9's redesign note into an explicit
// struct with no package-level global state.
package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MichelKrispin/onionroute/internal/apperrors"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

// initialAckCount is the number of success notifications expected per hop
// per circuit: one for UNWRAP/NOTIFY(parse), one for WRAP_RESPONSE/NOTIFY(wrap).
const initialAckCount = 2

// minNodeID and maxNodeID bound node-identifier allocation (§3).
const minNodeID = 1
const maxNodeID = 99

// checkTimeout bounds how long /check waits for a circuit to reach a
// terminal state before reporting timeout (§4.D: "approximately one second"
// in the reference; we keep that as the default).
const checkTimeout = 1 * time.Second

// hopStatus is a circuit's per-hop bookkeeping entry (§3's "pending"
// mapping): either a remaining-ack counter (err == "") or a failure
// descriptor (err != "").
type hopStatus struct {
	remaining int
	err       string
}

func (h *hopStatus) done() bool   { return h.err == "" && h.remaining <= 0 }
func (h *hopStatus) failed() bool { return h.err != "" }

// Circuit is one provisioned three-hop route (§3's "Circuit record").
type Circuit struct {
	TrackingID string
	Hops       []string
	CreatedAt  time.Time

	pending map[string]*hopStatus
	cond    *sync.Cond
}

// HopSnapshot is a hop's current state, used by the GET / diagnostic.
type HopSnapshot struct {
	Address   string
	Remaining int
	Err       string
}

// Snapshot is a read-only view of a Circuit for diagnostic rendering.
type Snapshot struct {
	TrackingID string
	Hops       []HopSnapshot
	CreatedAt  time.Time
}

// Controller owns the circuit map. It is the explicit, non-global state
// object §9's redesign note calls for: one mutex guards the map, and each
// circuit carries its own sync.Cond (backed by the same mutex) so /check can
// block on a condition instead of busy-polling.
type Controller struct {
	mu       sync.Mutex
	circuits map[string]*Circuit
	usedIDs  map[int]struct{}

	baseURL string
	orch    Orchestrator
	history *History
	log     *logging.Logger
}

// New builds a Controller. baseURL is this directory's own externally
// reachable URL (used to derive each hop's node-<id> URL by substituting the
// "directory" path segment, per §4.D). history may be nil to disable the
// SQLite audit trail.
func New(baseURL string, orch Orchestrator, history *History, log *logging.Logger) *Controller {
	return &Controller{
		circuits: make(map[string]*Circuit),
		usedIDs:  make(map[int]struct{}),
		baseURL:  baseURL,
		orch:     orch,
		history:  history,
		log:      log,
	}
}

// allocateNodeIDs draws three node identifiers in [1,99] that are pairwise
// distinct AND absent from the live set (c.usedIDs). §9 flags the source's
// predicate (OR instead of AND) as a bug that can admit duplicates; this is
// the corrected version — REDESIGN FLAG 4.
func (c *Controller) allocateNodeIDs() ([]int, error) {
	const maxAttempts = 10000
	chosen := make(map[int]struct{}, 3)
	ids := make([]int, 0, 3)

	for attempts := 0; len(ids) < 3; attempts++ {
		if attempts >= maxAttempts {
			return nil, &apperrors.OrchestratorError{Msg: "could not allocate distinct node identifiers: node-id space exhausted"}
		}
		candidate := randNodeID()
		if _, inThisDraw := chosen[candidate]; inThisDraw {
			continue
		}
		if _, live := c.usedIDs[candidate]; live {
			continue
		}
		chosen[candidate] = struct{}{}
		ids = append(ids, candidate)
	}
	return ids, nil
}

func nodeURL(id int) string {
	return fmt.Sprintf("node-%03d", id)
}

// hopURLFromBase substitutes the "directory" segment of the controller's
// own base URL with node-<id>, per §4.D. Returns an error if baseURL has no
// "directory" segment to substitute, since a no-op substitution would hand
// out three identical hop URLs instead of three distinct ones.
func hopURLFromBase(baseURL string, id int) (string, error) {
	replaced := strings.Replace(baseURL, "directory", nodeURL(id), 1)
	if replaced == baseURL {
		return "", &apperrors.OrchestratorError{Msg: fmt.Sprintf("base URL %q contains no \"directory\" segment to derive a hop URL from", baseURL)}
	}
	return replaced, nil
}

// Allocate implements POST /route: it allocates three distinct node
// identifiers, commands the orchestrator to launch three hop processes in
// parallel, and records a fresh circuit with every hop's counter
// initialized to 2. It blocks until all three launches complete (the
// reference contract).
func (c *Controller) Allocate(ctx context.Context, publicKeyPEM string) (trackingID string, route []string, err error) {
	if publicKeyPEM == "" {
		return "", nil, &apperrors.BadRequestError{Msg: "public_key has to be sent to get a route"}
	}

	c.mu.Lock()
	ids, err := c.allocateNodeIDs()
	if err != nil {
		c.mu.Unlock()
		return "", nil, err
	}
	for _, id := range ids {
		c.usedIDs[id] = struct{}{}
	}
	c.mu.Unlock()

	trackingID = strings.ReplaceAll(uuid.New().String(), "-", "")
	hopURLs := make([]string, 3)
	for i, id := range ids {
		hopURL, urlErr := hopURLFromBase(c.baseURL, id)
		if urlErr != nil {
			c.mu.Lock()
			for _, id := range ids {
				delete(c.usedIDs, id)
			}
			c.mu.Unlock()
			return "", nil, urlErr
		}
		hopURLs[i] = hopURL
	}

	if launchErr := c.launchAll(ctx, ids, hopURLs, trackingID, publicKeyPEM); launchErr != nil {
		c.mu.Lock()
		for _, id := range ids {
			delete(c.usedIDs, id)
		}
		c.mu.Unlock()
		return "", nil, launchErr
	}

	circuit := &Circuit{
		TrackingID: trackingID,
		Hops:       append([]string(nil), hopURLs...),
		CreatedAt:  time.Now(),
		pending:    make(map[string]*hopStatus, 3),
	}
	circuit.cond = sync.NewCond(&c.mu)
	for _, hopURL := range hopURLs {
		circuit.pending[hopURL] = &hopStatus{remaining: initialAckCount}
	}

	c.mu.Lock()
	c.circuits[trackingID] = circuit
	c.mu.Unlock()

	return trackingID, hopURLs, nil
}

// launchAll fans out three orchestrator Launch calls in parallel and joins
// before returning, per §5's "fan-out of three orchestrator invocations,
// join before responding to /route".
func (c *Controller) launchAll(ctx context.Context, ids []int, hopURLs []string, trackingID, publicKeyPEM string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(ids))

	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg := HopConfig{
				Port:          8000 + ids[i],
				DirectoryNode: c.baseURL,
				ThisNode:      hopURLs[i],
				TrackingID:    trackingID,
				PublicKeyPEM:  publicKeyPEM,
			}
			if err := c.orch.Launch(ctx, nodeURL(ids[i]), cfg); err != nil {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return &apperrors.OrchestratorError{Msg: "launch failed: " + e.Error()}
		}
	}
	return nil
}

// Notify implements POST /notify. Unknown tracking_ids or node_addresses are
// logged and ignored; the endpoint always reports success to the caller
// (§4.D).
func (c *Controller) Notify(trackingID, nodeAddress, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	circuit, ok := c.circuits[trackingID]
	if !ok {
		c.log.Printf("notify for unknown tracking_id=%s ignored", trackingID)
		return
	}
	hop, ok := circuit.pending[nodeAddress]
	if !ok {
		c.log.Printf("notify for unknown node_address=%s (tracking_id=%s) ignored", nodeAddress, trackingID)
		return
	}

	if status == "success" {
		hop.remaining--
		if hop.remaining < 0 {
			hop.remaining = 0
		}
	} else {
		hop.err = status
	}
	circuit.cond.Broadcast()
}

// Await implements POST /check: it blocks until the circuit reaches a
// terminal state or the deadline elapses (§9's condition-variable redesign,
// replacing the source's 1000x1ms busy-poll), then tears the circuit down
// and removes its record.
func (c *Controller) Await(ctx context.Context, trackingID string) (status string, errMsg string) {
	c.mu.Lock()
	circuit, ok := c.circuits[trackingID]
	if !ok {
		c.mu.Unlock()
		return "", "unknown tracking_id"
	}

	deadline := time.Now().Add(checkTimeout)
	status, errMsg = "", ""

	for {
		if s, e, terminal := circuitTerminalState(circuit); terminal {
			status, errMsg = s, e
			break
		}
		if time.Now().After(deadline) {
			errMsg = "timeout"
			break
		}
		waitUntil(circuit.cond, deadline)
	}

	hopURLs := append([]string(nil), circuit.Hops...)
	delete(c.circuits, trackingID)
	for _, hopURL := range hopURLs {
		for id := range c.usedIDs {
			if strings.Contains(hopURL, nodeURL(id)) {
				delete(c.usedIDs, id)
			}
		}
	}
	c.mu.Unlock()

	c.teardownAll(hopURLs)
	if c.history != nil {
		outcome := status
		if outcome == "" {
			outcome = "error: " + errMsg
		}
		c.history.Record(trackingID, hopURLs, outcome, time.Now())
	}

	return status, errMsg
}

// circuitTerminalState reports the circuit's terminal status, if any.
// Caller must hold c.mu.
func circuitTerminalState(circuit *Circuit) (status, errMsg string, terminal bool) {
	doneCount := 0
	for hopURL, hop := range circuit.pending {
		if hop.failed() {
			return "", fmt.Sprintf("error at %s: %s", hopURL, hop.err), true
		}
		if hop.done() {
			doneCount++
		}
	}
	if doneCount == len(circuit.pending) {
		return "success", "", true
	}
	return "", "", false
}

// waitUntil blocks on cond until it's signalled or deadline passes. sync.Cond
// has no native deadline support, so we wake a timer goroutine that
// broadcasts once the deadline elapses — the same pattern used to turn a
// Cond into a boundedly-blocking wait without spinning.
func waitUntil(cond *sync.Cond, deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}
	timer := time.AfterFunc(remaining, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// teardownAll fires the three orchestrator Stop commands in parallel and
// swallows failures (§4.D, §7: teardown failures are logged, not surfaced).
func (c *Controller) teardownAll(hopURLs []string) {
	var wg sync.WaitGroup
	for _, hopURL := range hopURLs {
		wg.Add(1)
		go func(hopURL string) {
			defer wg.Done()
			id := extractNodeID(hopURL)
			if err := c.orch.Stop(context.Background(), nodeURL(id)); err != nil {
				c.log.Printf("teardown of %s failed: %v", hopURL, err)
			}
		}(hopURL)
	}
	wg.Wait()
}

func extractNodeID(hopURL string) int {
	idx := strings.Index(hopURL, "node-")
	if idx < 0 || idx+8 > len(hopURL) {
		return 0
	}
	n, _ := strconv.Atoi(hopURL[idx+5 : idx+8])
	return n
}

// List returns a snapshot of every live circuit, for the GET / diagnostic.
func (c *Controller) List() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Snapshot, 0, len(c.circuits))
	for _, circuit := range c.circuits {
		s := Snapshot{TrackingID: circuit.TrackingID, CreatedAt: circuit.CreatedAt}
		for hopURL, hop := range circuit.pending {
			s.Hops = append(s.Hops, HopSnapshot{Address: hopURL, Remaining: hop.remaining, Err: hop.err})
		}
		out = append(out, s)
	}
	return out
}
