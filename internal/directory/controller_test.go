package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MichelKrispin/onionroute/internal/logging"
)

// fakeOrchestrator never actually spawns a process; it just records calls,
// letting controller_test.go exercise Allocate/Notify/Await without os/exec.
type fakeOrchestrator struct {
	mu       sync.Mutex
	launched map[string]HopConfig
	stopped  map[string]bool
	failName string
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{
		launched: make(map[string]HopConfig),
		stopped:  make(map[string]bool),
	}
}

func (f *fakeOrchestrator) Launch(ctx context.Context, name string, cfg HopConfig) error {
	if name == f.failName {
		return &testLaunchError{name: name}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched[name] = cfg
	return nil
}

func (f *fakeOrchestrator) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped[name] = true
	return nil
}

type testLaunchError struct{ name string }

func (e *testLaunchError) Error() string { return "launch failed: " + e.name }

func testLogger() *logging.Logger { return logging.New("test") }

func TestAllocateRejectsEmptyPublicKey(t *testing.T) {
	ctrl := New("https://directory.example.com", newFakeOrchestrator(), nil, testLogger())
	if _, _, err := ctrl.Allocate(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty public key")
	}
}

func TestAllocateProducesThreeDistinctHops(t *testing.T) {
	orch := newFakeOrchestrator()
	ctrl := New("https://directory.example.com", orch, nil, testLogger())

	trackingID, route, err := ctrl.Allocate(context.Background(), "pem-bytes")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if trackingID == "" {
		t.Fatal("expected non-empty tracking_id")
	}
	if len(route) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(route))
	}
	seen := make(map[string]bool)
	for _, hop := range route {
		if seen[hop] {
			t.Fatalf("duplicate hop address %s", hop)
		}
		seen[hop] = true
	}
	if len(orch.launched) != 3 {
		t.Fatalf("expected 3 launches, got %d", len(orch.launched))
	}
}

func TestAllocateReleasesIDsOnLaunchFailure(t *testing.T) {
	orch := newFakeOrchestrator()
	ctrl := New("https://directory.example.com", orch, nil, testLogger())

	// Reserve every id except 1..3 so the draw must include 1, and make
	// the launch of node-001 fail.
	for id := 4; id <= maxNodeID; id++ {
		ctrl.usedIDs[id] = struct{}{}
	}
	orch.failName = "node-001"

	before := len(ctrl.usedIDs)
	_, _, err := ctrl.Allocate(context.Background(), "pem-bytes")
	after := len(ctrl.usedIDs)
	if err == nil {
		t.Fatalf("expected Allocate to fail when node-001's launch fails, reserved ids grew by %d", after-before)
	}
	if after != before {
		t.Fatalf("expected reserved ids to be released on failure, before=%d after=%d", before, after)
	}
}

func TestNotifyAndAwaitSuccess(t *testing.T) {
	orch := newFakeOrchestrator()
	ctrl := New("https://directory.example.com", orch, nil, testLogger())

	trackingID, route, err := ctrl.Allocate(context.Background(), "pem-bytes")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		for _, hop := range route {
			ctrl.Notify(trackingID, hop, "success")
			ctrl.Notify(trackingID, hop, "success")
		}
	}()

	status, errMsg := ctrl.Await(context.Background(), trackingID)
	if errMsg != "" {
		t.Fatalf("unexpected error: %s", errMsg)
	}
	if status != "success" {
		t.Fatalf("expected success, got %q", status)
	}

	for _, hop := range route {
		id := extractNodeID(hop)
		name := nodeURL(id)
		if !orch.stopped[name] {
			t.Fatalf("expected %s to be torn down", name)
		}
	}
}

func TestNotifyFailurePropagatesAsError(t *testing.T) {
	orch := newFakeOrchestrator()
	ctrl := New("https://directory.example.com", orch, nil, testLogger())

	trackingID, route, err := ctrl.Allocate(context.Background(), "pem-bytes")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		ctrl.Notify(trackingID, route[0], "decrypt failed")
	}()

	status, errMsg := ctrl.Await(context.Background(), trackingID)
	if status != "" {
		t.Fatalf("expected empty status on failure, got %q", status)
	}
	if errMsg == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestAwaitUnknownTrackingID(t *testing.T) {
	ctrl := New("https://directory.example.com", newFakeOrchestrator(), nil, testLogger())
	status, errMsg := ctrl.Await(context.Background(), "does-not-exist")
	if status != "" || errMsg == "" {
		t.Fatalf("expected unknown-id error, got status=%q err=%q", status, errMsg)
	}
}

func TestNotifyForUnknownTrackingIDIsIgnored(t *testing.T) {
	ctrl := New("https://directory.example.com", newFakeOrchestrator(), nil, testLogger())
	// Must not panic: the directory always reports success to /notify
	// callers even for an id it doesn't recognize (§4.D).
	ctrl.Notify("ghost", "node-042", "success")
}

func TestAwaitTimesOutWithoutNotify(t *testing.T) {
	ctrl := New("https://directory.example.com", newFakeOrchestrator(), nil, testLogger())
	trackingID, _, err := ctrl.Allocate(context.Background(), "pem-bytes")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	start := time.Now()
	status, errMsg := ctrl.Await(context.Background(), trackingID)
	elapsed := time.Since(start)

	if status != "" || errMsg != "timeout" {
		t.Fatalf("expected timeout, got status=%q err=%q", status, errMsg)
	}
	if elapsed < checkTimeout {
		t.Fatalf("returned before checkTimeout elapsed: %v", elapsed)
	}
}
