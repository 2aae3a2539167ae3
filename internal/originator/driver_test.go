package originator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MichelKrispin/onionroute/internal/hop"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

func testLogger() *logging.Logger { return logging.New("test") }

// TestConnectThreeHopRoundTrip wires three real hop.Forwarder servers behind
// httptest servers and a real destination service, then drives Driver.Connect
// through all three exactly as spec.md's originator would. This exercises
// onion, hop, and originator together end to end.
func TestConnectThreeHopRoundTrip(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello from service"))
	}))
	defer service.Close()

	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer directory.Close()

	drv, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var hopServers []*httptest.Server
	var hopURLs []string
	for i := 0; i < 3; i++ {
		fwd, err := hop.New(hop.Identity{
			ThisNode:      "",
			DirectoryNode: directory.URL,
			TrackingID:    "tid",
			ClientPublic:  drv.publicKey,
		}, testLogger())
		if err != nil {
			t.Fatalf("hop.New: %v", err)
		}
		srv := httptest.NewServer(hop.NewServer(fwd, hop.Identity{}, testLogger()).Handler())
		hopServers = append(hopServers, srv)
		hopURLs = append(hopURLs, srv.URL)
	}
	defer func() {
		for _, s := range hopServers {
			s.Close()
		}
	}()

	result, err := drv.Connect(context.Background(), service.URL, hopURLs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !strings.Contains(result, "hello from service") {
		t.Fatalf("expected final result to contain the service reply, got %q", result)
	}
}

func TestConnectRejectsEmptyRoute(t *testing.T) {
	drv, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := drv.Connect(context.Background(), "http://example.com", nil); err == nil {
		t.Fatal("expected error for empty route")
	}
}
