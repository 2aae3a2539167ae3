// Command directory runs the onion-route directory/controller service
// (spec.md §4.D). Grounded on keysaver-server/main.go's flag+env+server
// bootstrap pattern.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MichelKrispin/onionroute/internal/config"
	"github.com/MichelKrispin/onionroute/internal/directory"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

func main() {
	port := flag.Int("port", config.EnvIntOr("PORT", 8888), "HTTP server port")
	// The default must contain a "directory" segment: hop URLs are derived
	// from this by replacing "directory" with "node-<id>" (§4.D), the same
	// way the reference's GCloud Run service names (directory, node-014, ...)
	// differ only in that segment.
	baseURL := flag.String("base-url", config.EnvOr("DIRECTORY_URL", "http://directory:8888"), "this directory's externally reachable URL; must contain a \"directory\" segment")
	dbPath := flag.String("db", config.EnvOr("DIRECTORY_DB", "circuits.db"), "SQLite path for the circuit history log")
	launchCmd := flag.String("launch-cmd", config.EnvOr("HOP_LAUNCH_CMD", "go run ./cmd/hop"), "shell command template used to spawn a hop process")
	flag.Parse()

	logger := logging.New("directory")

	if !strings.Contains(*baseURL, "directory") {
		logger.Fatalf("-base-url %q must contain a \"directory\" segment so hop URLs can be derived from it", *baseURL)
	}

	history, err := directory.OpenHistory(*dbPath)
	if err != nil {
		logger.Fatalf("failed to open history db: %v", err)
	}
	defer history.Close()

	orch := directory.NewProcessOrchestrator(*launchCmd, logger)
	ctrl := directory.New(*baseURL, orch, history, logger)
	srv := directory.NewServer(ctrl, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Printf("starting directory service on :%d", *port)
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatalf("directory server error: %v", err)
	}
}
