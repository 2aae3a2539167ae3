// Command originator runs the onion-route client service (spec.md §4.C): it
// serves a minimal index page showing this originator's public key and a
// POST /connect endpoint that drives one onion round trip.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/MichelKrispin/onionroute/internal/config"
	"github.com/MichelKrispin/onionroute/internal/logging"
	"github.com/MichelKrispin/onionroute/internal/originator"
)

func main() {
	port := flag.Int("port", config.EnvIntOr("PORT", 8080), "HTTP server port")
	flag.Parse()

	logger := logging.New("originator")

	drv, err := originator.New()
	if err != nil {
		logger.Fatalf("failed to initialize originator: %v", err)
	}

	srv := originator.NewServer(drv, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Printf("starting originator on :%d", *port)
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatalf("originator server error: %v", err)
	}
}
