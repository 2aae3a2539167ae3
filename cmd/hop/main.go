// Command hop runs a single onion-route forwarding hop (spec.md §4.B).
// Its identity is supplied via PORT, DIRECTORY_NODE, THIS_NODE, TRACKING_ID,
// and PUBLIC_KEY, the same environment contract
// original_source/IntermediateNode/main.py reads.
package main

import (
	"crypto/rsa"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/MichelKrispin/onionroute/internal/config"
	"github.com/MichelKrispin/onionroute/internal/hop"
	"github.com/MichelKrispin/onionroute/internal/logging"
	"github.com/MichelKrispin/onionroute/internal/onion"
)

func main() {
	port := flag.Int("port", config.EnvIntOr("PORT", 0), "HTTP server port")
	directoryNode := flag.String("directory-node", config.EnvOr("DIRECTORY_NODE", "http://127.0.0.1:8888"), "directory service base URL")
	thisNode := flag.String("this-node", config.EnvOr("THIS_NODE", ""), "this hop's externally reachable URL")
	trackingID := flag.String("tracking-id", config.EnvOr("TRACKING_ID", ""), "circuit tracking id this hop belongs to")
	publicKeyPEM := flag.String("public-key", config.EnvOr("PUBLIC_KEY", ""), "originator's PEM-encoded public key")
	keyFile := flag.String("key-file", config.EnvOr("HOP_KEY_FILE", "hop.key.enc"), "sealed private-key file, created on first run and recovered on restart")
	keyPassphrase := flag.String("key-passphrase", config.EnvOr("HOP_SEAL_PASSPHRASE", ""), "passphrase protecting -key-file (required)")
	flag.Parse()

	logger := logging.New("hop")

	if *port == 0 {
		logger.Fatalf("PORT not set. An env variable or -port flag has to be set")
	}
	if *publicKeyPEM == "" {
		logger.Fatalf("PUBLIC_KEY not set. An env variable or -public-key flag has to be set")
	}
	if *keyPassphrase == "" {
		logger.Fatalf("HOP_SEAL_PASSPHRASE not set. An env variable or -key-passphrase flag has to be set")
	}

	clientPublic, err := onion.DecodePublicKeyPEM([]byte(*publicKeyPEM))
	if err != nil {
		logger.Fatalf("invalid PUBLIC_KEY: %v", err)
	}

	priv, err := loadOrCreateKeypair(*keyFile, *keyPassphrase, logger)
	if err != nil {
		logger.Fatalf("failed to load or create private key: %v", err)
	}

	id := hop.Identity{
		ThisNode:      *thisNode,
		DirectoryNode: *directoryNode,
		TrackingID:    *trackingID,
		ClientPublic:  clientPublic,
	}

	fwd := hop.NewWithKey(id, priv, logger)

	srv := hop.NewServer(fwd, id, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Printf("starting hop on :%d (this_node=%s, tracking_id=%s)", *port, *thisNode, *trackingID)
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatalf("hop server error: %v", err)
	}
}

// loadOrCreateKeypair recovers a previously-sealed private key from keyFile,
// or generates a fresh one and seals it there if the file doesn't exist yet
// — the same contract IntermediateNode/main.py's generate_rsa_key/
// get_private_rsa_key implement with private.pem, but encrypted at rest
// rather than written in the clear.
func loadOrCreateKeypair(keyFile, passphrase string, logger *logging.Logger) (*rsa.PrivateKey, error) {
	if _, err := os.Stat(keyFile); err == nil {
		logger.Printf("recovering private key from %s", keyFile)
		return onion.OpenPrivateKey(keyFile, []byte(passphrase))
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	logger.Printf("no existing key at %s, generating a new one", keyFile)
	priv, err := onion.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := onion.SealPrivateKey(keyFile, []byte(passphrase), priv); err != nil {
		return nil, err
	}
	return priv, nil
}
