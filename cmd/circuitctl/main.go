// Command circuitctl is a manual smoke-test CLI: it asks a running
// directory for a route, drives one onion round trip through it to a
// target service, and prints the result. Not part of the core system, in
// the spirit of the small cmd/ probes go-node ships alongside its service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/MichelKrispin/onionroute/internal/originator"
)

func main() {
	directoryURL := flag.String("directory", "http://127.0.0.1:8888", "directory service base URL")
	serviceURL := flag.String("service", "", "destination service URL to connect to (required)")
	flag.Parse()

	if *serviceURL == "" {
		log.Fatal("-service is required")
	}

	drv, err := originator.New()
	if err != nil {
		log.Fatalf("failed to initialize originator: %v", err)
	}

	publicKeyPEM, err := drv.PublicKeyPEM()
	if err != nil {
		log.Fatalf("failed to encode public key: %v", err)
	}

	trackingID, route, err := requestRoute(*directoryURL, string(publicKeyPEM))
	if err != nil {
		log.Fatalf("failed to get route: %v", err)
	}
	fmt.Printf("tracking_id: %s\nroute: %v\n", trackingID, route)

	result, err := drv.Connect(context.Background(), *serviceURL, route)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	fmt.Printf("result: %s\n", result)

	status, checkErr := checkCircuit(*directoryURL, trackingID)
	if checkErr != nil {
		log.Printf("check failed: %v", checkErr)
		return
	}
	fmt.Printf("check status: %s\n", status)
}

func requestRoute(directoryURL, publicKeyPEM string) (trackingID string, route []string, err error) {
	body, _ := json.Marshal(map[string]string{"public_key": publicKeyPEM})
	resp, err := http.Post(directoryURL+"/route", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	var decoded struct {
		TrackingID string   `json:"tracking_id"`
		Route      []string `json:"route"`
		Error      string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", nil, err
	}
	if decoded.Error != "" {
		return "", nil, fmt.Errorf("%s", decoded.Error)
	}
	return decoded.TrackingID, decoded.Route, nil
}

func checkCircuit(directoryURL, trackingID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"tracking_id": trackingID})
	resp, err := http.Post(directoryURL+"/check", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%s", decoded.Error)
	}
	return decoded.Status, nil
}
