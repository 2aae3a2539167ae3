// Package hop implements a single forwarding hop of spec.md §4.B: it peels
// one onion layer off an incoming frame, reports the outcome to the
// directory, forwards the recovered content to the next hop or destination,
// wraps the reply in a fresh layer, and reports that outcome too. Grounded
// on original_source/IntermediateNode/main.py's node() handler.
package hop

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MichelKrispin/onionroute/internal/apperrors"
	"github.com/MichelKrispin/onionroute/internal/logging"
	"github.com/MichelKrispin/onionroute/internal/onion"
)

// Identity is this hop's fixed configuration, sourced from the environment
// variables the orchestrator sets at launch (PORT, DIRECTORY_NODE,
// THIS_NODE, TRACKING_ID, PUBLIC_KEY).
type Identity struct {
	ThisNode      string
	DirectoryNode string
	TrackingID    string
	ClientPublic  *rsa.PublicKey
}

// Forwarder runs the per-request state machine DECODE -> UNWRAP -> NOTIFY ->
// FORWARD -> RECV_INNER -> WRAP_RESPONSE -> NOTIFY -> RETURN. One Forwarder
// is shared by every request this hop process serves; its RSA keypair is
// generated once at startup and reused, fixing the reference's
// regenerate-per-call bug in /get-public-key.
type Forwarder struct {
	id         Identity
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	client     *http.Client
	log        *logging.Logger
}

// New builds a Forwarder, generating a fresh RSA keypair immediately so
// every later call to PublicKeyPEM returns the same key. Callers that need
// the key to survive a restart (cmd/hop) should load or seal it themselves
// via internal/onion's keystore and construct with NewWithKey instead.
func New(id Identity, log *logging.Logger) (*Forwarder, error) {
	priv, err := onion.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate hop keypair: %w", err)
	}
	return NewWithKey(id, priv, log), nil
}

// NewWithKey builds a Forwarder around an already-generated or
// already-recovered keypair, so PublicKeyPEM stays stable across a process
// restart when priv came from onion.OpenPrivateKey.
func NewWithKey(id Identity, priv *rsa.PrivateKey, log *logging.Logger) *Forwarder {
	return &Forwarder{
		id:         id,
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// PublicKeyPEM returns this hop's PEM-encoded public key, generated once at
// construction. REDESIGN FLAG: the reference regenerates and overwrites its
// key pair on every GET /get-public-key call, which would invalidate any
// layer already wrapped against the previous key.
func (f *Forwarder) PublicKeyPEM() ([]byte, error) {
	return onion.EncodePublicKeyPEM(f.publicKey)
}

// Handle processes one incoming onion frame: unwrap, notify, forward, wrap
// the response, notify again, and return the wrapped reply bytes.
func (f *Forwarder) Handle(ctx context.Context, rawFrame []byte) ([]byte, error) {
	nextHost, content, parseErr := f.unwrap(rawFrame)

	parseStatus := "success"
	if parseErr != nil {
		parseStatus = parseErr.Error()
	}
	f.notify(ctx, parseStatus, f.id.ThisNode, f.id.TrackingID)
	if parseErr != nil {
		return nil, parseErr
	}

	replyBody, forwardErr := f.forward(ctx, nextHost, content)

	wrapStatus := "success"
	var wrapped []byte
	if forwardErr != nil {
		wrapStatus = forwardErr.Error()
	} else {
		w, err := f.wrapResponse(replyBody)
		if err != nil {
			wrapStatus = err.Error()
			forwardErr = err
		} else {
			wrapped = w
		}
	}

	// REDESIGN FLAG: the reference's second /notify call sends
	// {'status', 'public_key'} instead of the {'status', 'node_address',
	// 'tracking_id'} shape the directory's controller expects, so the
	// directory's second decrement for this hop never lands. Both calls
	// use the same payload shape here.
	f.notify(ctx, wrapStatus, f.id.ThisNode, f.id.TrackingID)

	if forwardErr != nil {
		return nil, forwardErr
	}
	return wrapped, nil
}

// unwrap decodes the frame and recovers the next hop address and plaintext
// content meant for it.
func (f *Forwarder) unwrap(rawFrame []byte) (nextHost string, content []byte, err error) {
	frame, err := onion.Decode(rawFrame)
	if err != nil {
		return "", nil, err
	}
	plaintext, err := onion.Unwrap(f.privateKey, frame.WrappedKey, frame.Nonce, frame.Ciphertext)
	if err != nil {
		return "", nil, err
	}
	return frame.Address, plaintext, nil
}

// forward sends content to nextHost: a GET if content starts with a bare
// "GET " request line (last hop to the HTTP service), otherwise a POST of
// the opaque binary content (intermediate hop).
func (f *Forwarder) forward(ctx context.Context, nextHost string, content []byte) ([]byte, error) {
	var resp *http.Response
	var err error

	if bytes.HasPrefix(content, []byte("GET ")) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, nextHost, nil)
		if reqErr != nil {
			return nil, &apperrors.UpstreamError{Msg: reqErr.Error()}
		}
		resp, err = f.client.Do(req)
	} else {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, nextHost, bytes.NewReader(content))
		if reqErr != nil {
			return nil, &apperrors.UpstreamError{Msg: reqErr.Error()}
		}
		req.Header.Set("Content-Type", "application/x-binary")
		resp, err = f.client.Do(req)
	}
	if err != nil {
		return nil, &apperrors.UpstreamError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.UpstreamError{Msg: err.Error()}
	}
	return body, nil
}

// wrapResponse re-encrypts the upstream reply for the original client and
// frames it as a terminal layer (no further address).
func (f *Forwarder) wrapResponse(content []byte) ([]byte, error) {
	wrappedKey, nonce, ciphertext, err := onion.Wrap(f.id.ClientPublic, content)
	if err != nil {
		return nil, err
	}
	return onion.Encode(wrappedKey, nonce, onion.NoneAddress, ciphertext), nil
}

// notify reports a status to the directory's /notify endpoint. Transport
// failures are logged and swallowed (§7): a hop never lets a notify failure
// abort the request it's forwarding.
func (f *Forwarder) notify(ctx context.Context, status, nodeAddress, trackingID string) {
	payload := map[string]string{
		"status":       status,
		"node_address": nodeAddress,
		"tracking_id":  trackingID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		f.log.Printf("notify marshal failed: %v", err)
		return
	}

	url := f.id.DirectoryNode + "/notify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		f.log.Printf("notify request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Printf("notify transport error: %v", &apperrors.NotifyTransportError{Msg: err.Error()})
		return
	}
	resp.Body.Close()
}
