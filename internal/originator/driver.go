// Package originator implements the client side of spec.md §4.C: it fetches
// each hop's public key, wraps a request in nested onion layers, sends it to
// the first hop, and peels the nested response. Grounded on
// original_source/Originator/client.py's client() function.
package originator

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MichelKrispin/onionroute/internal/onion"
)

// Driver holds the originator's own RSA keypair (used to decrypt the final
// response) and an HTTP client for talking to hops.
type Driver struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	client     *http.Client
}

// New builds a Driver with its own freshly-generated RSA keypair.
func New() (*Driver, error) {
	priv, err := onion.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate originator keypair: %w", err)
	}
	return &Driver{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// PublicKeyPEM returns this originator's PEM-encoded public key, shown on
// the placeholder index page and sent to the directory's /route.
func (d *Driver) PublicKeyPEM() ([]byte, error) {
	return onion.EncodePublicKeyPEM(d.publicKey)
}

// Connect drives one full round trip through route to service: fetch each
// hop's public key, wrap a synthetic HTTP GET request in nested onion
// layers (innermost layer first, per the route reversed), POST to the first
// hop, and unwrap the nested reply down to the final plaintext.
func (d *Driver) Connect(ctx context.Context, service string, route []string) (string, error) {
	if len(route) == 0 {
		return "", fmt.Errorf("route must contain at least one hop")
	}

	// Reverse so wrapping proceeds from the exit hop (closest to the
	// destination) inward to the entry hop (closest to the originator),
	// matching client.py's addresses.reverse().
	reversed := make([]string, len(route))
	for i, addr := range route {
		reversed[len(route)-1-i] = addr
	}

	publicKeys := make([]*rsa.PublicKey, len(reversed))
	for i, addr := range reversed {
		pub, err := d.fetchPublicKey(ctx, addr)
		if err != nil {
			return "", fmt.Errorf("getting public keys from nodes: %w", err)
		}
		publicKeys[i] = pub
	}

	// addresses = [service] + reversed, then the last element (the entry
	// hop, "first_address") is popped and used as the address the
	// outermost frame is POSTed to. Layer i is wrapped under
	// publicKeys[i] and carries addresses[i] as its next-hop address.
	addresses := append([]string{service}, reversed...)
	firstAddress := addresses[len(addresses)-1]
	addresses = addresses[:len(addresses)-1]

	content := []byte("GET / HTTP/1.1\r\nHost: " + service + "\r\n\r\n")
	for i, addr := range addresses {
		wrappedKey, nonce, ciphertext, err := onion.Wrap(publicKeys[i], content)
		if err != nil {
			return "", fmt.Errorf("wrapping up package: %w", err)
		}
		content = onion.Encode(wrappedKey, nonce, addr, ciphertext)
	}

	replyFrame, err := d.sendFirst(ctx, firstAddress, content)
	if err != nil {
		return "", fmt.Errorf("making request to first node: %w", err)
	}

	data := replyFrame
	for i := 0; i < len(addresses); i++ {
		frame, err := onion.Decode(data)
		if err != nil {
			return "", fmt.Errorf("unwrapping package: %w", err)
		}
		plaintext, err := d.decryptLayer(frame)
		if err != nil {
			return "", fmt.Errorf("unwrapping package: %w", err)
		}
		data = plaintext
	}

	return string(data), nil
}

// decryptLayer peels one response layer with the originator's own private
// key; every hop on the return path wraps its reply under the originator's
// public key.
func (d *Driver) decryptLayer(frame *onion.Frame) ([]byte, error) {
	return onion.Unwrap(d.privateKey, frame.WrappedKey, frame.Nonce, frame.Ciphertext)
}

func (d *Driver) fetchPublicKey(ctx context.Context, hopAddress string) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hopAddress+"/get-public-key", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	pemBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return onion.DecodePublicKeyPEM(pemBytes)
}

func (d *Driver) sendFirst(ctx context.Context, firstAddress string, content []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, firstAddress, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-binary")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
