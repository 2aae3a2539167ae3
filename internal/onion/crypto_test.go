package onion

import (
	"bytes"
	"crypto/rsa"
	"testing"
)

func mustKeypair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return priv
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	priv := mustKeypair(t)

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("GET / HTTP/1.1\r\nHost: example\r\n\r\n"),
		bytes.Repeat([]byte("x"), 100*1024),
	}

	for _, pt := range plaintexts {
		wrappedKey, nonce, ciphertext, err := Wrap(&priv.PublicKey, pt)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		if len(wrappedKey) != KeyBits/8 {
			t.Errorf("wrapped key size = %d, want %d", len(wrappedKey), KeyBits/8)
		}
		if len(nonce) != nonceSize {
			t.Errorf("nonce size = %d, want %d", len(nonce), nonceSize)
		}

		got, err := Unwrap(priv, wrappedKey, nonce, ciphertext)
		if err != nil {
			t.Fatalf("Unwrap: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(pt))
		}
	}
}

func TestUnwrapRejectsTamperedCiphertext(t *testing.T) {
	priv := mustKeypair(t)
	wrappedKey, nonce, ciphertext, err := Wrap(&priv.PublicKey, []byte("payload"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	ciphertext[0] ^= 0xFF

	if _, err := Unwrap(priv, wrappedKey, nonce, ciphertext); err == nil {
		t.Fatal("expected Unwrap to fail on tampered ciphertext")
	}
}

func TestUnwrapRejectsWrongKey(t *testing.T) {
	priv1 := mustKeypair(t)
	priv2 := mustKeypair(t)

	wrappedKey, nonce, ciphertext, err := Wrap(&priv1.PublicKey, []byte("payload"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := Unwrap(priv2, wrappedKey, nonce, ciphertext); err == nil {
		t.Fatal("expected Unwrap to fail with mismatched private key")
	}
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	priv := mustKeypair(t)
	pemBytes, err := EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM: %v", err)
	}
	got, err := DecodePublicKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("DecodePublicKeyPEM: %v", err)
	}
	if got.N.Cmp(priv.PublicKey.N) != 0 {
		t.Error("decoded modulus does not match original")
	}
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	priv := mustKeypair(t)
	pemBytes := EncodePrivateKeyPEM(priv)
	got, err := DecodePrivateKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("DecodePrivateKeyPEM: %v", err)
	}
	if got.D.Cmp(priv.D) != 0 {
		t.Error("decoded private exponent does not match original")
	}
}

func TestNestedLayers(t *testing.T) {
	hop1 := mustKeypair(t)
	hop2 := mustKeypair(t)
	hop3 := mustKeypair(t)

	request := []byte("GET / HTTP/1.1\r\nHost: service\r\n\r\n")

	// Layer from innermost (hop3, last hop) to outermost (hop1, first hop),
	// exactly as the originator builds the nested packet (§8 property 3).
	k3, n3, c3, err := Wrap(&hop3.PublicKey, request)
	if err != nil {
		t.Fatalf("wrap hop3: %v", err)
	}
	frame3 := Encode(k3, n3, NoneAddress, c3)

	k2, n2, c2, err := Wrap(&hop2.PublicKey, frame3)
	if err != nil {
		t.Fatalf("wrap hop2: %v", err)
	}
	frame2 := Encode(k2, n2, "https://hop3.example:1003", c2)

	k1, n1, c1, err := Wrap(&hop1.PublicKey, frame2)
	if err != nil {
		t.Fatalf("wrap hop1: %v", err)
	}
	frame1 := Encode(k1, n1, "https://hop2.example:1002", c1)

	// Peel in forward order: hop1 then hop2 then hop3.
	f1, err := Decode(frame1)
	if err != nil {
		t.Fatalf("decode frame1: %v", err)
	}
	if f1.Address != "https://hop2.example:1002" {
		t.Errorf("hop1 address = %q", f1.Address)
	}
	inner1, err := Unwrap(hop1, f1.WrappedKey, f1.Nonce, f1.Ciphertext)
	if err != nil {
		t.Fatalf("unwrap hop1: %v", err)
	}
	if !bytes.Equal(inner1, frame2) {
		t.Fatal("hop1 peel did not yield frame2")
	}

	f2, err := Decode(inner1)
	if err != nil {
		t.Fatalf("decode frame2: %v", err)
	}
	if f2.Address != "https://hop3.example:1003" {
		t.Errorf("hop2 address = %q", f2.Address)
	}
	inner2, err := Unwrap(hop2, f2.WrappedKey, f2.Nonce, f2.Ciphertext)
	if err != nil {
		t.Fatalf("unwrap hop2: %v", err)
	}
	if !bytes.Equal(inner2, frame3) {
		t.Fatal("hop2 peel did not yield frame3")
	}

	f3, err := Decode(inner2)
	if err != nil {
		t.Fatalf("decode frame3: %v", err)
	}
	if f3.Address != NoneAddress {
		t.Errorf("hop3 address = %q, want terminator", f3.Address)
	}
	inner3, err := Unwrap(hop3, f3.WrappedKey, f3.Nonce, f3.Ciphertext)
	if err != nil {
		t.Fatalf("unwrap hop3: %v", err)
	}
	if !bytes.Equal(inner3, request) {
		t.Fatal("final peel did not reproduce the original request")
	}
}
