package onion

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	wrappedKey := make([]byte, 256)
	for i := range wrappedKey {
		wrappedKey[i] = byte(i)
	}
	nonce := make([]byte, 16)
	for i := range nonce {
		nonce[i] = byte(255 - i)
	}
	address := "https://node-014.example:8443"
	ciphertext := []byte("hello onion world")

	buf := Encode(wrappedKey, nonce, address, ciphertext)

	frame, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(frame.WrappedKey) != string(wrappedKey) {
		t.Errorf("wrapped key mismatch")
	}
	if string(frame.Nonce) != string(nonce) {
		t.Errorf("nonce mismatch")
	}
	if frame.Address != address {
		t.Errorf("address = %q, want %q", frame.Address, address)
	}
	if string(frame.Ciphertext) != string(ciphertext) {
		t.Errorf("ciphertext mismatch")
	}

	again := Encode(frame.WrappedKey, frame.Nonce, frame.Address, frame.Ciphertext)
	if string(again) != string(buf) {
		t.Errorf("re-encode did not reproduce original bytes")
	}
}

func TestDecodeEmptyContent(t *testing.T) {
	buf := Encode(make([]byte, 256), make([]byte, 16), NoneAddress, nil)
	frame, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frame.Ciphertext) != 0 {
		t.Errorf("expected empty ciphertext, got %d bytes", len(frame.Ciphertext))
	}
	if frame.Address != NoneAddress {
		t.Errorf("address = %q, want %q", frame.Address, NoneAddress)
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := Encode(make([]byte, 256), make([]byte, 16), "https://h:1", []byte("content"))
	_, err := Decode(buf[:len(buf)-2])
	if err == nil {
		t.Fatal("expected FrameError on truncated buffer")
	}
	if _, ok := err.(*FrameError); !ok {
		t.Errorf("expected *FrameError, got %T", err)
	}
}

func TestDecodeZeroAddressSize(t *testing.T) {
	// Hand-build a frame with as=0, which must be rejected (§3 invariant as >= 1).
	buf := make([]byte, headerSize)
	// ks=0, as=0, cs=0 — all zero header, no body.
	_, err := Decode(buf)
	if err == nil {
		t.Fatal("expected error for address_size == 0")
	}
}

func TestDecodeShorterThanHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for buffer shorter than header")
	}
}
