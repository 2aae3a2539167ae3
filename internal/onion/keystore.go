package onion

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// keystoreMagic tags a sealed private-key file on disk.
var keystoreMagic = []byte("HOPK1")

const saltSize = 16

// kdf derives a 32-byte sealing key from a passphrase and salt using
// Argon2id, the same parameters go-node/env_encrypt.go uses for env.enc.
func kdf(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 2, 64*1024, 1, chacha20poly1305.KeySize)
}

// SealPrivateKey encrypts priv's PKCS#1 PEM encoding under a key derived
// from passphrase and writes MAGIC|salt|nonce|len|ciphertext to path. This
// is how a hop satisfies §4.A's "persist to durable storage so a restart
// within the circuit's lifetime recovers the same private key".
func SealPrivateKey(path string, passphrase []byte, priv *rsa.PrivateKey) error {
	plain := EncodePrivateKeyPEM(priv)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key := kdf(passphrase, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ct := aead.Seal(nil, nonce, plain, nil)

	out := make([]byte, 0, len(keystoreMagic)+saltSize+len(nonce)+4+len(ct))
	out = append(out, keystoreMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(plain)))
	out = append(out, lbuf[:]...)
	out = append(out, ct...)

	return os.WriteFile(path, out, 0o600)
}

// OpenPrivateKey decrypts a file written by SealPrivateKey.
func OpenPrivateKey(path string, passphrase []byte) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	min := len(keystoreMagic) + saltSize + chacha20poly1305.NonceSizeX + 4
	if len(b) < min {
		return nil, errors.New("onion: sealed keystore file too short")
	}
	if string(b[:len(keystoreMagic)]) != string(keystoreMagic) {
		return nil, errors.New("onion: bad keystore magic")
	}
	off := len(keystoreMagic)
	salt := b[off : off+saltSize]
	off += saltSize
	nonce := b[off : off+chacha20poly1305.NonceSizeX]
	off += chacha20poly1305.NonceSizeX
	off += 4 // length prefix, informational only
	ct := b[off:]

	key := kdf(passphrase, salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.New("onion: keystore decrypt failed (wrong passphrase?)")
	}
	return DecodePrivateKeyPEM(plain)
}
