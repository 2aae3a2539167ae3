// Package onion implements the onion packet format and the layered
// hybrid-encryption protocol shared by the originator and every hop (§4.A,
// §4.B of the spec).
package onion

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
)

// KeyBits is the asymmetric modulus size mandated by §3/§4.A.
const KeyBits = 2048

// SessionKeySize is the symmetric session key length (§3): fresh per layer,
// used once, never persisted.
const SessionKeySize = 32

// GenerateKeypair produces a fresh 2048-bit RSA keypair. Called once per hop
// at startup (§4.A) — callers that need restart-survival should pass the
// private key through SealPrivateKey/OpenPrivateKey (keystore.go) rather than
// regenerating.
func GenerateKeypair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeyBits)
}

// EncodePublicKeyPEM renders a public key the way GET /get-public-key serves
// it: PKIX DER wrapped in a PEM block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// DecodePublicKeyPEM is the inverse of EncodePublicKeyPEM. Fails with
// *CryptoError if the PEM block is absent or the key is not RSA.
func DecodePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &CryptoError{Msg: "no PEM block found in public key"}
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &CryptoError{Msg: "parse public key: " + err.Error()}
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, &CryptoError{Msg: "public key is not RSA"}
	}
	return rsaKey, nil
}

// EncodePrivateKeyPEM renders a private key as PKCS#1 PEM, the same shape
// the original implementation's private.pem file carries.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block)
}

// DecodePrivateKeyPEM is the inverse of EncodePrivateKeyPEM.
func DecodePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &CryptoError{Msg: "no PEM block found in private key"}
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// aead builds the symmetric cipher required by §4.A: AES in an authenticated
// mode with a 16-byte nonce. We use AES-GCM with an explicit 16-byte nonce
// size (stdlib crypto/cipher supports non-default nonce sizes directly) as
// the "EAX-equivalent" mode the spec calls for, rather than hand-rolling EAX.
func aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Wrap performs one layer of hybrid encryption (§4.A): a fresh 32-byte
// session key encrypts plaintext under AES-GCM, and the session key itself
// is encrypted under peerPublic with RSA-OAEP(SHA-256).
func Wrap(peerPublic *rsa.PublicKey, plaintext []byte) (wrappedKey, nonce, ciphertext []byte, err error) {
	sessionKey := make([]byte, SessionKeySize)
	if _, err = rand.Read(sessionKey); err != nil {
		return nil, nil, nil, &CryptoError{Msg: "generate session key: " + err.Error()}
	}

	a, err := aead(sessionKey)
	if err != nil {
		return nil, nil, nil, &CryptoError{Msg: "build AEAD: " + err.Error()}
	}

	nonce = make([]byte, nonceSize)
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, &CryptoError{Msg: "generate nonce: " + err.Error()}
	}
	ciphertext = a.Seal(nil, nonce, plaintext, nil)

	wrappedKey, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, peerPublic, sessionKey, nil)
	if err != nil {
		return nil, nil, nil, &CryptoError{Msg: "OAEP wrap session key: " + err.Error()}
	}

	return wrappedKey, nonce, ciphertext, nil
}

// Unwrap is the inverse of Wrap: it decrypts the session key under
// ownPrivate, then decrypts ciphertext under that session key.
func Unwrap(ownPrivate *rsa.PrivateKey, wrappedKey, nonce, ciphertext []byte) ([]byte, error) {
	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, ownPrivate, wrappedKey, nil)
	if err != nil {
		return nil, &CryptoError{Msg: "OAEP unwrap session key: " + err.Error()}
	}

	a, err := aead(sessionKey)
	if err != nil {
		return nil, &CryptoError{Msg: "build AEAD: " + err.Error()}
	}

	plaintext, err := a.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Msg: "AEAD open: " + err.Error()}
	}
	return plaintext, nil
}
