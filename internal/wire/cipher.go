package wire

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"crypto/sha256"
)

// sealInfo is the HKDF context label binding derived datagram keys to their
// purpose, mirroring the teacher's HKDF use in pkg/crypto/derive.go
// (DeriveSessionKey(secret, "wgmesh-session")) but scoped to wire sealing.
const sealInfo = "omerta-datagram-seal-v1"

// DatagramKey derives the 32-byte ChaCha20-Poly1305 key used to seal wire
// datagrams from a network's shared secret. One key per network: every
// member derives the same key independently, so no key exchange is needed
// beyond the invite link itself.
func DatagramKey(networkSecret []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, networkSecret, nil, []byte(sealInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("wire: derive datagram key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext (a serialized envelope) with the given datagram
// key, returning nonce||ciphertext. A fresh random nonce is generated per
// call.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("wire: seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wire: seal: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce||ciphertext datagram produced by Seal. Per spec.md
// §4.1 a failed decryption must be silent (the datagram is simply dropped
// by the caller); Open returns an error for that case and callers must not
// log its contents at a level that could leak ciphertext structure.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("wire: open: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("wire: open: datagram shorter than nonce")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: open: decrypt failed")
	}
	return plaintext, nil
}

// SealEnvelope encodes e in the given wire form (JSON if useJSON, else
// binary) and seals it for transmission.
func SealEnvelope(key []byte, e *Envelope, useJSON bool) ([]byte, error) {
	var plaintext []byte
	var err error
	if useJSON {
		plaintext, err = EncodeJSON(e)
	} else {
		plaintext, err = EncodeBinary(e)
	}
	if err != nil {
		return nil, err
	}
	return Seal(key, plaintext)
}

// OpenEnvelope unseals a received datagram and decodes the envelope,
// auto-detecting its wire form.
func OpenEnvelope(key []byte, sealed []byte) (*Envelope, error) {
	plaintext, err := Open(key, sealed)
	if err != nil {
		return nil, err
	}
	return DecodeAuto(plaintext)
}
