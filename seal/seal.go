// Package seal implements the divine bus crypto layer: HKDF-SHA256 key
// derivation and AES-256-GCM envelope sealing.
//
// Envelope layout: nonce(12) || ciphertext || tag(16). An empty plaintext
// still produces a 28-byte envelope. Nonces are fully random per message;
// with a 96-bit nonce space and bounded per-connection message counts this
// avoids synchronized counter state between peers.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/MKWorldWide/divinebus/errs"
)

const (
	// KeySize is the derived AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// MinEnvelopeSize is nonce + tag; no valid envelope is shorter.
	MinEnvelopeSize = NonceSize + TagSize
)

// Default derivation labels. Both peers must derive with the same salt and
// info to arrive at identical keys without a handshake.
var (
	DefaultSalt = []byte("lilith-divine-bus")
	DefaultInfo = []byte("divine-bus-key")
)

// Key is the channel's symmetric key. It is derived once, shared read-only
// across connection actors, and never logged or serialized.
type Key [KeySize]byte

// DeriveKey stretches the shared secret into a 256-bit key via HKDF-SHA256.
// Deterministic: identical (secret, salt, info) always yield the same key.
// An empty secret is a caller contract violation.
func DeriveKey(secret, salt, info []byte) (Key, error) {
	var key Key
	if len(secret) == 0 {
		return key, errs.ErrEmptySecret
	}
	kdf := hkdf.New(sha256.New, secret, salt, info)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// Seal encrypts plaintext under key with a fresh random nonce and returns
// nonce || ciphertext || tag.
func Seal(key Key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	envelope := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(envelope); err != nil {
		return nil, err
	}
	return aead.Seal(envelope, envelope[:NonceSize], plaintext, nil), nil
}

// Open decrypts an envelope produced by Seal. Tag verification failure is a
// hard failure: no partially decrypted data is ever returned.
func Open(key Key, envelope []byte) ([]byte, error) {
	if len(envelope) < MinEnvelopeSize {
		return nil, errs.ErrInvalidEnvelope
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, envelope[:NonceSize], envelope[NonceSize:], nil)
	if err != nil {
		return nil, errs.ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
