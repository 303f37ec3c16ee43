package export

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// newAEAD builds the chacha20poly1305 AEAD for a derived key.
func newAEAD(key [chacha20poly1305.KeySize]byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key[:])
}

// KeyEpoch names which of the two historical key derivations an envelope
// was sealed under — spec.md §4.7's "the device shipped two generations of
// the export encryption key derivation; a reader must try both".
type KeyEpoch int

const (
	// KeyEpochCurrent derives the key with sha256, the scheme every
	// shipped daemon release since has used.
	KeyEpochCurrent KeyEpoch = iota
	// KeyEpochLegacy derives the key with the older fnv-1a-based scheme,
	// kept only so files exported before the switch still import cleanly.
	KeyEpochLegacy
)

// deriveKey turns name (the user-chosen encryption passphrase/label) into
// a chacha20poly1305 key under the given epoch's KDF.
func deriveKey(name string, epoch KeyEpoch) [chacha20poly1305.KeySize]byte {
	switch epoch {
	case KeyEpochLegacy:
		return deriveKeyLegacy(name)
	default:
		return deriveKeyCurrent(name)
	}
}

func deriveKeyCurrent(name string) [chacha20poly1305.KeySize]byte {
	return sha256.Sum256([]byte(name))
}

// deriveKeyLegacy reproduces the pre-sha256 derivation: an fnv-1a hash of
// name expanded to 32 bytes by re-hashing the running digest, the scheme
// _examples/original_source used before the switch to sha256.
func deriveKeyLegacy(name string) [chacha20poly1305.KeySize]byte {
	var key [chacha20poly1305.KeySize]byte
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum64()
	for i := 0; i < chacha20poly1305.KeySize; i += 8 {
		for j := 0; j < 8 && i+j < chacha20poly1305.KeySize; j++ {
			key[i+j] = byte(sum >> (8 * j))
		}
		h.Reset()
		_, _ = h.Write([]byte{byte(sum)})
		_, _ = h.Write([]byte(name))
		sum = h.Sum64()
	}
	return key
}

// Seal encrypts plaintext (a MarshalArray payload) under name's current-
// epoch key, returning nonce||ciphertext.
func Seal(plaintext []byte, name string) ([]byte, error) {
	key := deriveKeyCurrent(name)
	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("export: build cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("export: read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts an envelope produced by Seal, trying the current key
// derivation first and falling back to the legacy one (spec.md §4.7/§8):
// a reader must accept files sealed under either generation.
func Open(envelope []byte, name string) ([]byte, error) {
	var lastErr error
	for _, epoch := range []KeyEpoch{KeyEpochCurrent, KeyEpochLegacy} {
		key := deriveKey(name, epoch)
		aead, err := newAEAD(key)
		if err != nil {
			return nil, fmt.Errorf("export: build cipher: %w", err)
		}
		if len(envelope) < aead.NonceSize() {
			return nil, fmt.Errorf("export: envelope shorter than nonce")
		}
		nonce, ciphertext := envelope[:aead.NonceSize()], envelope[aead.NonceSize():]
		plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
		if err == nil {
			return plaintext, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("export: decrypt failed under both key generations: %w", lastErr)
}
