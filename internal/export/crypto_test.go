package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"hello":"world"}`)
	envelope, err := Seal(plaintext, "correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, plaintext, envelope)

	out, err := Open(envelope, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestOpenRejectsWrongName(t *testing.T) {
	envelope, err := Seal([]byte("secret"), "name-a")
	require.NoError(t, err)

	_, err = Open(envelope, "name-b")
	require.Error(t, err)
}

func TestOpenFallsBackToLegacyKeyDerivation(t *testing.T) {
	plaintext := []byte("legacy export")
	key := deriveKeyLegacy("old-name")
	aead, err := newAEAD(key)
	require.NoError(t, err)
	nonce := make([]byte, aead.NonceSize())
	envelope := aead.Seal(nonce, nonce, plaintext, nil)

	out, err := Open(envelope, "old-name")
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}
