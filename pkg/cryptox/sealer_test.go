package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("test-sealing-secret"), "attempt-password")
	require.NoError(t, err)

	plaintext := []byte("hunter2")
	ad := []byte("attempt-id")

	sealed1, err := s.Seal(plaintext, ad)
	require.NoError(t, err)
	sealed2, err := s.Seal(plaintext, ad)
	require.NoError(t, err)
	require.NotEqual(t, sealed1, sealed2, "nonce must differ per seal")
	require.NotContains(t, string(sealed1), "hunter2")

	opened, err := s.Open(sealed1, ad)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealerRejectsWrongAssociatedData(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("test-sealing-secret"), "attempt-password")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("hunter2"), []byte("attempt-a"))
	require.NoError(t, err)

	_, err = s.Open(sealed, []byte("attempt-b"))
	require.Error(t, err)
}

func TestSealerKeySeparation(t *testing.T) {
	a, err := cryptox.NewSealer([]byte("same-secret"), "info-a")
	require.NoError(t, err)
	b, err := cryptox.NewSealer([]byte("same-secret"), "info-b")
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("payload"), nil)
	require.NoError(t, err)

	_, err = b.Open(sealed, nil)
	require.Error(t, err, "different info must derive a different key")
}

func TestSealerErrors(t *testing.T) {
	_, err := cryptox.NewSealer(nil, "x")
	require.Error(t, err)

	s, err := cryptox.NewRandomSealer("x")
	require.NoError(t, err)

	_, err = s.Open([]byte("short"), nil)
	require.ErrorIs(t, err, cryptox.ErrSealedTooShort)
}
