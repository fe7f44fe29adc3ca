package vaultkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSecretDeterministic(t *testing.T) {
	pk, err := GeneratePrivateKey()
	require.NoError(t, err)

	s1, err := pk.DeriveSecret()
	require.NoError(t, err)
	s2, err := pk.DeriveSecret()
	require.NoError(t, err)
	require.True(t, s1.Equal(s2))
}

func TestDeriveSecretDiffersFromPublicKey(t *testing.T) {
	pk, err := GeneratePrivateKey()
	require.NoError(t, err)

	secret, err := pk.DeriveSecret()
	require.NoError(t, err)
	pub := pk.Public()
	require.NotEqual(t, pub[:], secret[:])
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	pk, err := GeneratePrivateKey()
	require.NoError(t, err)
	pub := pk.Public()

	decoded, err := PublicKeyFromHex(pub.String())
	require.NoError(t, err)
	require.True(t, pub.Equal(decoded))
}

func TestHashTextRoundTrip(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(i)
	}
	text, err := h.MarshalText()
	require.NoError(t, err)

	var out Hash
	require.NoError(t, out.UnmarshalText(text))
	require.Equal(t, h, out)
}

func TestPrivateKeyBase64RoundTrip(t *testing.T) {
	pk, err := GeneratePrivateKey()
	require.NoError(t, err)

	decoded, err := PrivateKeyFromBase64(pk.Base64())
	require.NoError(t, err)
	require.True(t, pk.Equal(decoded))
}

func TestFromHexWrongLength(t *testing.T) {
	_, err := PublicKeyFromHex("deadbeef")
	require.ErrorIs(t, err, ErrWrongLength)
}

func TestPublicKeyFromBytesRoundTrip(t *testing.T) {
	pk, err := GeneratePrivateKey()
	require.NoError(t, err)
	pub := pk.Public()

	decoded, err := PublicKeyFromBytes(pub[:])
	require.NoError(t, err)
	require.True(t, pub.Equal(decoded))

	_, err = PublicKeyFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrWrongLength)
}

func TestHashFromBytesRoundTrip(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(255 - i)
	}
	decoded, err := HashFromBytes(h[:])
	require.NoError(t, err)
	require.Equal(t, h, decoded)

	_, err = HashFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrWrongLength)
}

func TestZeroClearsBytes(t *testing.T) {
	pk, err := GeneratePrivateKey()
	require.NoError(t, err)
	pk.Zero()
	var zero PrivateKey
	require.Equal(t, zero, pk)
}
