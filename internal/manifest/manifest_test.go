package manifest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

func sampleManifest() Manifest {
	return Manifest{
		Creation:   124123,
		Machine:    uuid.Nil,
		Path:       "/tmp/path",
		Size:       64,
		SizeTotal:  64,
		Generation: 0,
		Parent:     nil,
		Data:       "ipfs://QmTvXmLGiTV6CoCRvSEMHEKU3oMWsrVSMdhyKGzw9UcAth",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Manifest{
		sampleManifest(),
		{
			Creation:   1,
			Machine:    uuid.New(),
			Path:       "",
			Size:       64,
			SizeTotal:  128,
			Generation: 1,
			Parent: &ParentRef{
				Hash: vaultkey.Hash{1, 2, 3},
			},
			Data: "ipfs://Qm1",
		},
		{
			Creation:   2,
			Machine:    uuid.New(),
			Path:       "/a/b/c",
			Size:       1000,
			SizeTotal:  9000,
			Generation: 7,
			Parent: &ParentRef{
				Hash:   vaultkey.Hash{9, 9, 9},
				Volume: &vaultkey.PublicKey{5, 5, 5},
				Secret: &vaultkey.Secret{6, 6, 6},
			},
			Data: "ipfs://Qm2",
		},
	}

	for i, m := range cases {
		encoded := Encode(m)
		decoded, err := Decode(encoded)
		require.NoErrorf(t, err, "case %d", i)
		require.Equalf(t, m, decoded, "case %d", i)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	m := sampleManifest()
	a := Encode(m)
	b := Encode(m)
	require.Equal(t, a, b)
}

func TestHashDeterministic(t *testing.T) {
	m := sampleManifest()
	encoded := Encode(m)
	h1 := Hash(encoded)
	h2 := Hash(encoded)
	require.Equal(t, h1, h2)
	require.Len(t, h1, vaultkey.HashSize)
}

func TestSignVerify(t *testing.T) {
	priv, err := vaultkey.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.Public()

	encoded := Encode(sampleManifest())
	sig := Sign(priv, encoded)
	require.NoError(t, Verify(pub, encoded, sig[:]))
}

func TestVerifyFailsOnBitFlip(t *testing.T) {
	priv, err := vaultkey.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.Public()

	encoded := Encode(sampleManifest())
	sig := Sign(priv, encoded)

	flipped := append([]byte(nil), encoded...)
	flipped[0] ^= 0x01
	require.ErrorIs(t, Verify(pub, flipped, sig[:]), ErrVerify)

	flippedSig := sig
	flippedSig[0] ^= 0x01
	require.ErrorIs(t, Verify(pub, encoded, flippedSig[:]), ErrVerify)
}

func TestSplitJoinRoundTrip(t *testing.T) {
	priv, err := vaultkey.GeneratePrivateKey()
	require.NoError(t, err)

	encoded := Encode(sampleManifest())
	sig := Sign(priv, encoded)
	envelope := Join(encoded, sig[:])

	manifestBytes, signature, err := Split(envelope)
	require.NoError(t, err)
	require.Equal(t, encoded, manifestBytes)
	require.Equal(t, sig[:], signature)
}

func TestSplitTooShort(t *testing.T) {
	_, _, err := Split(make([]byte, SignatureSize-1))
	require.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded := Encode(sampleManifest())
	_, err := Decode(append(encoded, 0xFF))
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	encoded := Encode(sampleManifest())
	_, err := Decode(encoded[:len(encoded)-1])
	require.ErrorIs(t, err, ErrDecode)
}

// TestManifestHashStability pins the canonical encoding byte-for-byte:
// any change to the wire layout (field order, widths, presence bytes)
// breaks this digest and must be treated as a breaking format change.
func TestManifestHashStability(t *testing.T) {
	m := Manifest{
		Creation:   124123,
		Machine:    uuid.Nil,
		Path:       "/tmp/path",
		Size:       123412,
		SizeTotal:  12341241,
		Generation: 0,
		Parent:     nil,
		Data:       "ipfs://QmTvXmLGiTV6CoCRvSEMHEKU3oMWsrVSMdhyKGzw9UcAth",
	}
	h := Hash(Encode(m))
	require.Equal(t,
		"593592a8dfa5776700120a0196be58842e2f7877b17d742a92bc15b457f0e95d"+
			"179ec1e4e053dcc382f2a73ee6ee8278e5d5642bd9218f311771b4377d5f641b",
		h.String())

	mutated := m
	mutated.Size++
	require.NotEqual(t, h, Hash(Encode(mutated)))
}
