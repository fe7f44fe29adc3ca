// Package vaultkey defines the fixed-size key and hash primitives shared
// across the vault: volume identity keys, the symmetric data secret
// derived from them, and the content hash that identifies a snapshot.
package vaultkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2s"
)

const (
	PrivateKeySize = 32
	PublicKeySize  = 32
	SecretSize     = 32
	HashSize       = 64
)

var ErrWrongLength = errors.New("vaultkey: wrong byte length")

// PrivateKey is a 32-byte Ed25519 seed. It derives a PublicKey and a
// symmetric Secret. Call Zero when the key is no longer needed.
type PrivateKey [PrivateKeySize]byte

// PublicKey identifies a volume.
type PublicKey [PublicKeySize]byte

// Secret is the XChaCha20 key derived from a volume's PrivateKey.
type Secret [SecretSize]byte

// Hash is a SHA-512 digest of a manifest's canonical encoding.
type Hash [HashSize]byte

// GeneratePrivateKey returns a fresh random PrivateKey.
func GeneratePrivateKey() (PrivateKey, error) {
	var pk PrivateKey
	if _, err := rand.Read(pk[:]); err != nil {
		return PrivateKey{}, fmt.Errorf("generate private key: %w", err)
	}
	return pk, nil
}

// Public derives the Ed25519 public key for this seed.
func (pk PrivateKey) Public() PublicKey {
	edPriv := ed25519.NewKeyFromSeed(pk[:])
	var out PublicKey
	copy(out[:], edPriv[ed25519.SeedSize:])
	return out
}

// DeriveSecret derives the symmetric data key from the private seed via
// BLAKE2s-256. The secret is independent of the Ed25519 public key so
// that possessing the signing key is required to recover the data key.
func (pk PrivateKey) DeriveSecret() (Secret, error) {
	h, err := blake2s.New256(nil)
	if err != nil {
		return Secret{}, fmt.Errorf("derive secret: %w", err)
	}
	h.Write(pk[:])
	sum := h.Sum(nil)
	var out Secret
	copy(out[:], sum)
	return out, nil
}

// Ed25519 returns the expanded ed25519.PrivateKey for signing.
func (pk PrivateKey) Ed25519() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(pk[:])
}

// Equal compares in constant time.
func (pk PrivateKey) Equal(other PrivateKey) bool {
	return subtle.ConstantTimeCompare(pk[:], other[:]) == 1
}

// Zero overwrites the backing bytes. Callers should defer this as soon
// as a decoded private key is no longer needed.
func (pk *PrivateKey) Zero() {
	for i := range pk {
		pk[i] = 0
	}
}

func (pk PrivateKey) String() string { return hex.EncodeToString(pk[:]) }

func (pk PrivateKey) Base64() string { return base64.StdEncoding.EncodeToString(pk[:]) }

func (pk PrivateKey) Base32() string { return base32.StdEncoding.EncodeToString(pk[:]) }

func PrivateKeyFromHex(s string) (PrivateKey, error) {
	var out PrivateKey
	if err := decodeFixed(s, out[:], hex.DecodeString); err != nil {
		return PrivateKey{}, err
	}
	return out, nil
}

func PrivateKeyFromBase64(s string) (PrivateKey, error) {
	var out PrivateKey
	if err := decodeFixed(s, out[:], base64.StdEncoding.DecodeString); err != nil {
		return PrivateKey{}, err
	}
	return out, nil
}

// Equal compares in constant time (public keys aren't secret, but this
// keeps the comparison style consistent across the package).
func (k PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

func (k PublicKey) Base64() string { return base64.StdEncoding.EncodeToString(k[:]) }

func (k PublicKey) Base32() string { return base32.StdEncoding.EncodeToString(k[:]) }

func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := PublicKeyFromHex(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func PublicKeyFromHex(s string) (PublicKey, error) {
	var out PublicKey
	if err := decodeFixed(s, out[:], hex.DecodeString); err != nil {
		return PublicKey{}, err
	}
	return out, nil
}

func PublicKeyFromBase64(s string) (PublicKey, error) {
	var out PublicKey
	if err := decodeFixed(s, out[:], base64.StdEncoding.DecodeString); err != nil {
		return PublicKey{}, err
	}
	return out, nil
}

// PublicKeyFromBytes wraps a raw byte slice, e.g. as read back from a
// database column. Returns ErrWrongLength if len(b) != PublicKeySize.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var out PublicKey
	if len(b) != len(out) {
		return PublicKey{}, fmt.Errorf("%w: got %d want %d", ErrWrongLength, len(b), len(out))
	}
	copy(out[:], b)
	return out, nil
}

func (s Secret) Equal(other Secret) bool {
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

func (s *Secret) Zero() {
	for i := range s {
		s[i] = 0
	}
}

func (s Secret) String() string { return hex.EncodeToString(s[:]) }

func (s Secret) Base64() string { return base64.StdEncoding.EncodeToString(s[:]) }

func (s Secret) Base32() string { return base32.StdEncoding.EncodeToString(s[:]) }

func SecretFromHex(str string) (Secret, error) {
	var out Secret
	if err := decodeFixed(str, out[:], hex.DecodeString); err != nil {
		return Secret{}, err
	}
	return out, nil
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) Base64() string { return base64.StdEncoding.EncodeToString(h[:]) }

func (h Hash) Base32() string { return base32.StdEncoding.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func HashFromHex(s string) (Hash, error) {
	var out Hash
	if err := decodeFixed(s, out[:], hex.DecodeString); err != nil {
		return Hash{}, err
	}
	return out, nil
}

// HashFromBytes wraps a raw byte slice, e.g. as read back from a database
// column. Returns ErrWrongLength if len(b) != HashSize.
func HashFromBytes(b []byte) (Hash, error) {
	var out Hash
	if len(b) != len(out) {
		return Hash{}, fmt.Errorf("%w: got %d want %d", ErrWrongLength, len(b), len(out))
	}
	copy(out[:], b)
	return out, nil
}

func decodeFixed(s string, dst []byte, decode func(string) ([]byte, error)) error {
	raw, err := decode(s)
	if err != nil {
		return fmt.Errorf("vaultkey: decode: %w", err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: got %d want %d", ErrWrongLength, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}
