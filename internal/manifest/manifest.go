// Package manifest implements the canonical binary encoding, signing, and
// signature-envelope handling for snapshot manifests. The wire format is a
// fixed field order, little-endian binary codec rather than JSON: the
// manifest's Hash is pinned byte-for-byte by the test suite (see
// manifest_test.go), which only a hand-written, version-independent
// encoder can guarantee forever.
package manifest

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

const SignatureSize = ed25519.SignatureSize // 64

var (
	ErrDecode    = errors.New("manifest: malformed encoding")
	ErrTooShort  = errors.New("manifest: envelope shorter than signature size")
	ErrVerify    = errors.New("manifest: signature verification failed")
)

// ParentRef links a snapshot to its predecessor. Volume and Secret are
// populated only when the parent lives in a different volume than the
// child; in that case Hash/Volume/Secret are stored opaquely and no
// local referential checks are performed.
type ParentRef struct {
	Hash   vaultkey.Hash
	Volume *vaultkey.PublicKey
	Secret *vaultkey.Secret
}

// Manifest is the value record signed and stored per snapshot.
type Manifest struct {
	Creation   uint64
	Machine    uuid.UUID
	Path       string
	Size       uint64
	SizeTotal  uint64
	Generation uint64
	Parent     *ParentRef
	Data       string
}

// Encode produces the canonical binary encoding of m. Encoding is total
// (never fails) and deterministic: equal values always produce identical
// bytes.
func Encode(m Manifest) []byte {
	buf := make([]byte, 0, 128+len(m.Path)+len(m.Data))
	buf = appendU64(buf, m.Creation)
	buf = append(buf, m.Machine[:]...)
	buf = appendString(buf, m.Path)
	buf = appendU64(buf, m.Size)
	buf = appendU64(buf, m.SizeTotal)
	buf = appendU64(buf, m.Generation)
	if m.Parent == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = append(buf, m.Parent.Hash[:]...)
		if m.Parent.Volume == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			buf = append(buf, m.Parent.Volume[:]...)
			var secret vaultkey.Secret
			if m.Parent.Secret != nil {
				secret = *m.Parent.Secret
			}
			buf = append(buf, secret[:]...)
		}
	}
	buf = appendString(buf, m.Data)
	return buf
}

// Decode parses the canonical binary encoding produced by Encode.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	r := &reader{buf: data}

	m.Creation = r.u64()
	copy(m.Machine[:], r.bytes(16))
	m.Path = r.string()
	m.Size = r.u64()
	m.SizeTotal = r.u64()
	m.Generation = r.u64()

	hasParent := r.byte()
	if hasParent == 1 {
		var p ParentRef
		copy(p.Hash[:], r.bytes(vaultkey.HashSize))
		hasVolume := r.byte()
		if hasVolume == 1 {
			var vol vaultkey.PublicKey
			copy(vol[:], r.bytes(vaultkey.PublicKeySize))
			var secret vaultkey.Secret
			copy(secret[:], r.bytes(vaultkey.SecretSize))
			p.Volume = &vol
			p.Secret = &secret
		} else if hasVolume != 0 {
			return Manifest{}, fmt.Errorf("%w: invalid parent-volume presence byte", ErrDecode)
		}
		m.Parent = &p
	} else if hasParent != 0 {
		return Manifest{}, fmt.Errorf("%w: invalid parent presence byte", ErrDecode)
	}

	m.Data = r.string()

	if r.err != nil {
		return Manifest{}, r.err
	}
	if !r.exhausted() {
		return Manifest{}, fmt.Errorf("%w: trailing bytes", ErrDecode)
	}
	return m, nil
}

// Hash returns the SHA-512 digest of the manifest's canonical encoding.
func Hash(encoded []byte) vaultkey.Hash {
	return sha512.Sum512(encoded)
}

// Sign produces a detached Ed25519 signature over the manifest's
// canonical encoding.
func Sign(priv vaultkey.PrivateKey, encoded []byte) [SignatureSize]byte {
	sig := ed25519.Sign(priv.Ed25519(), encoded)
	var out [SignatureSize]byte
	copy(out[:], sig)
	return out
}

// Verify checks a detached Ed25519 signature over the manifest's
// canonical encoding.
func Verify(pub vaultkey.PublicKey, encoded []byte, signature []byte) error {
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: signature has %d bytes, want %d", ErrVerify, len(signature), SignatureSize)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), encoded, signature) {
		return ErrVerify
	}
	return nil
}

// Split separates an envelope (canonical manifest bytes followed by a
// 64-byte detached signature) into its two parts.
func Split(envelope []byte) (manifestBytes, signature []byte, err error) {
	if len(envelope) < SignatureSize {
		return nil, nil, ErrTooShort
	}
	cut := len(envelope) - SignatureSize
	return envelope[:cut], envelope[cut:], nil
}

// Join concatenates manifest bytes and a detached signature into a
// wire-format envelope.
func Join(manifestBytes, signature []byte) []byte {
	out := make([]byte, 0, len(manifestBytes)+len(signature))
	out = append(out, manifestBytes...)
	out = append(out, signature...)
	return out
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

// reader is a small sequential-decode cursor over a canonical manifest
// buffer. It accumulates the first error encountered and lets decode
// logic stay linear.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("%w: unexpected end of input", ErrDecode)
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) bytes(n int) []byte { return r.take(n) }

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) string() string {
	lb := r.take(4)
	if lb == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(lb)
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *reader) exhausted() bool {
	return r.err == nil && r.pos == len(r.buf)
}
