package streamcrypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// ErrIncorrect is returned when the trailing 64 bytes of the verified
// stream do not form a valid Ed25519 signature of the preceding bytes, or
// when fewer than 64 bytes were ever seen.
var ErrIncorrect = errors.New("streamcrypto: signature incorrect")

// UpstreamError carries an error surfaced by the wrapped reader, keeping
// it distinguishable from this package's own ErrIncorrect.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("streamcrypto: upstream error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Verification is the terminal decision of a VerifyStream.
type Verification int

const (
	Undecided Verification = iota
	Valid
	Invalid
)

// VerifyStream buffers the trailing 64 bytes of upstream, emits
// everything before that window, and feeds the emitted prefix into a
// running SHA-512 digest. On upstream end it verifies the buffered 64
// bytes as an Ed25519 signature of the digest.
type VerifyStream struct {
	upstream io.Reader
	pub      vaultkey.PublicKey
	hasher   hash.Hash

	tail       []byte
	pendingOut []byte
	result     Verification
	done       bool
	err        error
}

func NewVerifyStream(pub vaultkey.PublicKey, upstream io.Reader) *VerifyStream {
	return &VerifyStream{upstream: upstream, pub: pub, hasher: sha512.New()}
}

// Verification reports the current terminal decision; Undecided until
// the upstream stream has ended.
func (v *VerifyStream) Verification() Verification { return v.result }

func (v *VerifyStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if len(v.pendingOut) > 0 {
			n := copy(p, v.pendingOut)
			v.pendingOut = v.pendingOut[n:]
			return n, nil
		}
		if v.err != nil {
			return 0, v.err
		}
		if v.done {
			return 0, io.EOF
		}

		buf := make([]byte, len(p))
		n, err := v.upstream.Read(buf)
		if n > 0 {
			v.tail = append(v.tail, buf[:n]...)
			if len(v.tail) > SignatureSize {
				cut := len(v.tail) - SignatureSize
				emit := v.tail[:cut]
				v.hasher.Write(emit)
				v.pendingOut = append(v.pendingOut, emit...)
				v.tail = append([]byte(nil), v.tail[cut:]...)
			}
		}

		if err == io.EOF {
			v.done = true
			if len(v.tail) < SignatureSize {
				v.result = Invalid
				v.err = ErrIncorrect
			} else {
				digest := v.hasher.Sum(nil)
				if ed25519.Verify(ed25519.PublicKey(v.pub[:]), digest, v.tail) {
					v.result = Valid
				} else {
					v.result = Invalid
					v.err = ErrIncorrect
				}
			}
			continue
		}
		if err != nil {
			v.err = &UpstreamError{Err: err}
			continue
		}
	}
}

// SignatureSize is re-declared here (rather than importing package
// manifest) to keep streamcrypto free of a dependency on the manifest
// wire format; both happen to be the Ed25519 signature size.
const SignatureSize = ed25519.SignatureSize
