package streamcrypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"hash"
	"io"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// SignStream passes every upstream byte through verbatim while updating a
// running SHA-512 digest, then appends exactly one final chunk containing
// the 64-byte Ed25519 signature of the accumulated digest. On upstream
// error it stops without emitting a signature.
type SignStream struct {
	upstream io.Reader
	priv     vaultkey.PrivateKey
	hasher   hash.Hash

	sigReady bool
	sigBuf   []byte
	done     bool
	err      error
}

func NewSignStream(priv vaultkey.PrivateKey, upstream io.Reader) *SignStream {
	return &SignStream{upstream: upstream, priv: priv, hasher: sha512.New()}
}

func (s *SignStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	if s.done {
		return 0, io.EOF
	}
	if s.sigReady {
		n := copy(p, s.sigBuf)
		s.sigBuf = s.sigBuf[n:]
		if len(s.sigBuf) == 0 {
			s.done = true
		}
		return n, nil
	}

	n, err := s.upstream.Read(p)
	if n > 0 {
		s.hasher.Write(p[:n])
	}
	switch {
	case err == io.EOF:
		digest := s.hasher.Sum(nil)
		sig := ed25519.Sign(s.priv.Ed25519(), digest)
		s.sigBuf = sig
		s.sigReady = true
		if n > 0 {
			return n, nil
		}
		return s.Read(p)
	case err != nil:
		s.err = &UpstreamError{Err: err}
		return n, s.err
	default:
		return n, nil
	}
}
