// Package streamcrypto implements the streaming cryptographic pipeline:
// XChaCha20 stage encryption with an inline nonce, and detached Ed25519
// stream signing, plus their inverses. Every transform is a plain
// io.Reader wrapping an upstream io.Reader so the pieces compose with
// bufio, io.Copy, and the object-store adapter without any custom
// iterator type.
package streamcrypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

const NonceSize = chacha20.NonceSizeX // 24 bytes, XChaCha20

// EncryptionStream prepends a freshly generated 24-byte nonce to the
// stream, then emits the XChaCha20 keystream XOR of the upstream bytes
// as a single continuous keystream across reads.
type EncryptionStream struct {
	upstream io.Reader
	secret   vaultkey.Secret

	cipher  *chacha20.Cipher
	pending []byte
	done    bool
	err     error
}

func NewEncryptionStream(secret vaultkey.Secret, upstream io.Reader) *EncryptionStream {
	return &EncryptionStream{upstream: upstream, secret: secret}
}

func (e *EncryptionStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(e.pending) == 0 {
		if e.err != nil {
			return 0, e.err
		}
		if e.done {
			return 0, io.EOF
		}
		if e.cipher == nil {
			nonce := make([]byte, NonceSize)
			if _, err := rand.Read(nonce); err != nil {
				e.err = fmt.Errorf("streamcrypto: generate nonce: %w", err)
				return 0, e.err
			}
			cipher, err := chacha20.NewUnauthenticatedCipher(e.secret[:], nonce)
			if err != nil {
				e.err = fmt.Errorf("streamcrypto: init cipher: %w", err)
				return 0, e.err
			}
			e.cipher = cipher
			e.pending = append(e.pending, nonce...)
			continue
		}

		buf := make([]byte, len(p))
		n, err := e.upstream.Read(buf)
		if n > 0 {
			enc := make([]byte, n)
			e.cipher.XORKeyStream(enc, buf[:n])
			e.pending = append(e.pending, enc...)
		}
		switch {
		case err == io.EOF:
			e.done = true
		case err != nil:
			e.err = &UpstreamError{Err: err}
		}
	}
	n := copy(p, e.pending)
	e.pending = e.pending[n:]
	return n, nil
}
