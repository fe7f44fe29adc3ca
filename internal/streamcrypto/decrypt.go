package streamcrypto

import (
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// DecryptionStream consumes the first 24 bytes of upstream as the nonce
// (which may arrive fragmented across arbitrarily many reads), then
// decrypts every subsequent byte with a single continuous XChaCha20
// keystream. Composed with EncryptionStream on the same secret, it is the
// identity on the original byte sequence regardless of chunk boundaries.
type DecryptionStream struct {
	upstream io.Reader
	secret   vaultkey.Secret

	nonce  []byte
	cipher *chacha20.Cipher
	done   bool
	err    error
}

func NewDecryptionStream(secret vaultkey.Secret, upstream io.Reader) *DecryptionStream {
	return &DecryptionStream{upstream: upstream, secret: secret}
}

func (d *DecryptionStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if d.err != nil {
			return 0, d.err
		}
		if d.done {
			return 0, io.EOF
		}

		if d.cipher == nil {
			need := NonceSize - len(d.nonce)
			buf := make([]byte, need)
			n, err := d.upstream.Read(buf)
			if n > 0 {
				d.nonce = append(d.nonce, buf[:n]...)
			}
			if len(d.nonce) == NonceSize {
				cipher, cerr := chacha20.NewUnauthenticatedCipher(d.secret[:], d.nonce)
				if cerr != nil {
					d.err = fmt.Errorf("streamcrypto: init cipher: %w", cerr)
					return 0, d.err
				}
				d.cipher = cipher
			}
			if err == io.EOF {
				if len(d.nonce) < NonceSize {
					d.done = true
					d.err = fmt.Errorf("streamcrypto: upstream ended before 24-byte nonce was complete")
					return 0, d.err
				}
				// Nonce completed exactly at EOF; fall through so the next
				// iteration observes upstream end with no data pending.
				continue
			}
			if err != nil {
				d.err = &UpstreamError{Err: err}
				return 0, d.err
			}
			continue
		}

		n, err := d.upstream.Read(p)
		if n > 0 {
			d.cipher.XORKeyStream(p[:n], p[:n])
			return n, nil
		}
		if err == io.EOF {
			d.done = true
			return 0, io.EOF
		}
		if err != nil {
			d.err = &UpstreamError{Err: err}
			return 0, d.err
		}
	}
}
