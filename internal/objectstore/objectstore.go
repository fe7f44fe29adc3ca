// Package objectstore adapts the encrypted snapshot pipeline to an
// external content-addressed object store. The store itself is treated
// as opaque: put(stream) -> CID, get(CID) -> stream. This service never
// stores encrypted blob bytes itself.
package objectstore

import (
	"context"
	"io"

	"github.com/vaultgraph/vaultd/internal/streamcrypto"
	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// Store is the minimal contract against the external content-addressed
// store. Implementations: IPFSStore (production, talks to an IPFS HTTP
// API) and S3Store (dev/test parity backend, content-hash-keyed).
type Store interface {
	Upload(ctx context.Context, r io.Reader) (cid string, err error)
	Fetch(ctx context.Context, cid string) (io.ReadCloser, error)
}

// Adapter composes a Store with the streaming cryptographic pipeline. It
// is stateless and holds no credentials beyond the underlying Store's own
// handle, so a single Adapter can safely be shared across requests.
type Adapter struct {
	store Store
}

func NewAdapter(store Store) *Adapter {
	return &Adapter{store: store}
}

// UploadEncrypt pipes plaintext through EncryptionStream(secret) into the
// store's upload operation, returning the store's content identifier.
func (a *Adapter) UploadEncrypt(ctx context.Context, secret vaultkey.Secret, plaintext io.Reader) (string, error) {
	enc := streamcrypto.NewEncryptionStream(secret, plaintext)
	return a.store.Upload(ctx, enc)
}

// FetchDecrypt fetches the ciphertext stream for cid and wraps it in
// DecryptionStream(secret). The caller must Close the returned reader if
// it implements io.Closer-backed cleanup on the underlying fetch.
func (a *Adapter) FetchDecrypt(ctx context.Context, secret vaultkey.Secret, cid string) (io.ReadCloser, error) {
	ciphertext, err := a.store.Fetch(ctx, cid)
	if err != nil {
		return nil, err
	}
	return &decryptingReadCloser{
		Reader: streamcrypto.NewDecryptionStream(secret, ciphertext),
		closer: ciphertext,
	}, nil
}

type decryptingReadCloser struct {
	io.Reader
	closer io.Closer
}

func (d *decryptingReadCloser) Close() error { return d.closer.Close() }
