// Package dag implements the snapshot admission algorithm and enumeration
// queries for a volume's generational snapshot chain.
package dag

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/vaultgraph/vaultd/internal/manifest"
	"github.com/vaultgraph/vaultd/internal/store"
	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// MinSnapshotSize rejects degenerate manifests whose size claims too
// little payload to be a real backup increment.
const MinSnapshotSize = 64

var (
	// ErrManifestInvalid covers a malformed envelope, a signature that
	// does not verify, or a manifest that fails to decode.
	ErrManifestInvalid = errors.New("dag: manifest invalid")
	// ErrManifestExists signals an idempotence conflict: a different
	// envelope was already admitted at this generation.
	ErrManifestExists    = errors.New("dag: manifest already exists at this generation")
	ErrInvalidSize       = errors.New("dag: size below minimum snapshot size")
	ErrInvalidGeneration = errors.New("dag: generation must exceed parent generation")
	ErrWrongSizeTotal    = errors.New("dag: size_total inconsistent with parent chain")
	ErrSnapshotNotFound  = errors.New("dag: snapshot not found")
)

// MissingParentError reports that a same-volume parent hash was
// referenced but no such snapshot is resident.
type MissingParentError struct {
	Hash vaultkey.Hash
}

func (e *MissingParentError) Error() string {
	return fmt.Sprintf("dag: missing parent %s", e.Hash.String())
}

// Engine admits and enumerates snapshots against a metadata Store.
type Engine struct {
	store store.Store
}

func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Admit runs the full admission algorithm against volume for the given
// signed envelope bytes, returning the admitted (or idempotently
// rediscovered) snapshot's content hash.
func (e *Engine) Admit(ctx context.Context, volume store.Volume, envelope []byte) (vaultkey.Hash, error) {
	manifestBytes, signature, err := manifest.Split(envelope)
	if err != nil {
		return vaultkey.Hash{}, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	if err := manifest.Verify(volume.PubKey, manifestBytes, signature); err != nil {
		return vaultkey.Hash{}, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	m, err := manifest.Decode(manifestBytes)
	if err != nil {
		return vaultkey.Hash{}, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	h := manifest.Hash(manifestBytes)

	if existing, err := e.store.GetSnapshotByGeneration(ctx, volume.ID, m.Generation); err == nil {
		return e.resolveIdempotence(existing, envelope)
	} else if !errors.Is(err, store.ErrNotFound) {
		return vaultkey.Hash{}, fmt.Errorf("dag: lookup existing generation: %w", err)
	}

	var parentID *int64
	switch {
	case m.Parent == nil:
		if m.SizeTotal != m.Size {
			return vaultkey.Hash{}, ErrWrongSizeTotal
		}
	case m.Parent.Volume != nil:
		// Cross-volume parent: not required to be resident; size and
		// generation checks are skipped since the parent's counters
		// live in another volume's chain.
	default:
		parent, err := e.store.GetSnapshotByHash(ctx, volume.ID, m.Parent.Hash)
		if errors.Is(err, store.ErrNotFound) {
			return vaultkey.Hash{}, &MissingParentError{Hash: m.Parent.Hash}
		}
		if err != nil {
			return vaultkey.Hash{}, fmt.Errorf("dag: lookup parent: %w", err)
		}
		parentManifest, err := manifest.Decode(parent.ManifestBytes)
		if err != nil {
			return vaultkey.Hash{}, fmt.Errorf("dag: decode resident parent: %w", err)
		}
		if m.Generation <= parentManifest.Generation {
			return vaultkey.Hash{}, ErrInvalidGeneration
		}
		if m.SizeTotal != parentManifest.SizeTotal+m.Size {
			return vaultkey.Hash{}, ErrWrongSizeTotal
		}
		id := parent.ID
		parentID = &id
	}

	if m.Size < MinSnapshotSize {
		return vaultkey.Hash{}, ErrInvalidSize
	}

	snap, inserted, err := e.store.CreateSnapshot(ctx, store.SnapshotInput{
		VolumeID:      volume.ID,
		ManifestBytes: manifestBytes,
		Signature:     signature,
		Hash:          h,
		ParentID:      parentID,
		Generation:    m.Generation,
	})
	if err != nil {
		return vaultkey.Hash{}, fmt.Errorf("dag: insert snapshot: %w", err)
	}
	if !inserted {
		return e.resolveIdempotence(snap, envelope)
	}
	return snap.Hash, nil
}

// resolveIdempotence implements step 5's "first publisher wins" rule: an
// identical re-upload returns the prior hash, a differing one at the same
// generation is a conflict.
func (e *Engine) resolveIdempotence(existing store.Snapshot, envelope []byte) (vaultkey.Hash, error) {
	existingEnvelope := manifest.Join(existing.ManifestBytes, existing.Signature)
	if bytes.Equal(existingEnvelope, envelope) {
		return existing.Hash, nil
	}
	return vaultkey.Hash{}, ErrManifestExists
}

// FetchByHash returns the raw envelope bytes for the snapshot identified
// by hash within volume.
func (e *Engine) FetchByHash(ctx context.Context, volumeID int64, hash vaultkey.Hash) ([]byte, error) {
	snap, err := e.store.GetSnapshotByHash(ctx, volumeID, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dag: fetch by hash: %w", err)
	}
	return manifest.Join(snap.ManifestBytes, snap.Signature), nil
}

// FetchByGeneration looks up a snapshot by its generation counter,
// primarily used by the idempotent-upload path.
func (e *Engine) FetchByGeneration(ctx context.Context, volumeID int64, generation uint64) (store.Snapshot, error) {
	snap, err := e.store.GetSnapshotByGeneration(ctx, volumeID, generation)
	if errors.Is(err, store.ErrNotFound) {
		return store.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("dag: fetch by generation: %w", err)
	}
	return snap, nil
}

// List enumerates hashes in a volume, ordered by generation ascending
// then insertion order, optionally restricted by parent hash or to roots.
func (e *Engine) List(ctx context.Context, volumeID int64, parentHash *vaultkey.Hash, root bool) ([]vaultkey.Hash, error) {
	snaps, err := e.store.ListSnapshots(ctx, volumeID, store.ListFilter{ParentHash: parentHash, Root: root})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dag: list snapshots: %w", err)
	}
	hashes := make([]vaultkey.Hash, len(snaps))
	for i, s := range snaps {
		hashes[i] = s.Hash
	}
	return hashes, nil
}
