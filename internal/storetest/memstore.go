// Package storetest provides an in-memory store.Store fake for tests that
// don't need a real Postgres instance.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/store"
	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// MemStore is a lightweight, goroutine-safe implementation of store.Store
// used by component tests.
type MemStore struct {
	mu sync.Mutex

	nextVolumeID   int64
	nextSnapshotID int64

	volumes   map[int64]store.Volume
	byPubkey  map[vaultkey.PublicKey]int64
	snapshots map[int64]store.Snapshot

	// NowFunc lets tests pin timestamps; defaults to time.Now().UTC().
	NowFunc func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		volumes:   make(map[int64]store.Volume),
		byPubkey:  make(map[vaultkey.PublicKey]int64),
		snapshots: make(map[int64]store.Snapshot),
	}
}

func (m *MemStore) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc()
	}
	return time.Now().UTC()
}

func (m *MemStore) CreateVolume(ctx context.Context, pubkey vaultkey.PublicKey, account uuid.UUID) (store.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byPubkey[pubkey]; exists {
		return store.Volume{}, store.ErrConflict
	}
	m.nextVolumeID++
	v := store.Volume{ID: m.nextVolumeID, PubKey: pubkey, Account: account}
	m.volumes[v.ID] = v
	m.byPubkey[pubkey] = v.ID
	return v, nil
}

func (m *MemStore) GetVolumeByPubkey(ctx context.Context, pubkey vaultkey.PublicKey) (store.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPubkey[pubkey]
	if !ok {
		return store.Volume{}, store.ErrNotFound
	}
	return m.volumes[id], nil
}

func (m *MemStore) DeleteVolume(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.volumes[id]
	if !ok {
		return store.ErrNotFound
	}
	for snapID, snap := range m.snapshots {
		if snap.VolumeID == id {
			delete(m.snapshots, snapID)
		}
	}
	delete(m.byPubkey, v.PubKey)
	delete(m.volumes, id)
	return nil
}

func (m *MemStore) EditVolume(ctx context.Context, id int64, edit store.VolumeEdit) (store.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.volumes[id]
	if !ok {
		return store.Volume{}, store.ErrNotFound
	}
	if edit.Account != nil {
		v.Account = *edit.Account
	}
	if edit.Writer.Present {
		if edit.Writer.Clear {
			v.Writer = nil
		} else {
			writer := edit.Writer.Value
			v.Writer = &writer
		}
	}
	if edit.Locked != nil {
		v.Locked = *edit.Locked
	}
	m.volumes[id] = v
	return v, nil
}

func (m *MemStore) CreateSnapshot(ctx context.Context, in store.SnapshotInput) (store.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.snapshots {
		if existing.VolumeID == in.VolumeID && existing.Generation == in.Generation {
			return existing, false, nil
		}
	}
	m.nextSnapshotID++
	snap := store.Snapshot{
		ID:            m.nextSnapshotID,
		VolumeID:      in.VolumeID,
		ManifestBytes: append([]byte(nil), in.ManifestBytes...),
		Signature:     append([]byte(nil), in.Signature...),
		Hash:          in.Hash,
		ParentID:      in.ParentID,
		Generation:    in.Generation,
		CreatedAt:     m.now(),
	}
	m.snapshots[snap.ID] = snap
	return snap, true, nil
}

func (m *MemStore) GetSnapshotByHash(ctx context.Context, volumeID int64, hash vaultkey.Hash) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, snap := range m.snapshots {
		if snap.VolumeID == volumeID && snap.Hash == hash {
			return snap, nil
		}
	}
	return store.Snapshot{}, store.ErrNotFound
}

func (m *MemStore) GetSnapshotByGeneration(ctx context.Context, volumeID int64, generation uint64) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, snap := range m.snapshots {
		if snap.VolumeID == volumeID && snap.Generation == generation {
			return snap, nil
		}
	}
	return store.Snapshot{}, store.ErrNotFound
}

func (m *MemStore) ListSnapshots(ctx context.Context, volumeID int64, filter store.ListFilter) ([]store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var parentID *int64
	if filter.ParentHash != nil {
		found := false
		for _, snap := range m.snapshots {
			if snap.VolumeID == volumeID && snap.Hash == *filter.ParentHash {
				id := snap.ID
				parentID = &id
				found = true
				break
			}
		}
		if !found {
			return nil, store.ErrNotFound
		}
	}

	var out []store.Snapshot
	for _, snap := range m.snapshots {
		if snap.VolumeID != volumeID {
			continue
		}
		switch {
		case parentID != nil:
			if snap.ParentID == nil || *snap.ParentID != *parentID {
				continue
			}
		case filter.Root:
			if snap.ParentID != nil {
				continue
			}
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation == out[j].Generation {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Generation < out[j].Generation
	})
	return out, nil
}

func (m *MemStore) Ping(ctx context.Context) error { return nil }
