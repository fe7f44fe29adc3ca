// Package store defines the durable relational contract for volumes and
// snapshots, and a Postgres-backed implementation.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: record not found")

// ErrConflict is returned when a volume creation collides with an
// existing pubkey. Snapshot generation collisions do not produce it:
// CreateSnapshot hands back the existing row instead.
var ErrConflict = errors.New("store: conflict")

// Store is the persistence contract consumed by the DAG engine and the
// volume registry.
type Store interface {
	CreateVolume(ctx context.Context, pubkey vaultkey.PublicKey, account uuid.UUID) (Volume, error)
	GetVolumeByPubkey(ctx context.Context, pubkey vaultkey.PublicKey) (Volume, error)
	DeleteVolume(ctx context.Context, id int64) error
	EditVolume(ctx context.Context, id int64, edit VolumeEdit) (Volume, error)

	// CreateSnapshot inserts a snapshot, enforcing UNIQUE(volume_id,
	// generation). On a unique-violation race it re-reads the conflicting
	// row and returns it with inserted=false (caller applies the idempotence
	// rule by comparing envelope bytes) rather than erroring.
	CreateSnapshot(ctx context.Context, in SnapshotInput) (snap Snapshot, inserted bool, err error)
	GetSnapshotByHash(ctx context.Context, volumeID int64, hash vaultkey.Hash) (Snapshot, error)
	GetSnapshotByGeneration(ctx context.Context, volumeID int64, generation uint64) (Snapshot, error)
	ListSnapshots(ctx context.Context, volumeID int64, filter ListFilter) ([]Snapshot, error)

	Ping(ctx context.Context) error
}

// VolumeEdit is a partial update. Account and Locked are plain optional
// pointers (nil means "not present in request"). Writer carries
// three-valued edit semantics: absent (field not mentioned), present with
// a value, or present with an explicit clear.
type VolumeEdit struct {
	Account *uuid.UUID
	Writer  WriterEdit
	Locked  *bool
}

// WriterEdit distinguishes "leave writer untouched" from "set writer" from
// "clear writer" without conflating a nil value with absence.
type WriterEdit struct {
	Present bool
	Clear   bool
	Value   uuid.UUID
}

// SnapshotInput is the row to insert for an admitted manifest.
type SnapshotInput struct {
	VolumeID      int64
	ManifestBytes []byte
	Signature     []byte
	Hash          vaultkey.Hash
	ParentID      *int64
	Generation    uint64
}

// ListFilter narrows ListSnapshots. When ParentHash is set it takes
// precedence and Root is ignored; when neither is set every snapshot in
// the volume is returned.
type ListFilter struct {
	ParentHash *vaultkey.Hash
	Root       bool
}
