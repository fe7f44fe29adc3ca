package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// Volume is the persisted record for a logical container addressed by an
// Ed25519 public key.
type Volume struct {
	ID      int64
	PubKey  vaultkey.PublicKey
	Account uuid.UUID
	Writer  *uuid.UUID
	Locked  bool
}

// Snapshot is an immutable row in a volume's generational chain.
type Snapshot struct {
	ID            int64
	VolumeID      int64
	ManifestBytes []byte
	Signature     []byte
	Hash          vaultkey.Hash
	ParentID      *int64
	Generation    uint64
	CreatedAt     time.Time
}
