// Package volumes implements the lifecycle operations (create, lookup,
// edit, delete) for volumes, plus the three-valued JSON edit payload.
package volumes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/store"
	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

// ErrForbidden is returned when the authenticated caller is not the
// volume's owning account.
var ErrForbidden = errors.New("volumes: caller is not the owning account")

// Registry exposes volume lifecycle operations over a Store.
type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// Create registers a new volume with the caller account as owner.
func (r *Registry) Create(ctx context.Context, pubkey vaultkey.PublicKey, account uuid.UUID) (store.Volume, error) {
	v, err := r.store.CreateVolume(ctx, pubkey, account)
	if err != nil {
		return store.Volume{}, fmt.Errorf("volumes: create: %w", err)
	}
	return v, nil
}

// Lookup returns the volume addressed by pubkey.
func (r *Registry) Lookup(ctx context.Context, pubkey vaultkey.PublicKey) (store.Volume, error) {
	v, err := r.store.GetVolumeByPubkey(ctx, pubkey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Volume{}, store.ErrNotFound
		}
		return store.Volume{}, fmt.Errorf("volumes: lookup: %w", err)
	}
	return v, nil
}

// Projection is the read-only view returned by Get.
type Projection struct {
	Account uuid.UUID
	Writer  *uuid.UUID
}

// Get returns the account/writer projection of a volume.
func (r *Registry) Get(ctx context.Context, pubkey vaultkey.PublicKey) (Projection, error) {
	v, err := r.Lookup(ctx, pubkey)
	if err != nil {
		return Projection{}, err
	}
	return Projection{Account: v.Account, Writer: v.Writer}, nil
}

// Delete removes a volume and all its snapshots. Only the owning account
// may delete.
func (r *Registry) Delete(ctx context.Context, pubkey vaultkey.PublicKey, callerAccount uuid.UUID) error {
	v, err := r.Lookup(ctx, pubkey)
	if err != nil {
		return err
	}
	if v.Account != callerAccount {
		return ErrForbidden
	}
	if err := r.store.DeleteVolume(ctx, v.ID); err != nil {
		return fmt.Errorf("volumes: delete: %w", err)
	}
	return nil
}

// EditRequest is the parsed form of the VolumeEdit HTTP payload.
type EditRequest struct {
	Account *uuid.UUID   `json:"account,omitempty"`
	Writer  OptionalUUID `json:"writer,omitempty"`
	Locked  *bool        `json:"lock,omitempty"`
}

// Edit applies a partial update to the volume addressed by pubkey.
func (r *Registry) Edit(ctx context.Context, pubkey vaultkey.PublicKey, edit EditRequest) (store.Volume, error) {
	v, err := r.Lookup(ctx, pubkey)
	if err != nil {
		return store.Volume{}, err
	}
	updated, err := r.store.EditVolume(ctx, v.ID, store.VolumeEdit{
		Account: edit.Account,
		Writer: store.WriterEdit{
			Present: edit.Writer.Present,
			Clear:   edit.Writer.Null,
			Value:   edit.Writer.Value,
		},
		Locked: edit.Locked,
	})
	if err != nil {
		return store.Volume{}, fmt.Errorf("volumes: edit: %w", err)
	}
	return updated, nil
}

// OptionalUUID distinguishes three JSON edit states for a field: absent
// from the request body, explicitly set to a value, or explicitly set to
// null (clear). The zero value represents "absent".
type OptionalUUID struct {
	Present bool
	Null    bool
	Value   uuid.UUID
}

func (o *OptionalUUID) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}
