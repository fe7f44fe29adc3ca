package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vaultgraph/vaultd/internal/store"
	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

func testPubkey() vaultkey.PublicKey {
	priv, _ := vaultkey.GeneratePrivateKey()
	return priv.Public()
}

func TestMemStoreCreateAndLookupVolume(t *testing.T) {
	ms := NewMemStore()
	pub := testPubkey()
	account := uuid.New()

	v, err := ms.CreateVolume(context.Background(), pub, account)
	require.NoError(t, err)
	require.NotZero(t, v.ID)

	got, err := ms.GetVolumeByPubkey(context.Background(), pub)
	require.NoError(t, err)
	require.Equal(t, v, got)

	_, err = ms.CreateVolume(context.Background(), pub, account)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestMemStoreEditVolumeThreeValuedWriter(t *testing.T) {
	ms := NewMemStore()
	pub := testPubkey()
	v, err := ms.CreateVolume(context.Background(), pub, uuid.New())
	require.NoError(t, err)

	writer := uuid.New()
	updated, err := ms.EditVolume(context.Background(), v.ID, store.VolumeEdit{
		Writer: store.WriterEdit{Present: true, Value: writer},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Writer)
	require.Equal(t, writer, *updated.Writer)

	cleared, err := ms.EditVolume(context.Background(), v.ID, store.VolumeEdit{
		Writer: store.WriterEdit{Present: true, Clear: true},
	})
	require.NoError(t, err)
	require.Nil(t, cleared.Writer)

	untouched, err := ms.EditVolume(context.Background(), v.ID, store.VolumeEdit{})
	require.NoError(t, err)
	require.Nil(t, untouched.Writer)
}

func TestMemStoreDeleteVolumeCascadesSnapshots(t *testing.T) {
	ms := NewMemStore()
	pub := testPubkey()
	v, err := ms.CreateVolume(context.Background(), pub, uuid.New())
	require.NoError(t, err)

	var hash vaultkey.Hash
	hash[0] = 1
	_, inserted, err := ms.CreateSnapshot(context.Background(), store.SnapshotInput{
		VolumeID: v.ID, Hash: hash, Generation: 0,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	require.NoError(t, ms.DeleteVolume(context.Background(), v.ID))

	_, err = ms.GetSnapshotByHash(context.Background(), v.ID, hash)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = ms.GetVolumeByPubkey(context.Background(), pub)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemStoreCreateSnapshotIdempotentBySameGeneration(t *testing.T) {
	ms := NewMemStore()
	pub := testPubkey()
	v, err := ms.CreateVolume(context.Background(), pub, uuid.New())
	require.NoError(t, err)

	var hash vaultkey.Hash
	hash[0] = 7
	first, inserted, err := ms.CreateSnapshot(context.Background(), store.SnapshotInput{
		VolumeID: v.ID, Hash: hash, Generation: 3, ManifestBytes: []byte("a"),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	second, inserted2, err := ms.CreateSnapshot(context.Background(), store.SnapshotInput{
		VolumeID: v.ID, Hash: hash, Generation: 3, ManifestBytes: []byte("b"),
	})
	require.NoError(t, err)
	require.False(t, inserted2)
	require.Equal(t, first.ID, second.ID)
}

func TestMemStoreListSnapshotsOrderingAndFilters(t *testing.T) {
	ms := NewMemStore()
	pub := testPubkey()
	v, err := ms.CreateVolume(context.Background(), pub, uuid.New())
	require.NoError(t, err)

	var rootHash vaultkey.Hash
	rootHash[0] = 1
	root, _, err := ms.CreateSnapshot(context.Background(), store.SnapshotInput{
		VolumeID: v.ID, Hash: rootHash, Generation: 0,
	})
	require.NoError(t, err)

	var childHash vaultkey.Hash
	childHash[0] = 2
	parentID := root.ID
	_, _, err = ms.CreateSnapshot(context.Background(), store.SnapshotInput{
		VolumeID: v.ID, Hash: childHash, Generation: 1, ParentID: &parentID,
	})
	require.NoError(t, err)

	roots, err := ms.ListSnapshots(context.Background(), v.ID, store.ListFilter{Root: true})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, rootHash, roots[0].Hash)

	children, err := ms.ListSnapshots(context.Background(), v.ID, store.ListFilter{ParentHash: &rootHash})
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, childHash, children[0].Hash)

	all, err := ms.ListSnapshots(context.Background(), v.ID, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, uint64(0), all[0].Generation)
	require.Equal(t, uint64(1), all[1].Generation)
}
