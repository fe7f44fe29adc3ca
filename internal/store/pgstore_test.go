package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

func testPubkey() vaultkey.PublicKey {
	priv, _ := vaultkey.GeneratePrivateKey()
	return priv.Public()
}

func TestCreateVolumeSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPGStore(db)
	pub := testPubkey()
	account := uuid.New()

	mock.ExpectQuery("INSERT INTO storage_volume").
		WithArgs(pub[:], account).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	v, err := s.CreateVolume(context.Background(), pub, account)
	require.NoError(t, err)
	require.Equal(t, int64(1), v.ID)
	require.True(t, pub.Equal(v.PubKey))
	require.Equal(t, account, v.Account)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVolumeDuplicatePubkeyIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPGStore(db)
	pub := testPubkey()
	account := uuid.New()

	mock.ExpectQuery("INSERT INTO storage_volume").
		WithArgs(pub[:], account).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err = s.CreateVolume(context.Background(), pub, account)
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVolumeByPubkeyNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPGStore(db)
	pub := testPubkey()

	mock.ExpectQuery("SELECT (.+) FROM storage_volume").
		WithArgs(pub[:]).
		WillReturnError(sql.ErrNoRows)

	_, err = s.GetVolumeByPubkey(context.Background(), pub)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSnapshotInsertedTrueOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPGStore(db)
	var hash vaultkey.Hash
	for i := range hash {
		hash[i] = byte(i)
	}

	in := SnapshotInput{
		VolumeID:      1,
		ManifestBytes: []byte("manifest-bytes"),
		Signature:     []byte("signature-bytes"),
		Hash:          hash,
		Generation:    0,
	}

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO storage_snapshot").
		WithArgs(in.VolumeID, in.ManifestBytes, in.Signature, hash[:], in.ParentID, int64(in.Generation)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	snap, inserted, err := s.CreateSnapshot(context.Background(), in)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, int64(42), snap.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSnapshotConflictRereadsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPGStore(db)
	var hash vaultkey.Hash
	in := SnapshotInput{VolumeID: 1, ManifestBytes: []byte("m"), Signature: []byte("s"), Hash: hash, Generation: 0}

	mock.ExpectQuery("INSERT INTO storage_snapshot").
		WillReturnError(&pq.Error{Code: "23505"})

	var existingHash vaultkey.Hash
	for i := range existingHash {
		existingHash[i] = byte(i + 1)
	}
	mock.ExpectQuery("SELECT (.+) FROM storage_snapshot").
		WithArgs(int64(1), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "volume_id", "manifest_bytes", "signature", "hash", "parent_id", "generation", "created_at"}).
			AddRow(int64(7), int64(1), []byte("existing-manifest"), []byte("existing-sig"), existingHash[:], nil, uint64(0), time.Now().UTC()))

	snap, inserted, err := s.CreateSnapshot(context.Background(), in)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, int64(7), snap.ID)
	require.Equal(t, existingHash, snap.Hash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingSurfacesError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	s := NewPGStore(db)
	mock.ExpectPing().WillReturnError(&pq.Error{Code: "08006"})

	err = s.Ping(context.Background())
	require.Error(t, err)
}
