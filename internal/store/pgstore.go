package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vaultgraph/vaultd/internal/vaultkey"
)

const pgUniqueViolation = "23505"

// PGStore is the Postgres-backed Store implementation.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

func (s *PGStore) CreateVolume(ctx context.Context, pubkey vaultkey.PublicKey, account uuid.UUID) (Volume, error) {
	const query = `
		INSERT INTO storage_volume (pubkey, account, writer, locked)
		VALUES ($1, $2, NULL, false)
		RETURNING id
	`
	var id int64
	if err := s.db.QueryRowContext(ctx, query, pubkey[:], account).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return Volume{}, ErrConflict
		}
		return Volume{}, fmt.Errorf("store: insert volume: %w", err)
	}
	return Volume{ID: id, PubKey: pubkey, Account: account}, nil
}

func (s *PGStore) GetVolumeByPubkey(ctx context.Context, pubkey vaultkey.PublicKey) (Volume, error) {
	const query = `
		SELECT id, pubkey, account, writer, locked
		FROM storage_volume
		WHERE pubkey = $1
	`
	return s.scanVolume(s.db.QueryRowContext(ctx, query, pubkey[:]))
}

func (s *PGStore) scanVolume(row *sql.Row) (Volume, error) {
	var (
		v        Volume
		pubBytes []byte
		writer   uuid.NullUUID
	)
	if err := row.Scan(&v.ID, &pubBytes, &v.Account, &writer, &v.Locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Volume{}, ErrNotFound
		}
		return Volume{}, fmt.Errorf("store: select volume: %w", err)
	}
	pk, err := vaultkey.PublicKeyFromBytes(pubBytes)
	if err != nil {
		return Volume{}, fmt.Errorf("store: decode stored pubkey: %w", err)
	}
	v.PubKey = pk
	if writer.Valid {
		w := writer.UUID
		v.Writer = &w
	}
	return v, nil
}

func (s *PGStore) DeleteVolume(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete volume tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM storage_snapshot WHERE volume_id = $1`, id); err != nil {
		return fmt.Errorf("store: delete snapshots: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM storage_volume WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete volume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *PGStore) EditVolume(ctx context.Context, id int64, edit VolumeEdit) (Volume, error) {
	const query = `
		UPDATE storage_volume
		SET account = COALESCE($2, account),
		    writer = CASE WHEN $3 THEN (CASE WHEN $4 THEN NULL ELSE $5 END) ELSE writer END,
		    locked = COALESCE($6, locked)
		WHERE id = $1
		RETURNING id, pubkey, account, writer, locked
	`
	var writerValue uuid.NullUUID
	if edit.Writer.Present && !edit.Writer.Clear {
		writerValue = uuid.NullUUID{UUID: edit.Writer.Value, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, query,
		id,
		edit.Account,
		edit.Writer.Present,
		edit.Writer.Clear,
		writerValue,
		edit.Locked,
	)
	return s.scanVolume(row)
}

func (s *PGStore) CreateSnapshot(ctx context.Context, in SnapshotInput) (Snapshot, bool, error) {
	const insert = `
		INSERT INTO storage_snapshot (volume_id, manifest_bytes, signature, hash, parent_id, generation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`
	var (
		id        int64
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx, insert,
		in.VolumeID, in.ManifestBytes, in.Signature, in.Hash[:], in.ParentID, in.Generation,
	).Scan(&id, &createdAt)
	if err == nil {
		return Snapshot{
			ID:            id,
			VolumeID:      in.VolumeID,
			ManifestBytes: in.ManifestBytes,
			Signature:     in.Signature,
			Hash:          in.Hash,
			ParentID:      in.ParentID,
			Generation:    in.Generation,
			CreatedAt:     createdAt,
		}, true, nil
	}
	if !isUniqueViolation(err) {
		return Snapshot{}, false, fmt.Errorf("store: insert snapshot: %w", err)
	}

	existing, getErr := s.GetSnapshotByGeneration(ctx, in.VolumeID, in.Generation)
	if getErr != nil {
		return Snapshot{}, false, fmt.Errorf("store: reread after conflict: %w", getErr)
	}
	return existing, false, nil
}

func (s *PGStore) GetSnapshotByHash(ctx context.Context, volumeID int64, hash vaultkey.Hash) (Snapshot, error) {
	const query = `
		SELECT id, volume_id, manifest_bytes, signature, hash, parent_id, generation, created_at
		FROM storage_snapshot
		WHERE volume_id = $1 AND hash = $2
	`
	return s.scanSnapshot(s.db.QueryRowContext(ctx, query, volumeID, hash[:]))
}

func (s *PGStore) GetSnapshotByGeneration(ctx context.Context, volumeID int64, generation uint64) (Snapshot, error) {
	const query = `
		SELECT id, volume_id, manifest_bytes, signature, hash, parent_id, generation, created_at
		FROM storage_snapshot
		WHERE volume_id = $1 AND generation = $2
	`
	return s.scanSnapshot(s.db.QueryRowContext(ctx, query, volumeID, generation))
}

func (s *PGStore) scanSnapshot(row *sql.Row) (Snapshot, error) {
	var (
		snap      Snapshot
		hashBytes []byte
		parentID  sql.NullInt64
	)
	if err := row.Scan(
		&snap.ID, &snap.VolumeID, &snap.ManifestBytes, &snap.Signature,
		&hashBytes, &parentID, &snap.Generation, &snap.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("store: select snapshot: %w", err)
	}
	h, err := vaultkey.HashFromBytes(hashBytes)
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: decode stored hash: %w", err)
	}
	snap.Hash = h
	if parentID.Valid {
		pid := parentID.Int64
		snap.ParentID = &pid
	}
	return snap, nil
}

func (s *PGStore) ListSnapshots(ctx context.Context, volumeID int64, filter ListFilter) ([]Snapshot, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case filter.ParentHash != nil:
		parent, pErr := s.GetSnapshotByHash(ctx, volumeID, *filter.ParentHash)
		if pErr != nil {
			return nil, pErr
		}
		const query = `
			SELECT id, volume_id, manifest_bytes, signature, hash, parent_id, generation, created_at
			FROM storage_snapshot
			WHERE volume_id = $1 AND parent_id = $2
			ORDER BY generation ASC, created_at ASC
		`
		rows, err = s.db.QueryContext(ctx, query, volumeID, parent.ID)
	case filter.Root:
		const query = `
			SELECT id, volume_id, manifest_bytes, signature, hash, parent_id, generation, created_at
			FROM storage_snapshot
			WHERE volume_id = $1 AND parent_id IS NULL
			ORDER BY generation ASC, created_at ASC
		`
		rows, err = s.db.QueryContext(ctx, query, volumeID)
	default:
		const query = `
			SELECT id, volume_id, manifest_bytes, signature, hash, parent_id, generation, created_at
			FROM storage_snapshot
			WHERE volume_id = $1
			ORDER BY generation ASC, created_at ASC
		`
		rows, err = s.db.QueryContext(ctx, query, volumeID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap      Snapshot
			hashBytes []byte
			parentID  sql.NullInt64
		)
		if err := rows.Scan(
			&snap.ID, &snap.VolumeID, &snap.ManifestBytes, &snap.Signature,
			&hashBytes, &parentID, &snap.Generation, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		h, err := vaultkey.HashFromBytes(hashBytes)
		if err != nil {
			return nil, fmt.Errorf("store: decode stored hash: %w", err)
		}
		snap.Hash = h
		if parentID.Valid {
			pid := parentID.Int64
			snap.ParentID = &pid
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
