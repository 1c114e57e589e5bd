package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/s3ql/main/pkg/metadata"
)

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return metadata.ErrNotFound
	}
	return err
}

func (s *Store) BlockIDForInodeBlock(ctx context.Context, inode, blockno uint64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT block_id FROM inode_blocks WHERE inode=$1 AND blockno=$2`,
		int64(inode), int64(blockno)).Scan(&id)
	if err != nil {
		return 0, mapNoRows(err)
	}
	return id, nil
}

// BlockIDForHash looks up a block by content hash. hash=NULL rows (upload
// tombstones, spec.md §3) are excluded explicitly so dedup never links new
// data against a block whose upload failed.
func (s *Store) BlockIDForHash(ctx context.Context, hash [32]byte) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM blocks WHERE hash=$1 AND hash IS NOT NULL`,
		hash[:]).Scan(&id)
	if err != nil {
		return 0, mapNoRows(err)
	}
	return id, nil
}

func (s *Store) ObjectIDForBlock(ctx context.Context, blockID int64) (int64, error) {
	var objID int64
	err := s.pool.QueryRow(ctx,
		`SELECT obj_id FROM blocks WHERE id=$1`, blockID).Scan(&objID)
	if err != nil {
		return 0, mapNoRows(err)
	}
	return objID, nil
}

func (s *Store) BlockRefcount(ctx context.Context, blockID int64) (int, error) {
	var refcount int
	err := s.pool.QueryRow(ctx,
		`SELECT refcount FROM blocks WHERE id=$1`, blockID).Scan(&refcount)
	if err != nil {
		return 0, mapNoRows(err)
	}
	return refcount, nil
}

func (s *Store) ObjectRefcountAndSize(ctx context.Context, objID int64) (int, int64, error) {
	var refcount int
	var size int64
	err := s.pool.QueryRow(ctx,
		`SELECT refcount, size FROM objects WHERE id=$1`, objID).Scan(&refcount, &size)
	if err != nil {
		return 0, 0, mapNoRows(err)
	}
	return refcount, size, nil
}

func (s *Store) InsertObjectPlaceholder(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO objects (refcount, size) VALUES (1, -1) RETURNING id`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("metadata/postgres: insert object: %w", err)
	}
	return id, nil
}

func (s *Store) InsertBlock(ctx context.Context, objID int64, hash [32]byte, size int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO blocks (refcount, obj_id, hash, size) VALUES (1, $1, $2, $3) RETURNING id`,
		objID, hash[:], size).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("metadata/postgres: insert block: %w", err)
	}
	return id, nil
}

// UpsertInodeBlock implements "INSERT OR REPLACE" via Postgres's native
// ON CONFLICT DO UPDATE, the same idiom the teacher's
// pkg/metadata/store/postgres/objects.go uses for its own upserts.
func (s *Store) UpsertInodeBlock(ctx context.Context, blockID int64, inode, blockno uint64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO inode_blocks (inode, blockno, block_id) VALUES ($1, $2, $3)
		 ON CONFLICT (inode, blockno) DO UPDATE SET block_id = EXCLUDED.block_id`,
		int64(inode), int64(blockno), blockID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: upsert inode_block: %w", err)
	}
	return nil
}

func (s *Store) IncrementBlockRefcount(ctx context.Context, blockID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE blocks SET refcount = refcount + 1 WHERE id=$1`, blockID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: increment block refcount: %w", err)
	}
	return nil
}

// DecrementBlockRefcount uses GREATEST(refcount-1, 0), the same defensive
// floor the teacher's postgres store applies to every refcount decrement,
// so a caller bug can never drive a refcount negative.
func (s *Store) DecrementBlockRefcount(ctx context.Context, blockID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE blocks SET refcount = GREATEST(refcount - 1, 0) WHERE id=$1`, blockID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: decrement block refcount: %w", err)
	}
	return nil
}

func (s *Store) ClearBlockHash(ctx context.Context, objID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE blocks SET hash = NULL WHERE obj_id=$1`, objID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: clear block hash: %w", err)
	}
	return nil
}

func (s *Store) CommitUpload(ctx context.Context, objID int64, size int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE objects SET size=$1 WHERE id=$2`, size, objID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: commit upload: %w", err)
	}
	return nil
}

func (s *Store) DecrementObjectRefcount(ctx context.Context, objID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE objects SET refcount = GREATEST(refcount - 1, 0) WHERE id=$1`, objID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: decrement object refcount: %w", err)
	}
	return nil
}

func (s *Store) DeleteBlock(ctx context.Context, blockID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM blocks WHERE id=$1`, blockID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: delete block: %w", err)
	}
	return nil
}

func (s *Store) DeleteObject(ctx context.Context, objID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM objects WHERE id=$1`, objID)
	if err != nil {
		return fmt.Errorf("metadata/postgres: delete object: %w", err)
	}
	return nil
}

func (s *Store) DeleteInodeBlock(ctx context.Context, inode, blockno uint64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM inode_blocks WHERE inode=$1 AND blockno=$2`,
		int64(inode), int64(blockno))
	if err != nil {
		return fmt.Errorf("metadata/postgres: delete inode_block: %w", err)
	}
	return nil
}
