// Package metadata is the typed facade over the objects/blocks/inode_blocks
// tables (spec.md §3, §6). The cache depends on nothing else in the
// metadata schema; this interface is the entire surface it consumes, one
// method per SQL statement enumerated in spec.md §6, so that a Postgres
// implementation and an in-memory implementation can be swapped behind it
// and exercised by the same conformance suite.
package metadata

import (
	"context"
	"errors"
)

// ErrNotFound is returned wherever spec.md's SQL surface distinguishes "no
// such row" from a hard failure (the Python source's NoSuchRowError).
var ErrNotFound = errors.New("metadata: not found")

// SizeNotUploaded is the sentinel objects.size value meaning "first upload
// still in flight or has never succeeded" (spec.md §3).
const SizeNotUploaded = -1

// Store is the facade the cache orchestrator (pkg/cache) is built against.
type Store interface {
	// BlockIDForInodeBlock implements
	// "SELECT block_id FROM inode_blocks WHERE inode=? AND blockno=?".
	BlockIDForInodeBlock(ctx context.Context, inode, blockno uint64) (blockID int64, err error)

	// BlockIDForHash implements "SELECT id FROM blocks WHERE hash=?". Rows
	// whose hash is NULL (upload-failed tombstones, spec.md §3) must never
	// be returned by this lookup.
	BlockIDForHash(ctx context.Context, hash [32]byte) (blockID int64, err error)

	// ObjectIDForBlock implements "SELECT obj_id FROM blocks WHERE id=?".
	ObjectIDForBlock(ctx context.Context, blockID int64) (objID int64, err error)

	// BlockRefcount implements "SELECT refcount FROM blocks WHERE id=?".
	BlockRefcount(ctx context.Context, blockID int64) (refcount int, err error)

	// ObjectRefcountAndSize implements
	// "SELECT refcount, size FROM objects WHERE id=?".
	ObjectRefcountAndSize(ctx context.Context, objID int64) (refcount int, size int64, err error)

	// InsertObjectPlaceholder implements
	// "INSERT INTO objects(refcount, size) VALUES(1, -1)" and returns the
	// new id.
	InsertObjectPlaceholder(ctx context.Context) (objID int64, err error)

	// InsertBlock implements
	// "INSERT INTO blocks(refcount, obj_id, hash, size) VALUES(1, ?, ?, ?)"
	// and returns the new id.
	InsertBlock(ctx context.Context, objID int64, hash [32]byte, size int64) (blockID int64, err error)

	// UpsertInodeBlock implements
	// "INSERT OR REPLACE INTO inode_blocks(block_id, inode, blockno) VALUES(?, ?, ?)".
	UpsertInodeBlock(ctx context.Context, blockID int64, inode, blockno uint64) error

	// IncrementBlockRefcount implements
	// "UPDATE blocks SET refcount=refcount+1 WHERE id=?".
	IncrementBlockRefcount(ctx context.Context, blockID int64) error

	// DecrementBlockRefcount implements
	// "UPDATE blocks SET refcount=refcount-1 WHERE id=?".
	DecrementBlockRefcount(ctx context.Context, blockID int64) error

	// ClearBlockHash implements "UPDATE blocks SET hash=NULL WHERE obj_id=?",
	// the "reserved but unusable" tombstone on upload failure (spec.md §4.7).
	ClearBlockHash(ctx context.Context, objID int64) error

	// CommitUpload implements "UPDATE objects SET size=? WHERE id=?",
	// called once an upload worker learns the real uploaded size.
	CommitUpload(ctx context.Context, objID int64, size int64) error

	// DecrementObjectRefcount implements
	// "UPDATE objects SET refcount=refcount-1 WHERE id=?".
	DecrementObjectRefcount(ctx context.Context, objID int64) error

	// DeleteBlock implements "DELETE FROM blocks WHERE id=?".
	DeleteBlock(ctx context.Context, blockID int64) error

	// DeleteObject implements "DELETE FROM objects WHERE id=?".
	DeleteObject(ctx context.Context, objID int64) error

	// DeleteInodeBlock implements
	// "DELETE FROM inode_blocks WHERE inode=? AND blockno=?".
	DeleteInodeBlock(ctx context.Context, inode, blockno uint64) error

	// Close releases any resources (connection pool, etc.) held by the store.
	Close(ctx context.Context) error
}
