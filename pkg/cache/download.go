package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/backend"
	"github.com/s3ql/main/pkg/metadata"
)

// download implements spec.md §4.6, called by Get on a miss. The caller
// must already hold the entry lock for key.
func (bc *BlockCache) download(ctx context.Context, key Key) (*Entry, error) {
	blockID, err := bc.store.BlockIDForInodeBlock(ctx, key.Inode, key.BlockNo)
	if errors.Is(err, metadata.ErrNotFound) {
		// No block has ever been written at this position: a zero-length
		// entry is the correct "new block" semantics (spec.md §4.6 step 2,
		// round-trip law "remove ∘ get returns a zero-length entry").
		return openEntry(bc.cacheDir, key)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: lookup block for (%d,%d): %w", key.Inode, key.BlockNo, err)
	}

	objID, err := bc.store.ObjectIDForBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("cache: lookup object for block %d: %w", blockID, err)
	}

	// Upload barrier (spec.md §4.6 step 3a): acquire-then-immediately-
	// release the object lock. Any in-flight upload for objID must finish
	// (and release the lock) before we proceed, guaranteeing the object is
	// now readable from the backend. The inode_blocks row we just read
	// prevents concurrent deletion of objID from racing us here.
	bc.objectLocks.Acquire(objID)
	bc.objectLocks.Release(objID)

	start := time.Now()
	size, err := bc.downloadObject(ctx, objID, key)
	if err != nil {
		if backend.IsNotFound(err) {
			logger.ErrorCtx(ctx, "backend object missing on download, data loss detected",
				logger.KeyObjectID, objID)
			bc.dataLoss.OnDataLoss(fmt.Sprintf("object %d missing on download", objID))
		}
		return nil, err
	}
	if bc.metrics != nil {
		bc.metrics.ObserveDownload(size, time.Since(start))
	}

	return openEntry(bc.cacheDir, key)
}

// downloadObject downloads s3ql_data_{objID} into {path}.tmp, fsyncs, and
// atomically renames it into place (spec.md §4.6 step 3b, §6 scratch
// directory layout).
func (bc *BlockCache) downloadObject(ctx context.Context, objID int64, key Key) (int64, error) {
	be, err := bc.backendPool.Lease(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: lease backend: %w", err)
	}
	defer bc.backendPool.Release(be)

	target := filepath.Join(bc.cacheDir, key.fileName())
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("cache: create download tmp file: %w", err)
	}

	objectKey := backend.ObjectKey(objID)
	var written int64
	readErr := be.Read(ctx, objectKey, func(r io.Reader) error {
		n, err := io.Copy(f, r)
		written = n
		return err
	})
	if readErr != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("cache: download %s: %w", objectKey, readErr)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("cache: fsync downloaded object: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("cache: close downloaded object: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("cache: rename downloaded object into place: %w", err)
	}

	return written, nil
}
