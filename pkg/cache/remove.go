package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/metadata"
)

// Remove removes the half-open block range [firstBlockno, endBlockno) for
// inode (a single block if endBlockno == firstBlockno+1). Implements
// spec.md §4.5/§4.9's two-pass policy: an opportunistic non-blocking pass
// first, then a blocking pass for whatever remains, so a just-created
// sibling block mid-upload does not stall removal of the rest of the range.
func (bc *BlockCache) Remove(ctx context.Context, inode, firstBlockno, endBlockno uint64) error {
	if bc.destroyed {
		return ErrClosed
	}
	if endBlockno <= firstBlockno {
		endBlockno = firstBlockno + 1
	}

	keys := make([]Key, 0, endBlockno-firstBlockno)
	for b := firstBlockno; b < endBlockno; b++ {
		keys = append(keys, Key{Inode: inode, BlockNo: b})
	}

	remaining := keys[:0:0]
	for _, key := range keys {
		if bc.entryLocks.TryAcquire(key) {
			if err := bc.removeLocked(ctx, key); err != nil {
				return err
			}
		} else {
			remaining = append(remaining, key)
		}
	}

	for _, key := range remaining {
		bc.entryLocks.Acquire(key)
		if err := bc.removeLocked(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// removeLocked runs with the entry lock for key already held, and releases
// it before returning.
func (bc *BlockCache) removeLocked(ctx context.Context, key Key) error {
	defer bc.entryLocks.Release(key)

	bc.mu.Lock()
	_, err := bc.entries.remove(key, true)
	bc.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cache: remove scratch entry (%d,%d): %w", key.Inode, key.BlockNo, err)
	}

	blockID, err := bc.store.BlockIDForInodeBlock(ctx, key.Inode, key.BlockNo)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: lookup block for removal (%d,%d): %w", key.Inode, key.BlockNo, err)
	}

	if err := bc.store.DeleteInodeBlock(ctx, key.Inode, key.BlockNo); err != nil {
		return fmt.Errorf("cache: delete inode_blocks row: %w", err)
	}

	return bc.deref(ctx, blockID)
}

// deref implements spec.md §4.8 block dereference.
func (bc *BlockCache) deref(ctx context.Context, blockID int64) error {
	refcount, err := bc.store.BlockRefcount(ctx, blockID)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read block refcount: %w", err)
	}

	if refcount > 1 {
		return bc.store.DecrementBlockRefcount(ctx, blockID)
	}

	objID, err := bc.store.ObjectIDForBlock(ctx, blockID)
	if err != nil {
		return fmt.Errorf("cache: read obj_id for block %d: %w", blockID, err)
	}
	if err := bc.store.DeleteBlock(ctx, blockID); err != nil {
		return fmt.Errorf("cache: delete block %d: %w", blockID, err)
	}

	objRefcount, objSize, err := bc.store.ObjectRefcountAndSize(ctx, objID)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read object %d: %w", objID, err)
	}

	if objRefcount > 1 {
		return bc.store.DecrementObjectRefcount(ctx, objID)
	}

	if err := bc.store.DeleteObject(ctx, objID); err != nil {
		return fmt.Errorf("cache: delete object %d: %w", objID, err)
	}

	// Barrier: wait for any in-flight upload of objID to finish before
	// deciding whether to enqueue a removal (spec.md §4.8 step 5).
	bc.objectLocks.Acquire(objID)
	bc.objectLocks.Release(objID)

	if objSize == metadata.SizeNotUploaded {
		// Upload never succeeded; nothing exists in the backend to delete.
		return nil
	}

	if !bc.removalQueue.Put(objID, 5*time.Second) {
		logger.ErrorCtx(ctx, "removal queue full, could not enqueue object delete",
			logger.KeyObjectID, objID)
		return fmt.Errorf("cache: removal queue full, could not enqueue object %d", objID)
	}
	return nil
}
