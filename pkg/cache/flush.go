package cache

import (
	"context"
	"fmt"
)

// FlushLocal fsyncs the local scratch file for (inode, blockno) without
// uploading it (spec.md §4.5 "flush_local").
func (bc *BlockCache) FlushLocal(ctx context.Context, inode, blockno uint64) error {
	key := Key{Inode: inode, BlockNo: blockno}

	bc.entryLocks.Acquire(key)
	defer bc.entryLocks.Release(key)

	entry, ok := bc.peek(key)
	if !ok {
		return nil
	}
	if err := entry.flushLocal(); err != nil {
		return fmt.Errorf("cache: flush_local (%d,%d): %w", inode, blockno, err)
	}
	return nil
}

// StartFlush schedules uploads for every dirty entry and returns as soon as
// each one's database rows are committed, without waiting for bytes to
// finish transferring (spec.md §4.5 "start_flush") — required so that a
// metadata snapshot taken right after StartFlush returns is self-consistent.
func (bc *BlockCache) StartFlush(ctx context.Context) error {
	for _, key := range bc.snapshotKeys() {
		entry, ok := bc.peek(key)
		if !ok || !entry.Dirty() {
			continue
		}
		if _, err := bc.uploadIfDirty(ctx, key); err != nil {
			return fmt.Errorf("cache: start_flush (%d,%d): %w", key.Inode, key.BlockNo, err)
		}
	}
	return nil
}

// Flush schedules uploads for all dirty blocks, then waits until no entry
// remains in the in-transit set (spec.md §4.5 "flush", invariant 7).
func (bc *BlockCache) Flush(ctx context.Context) error {
	if err := bc.StartFlush(ctx); err != nil {
		return err
	}
	bc.waitTransferCompleted()
	return nil
}

// Drop forces a full expiry by temporarily setting max_entries to 0
// (spec.md §4.5 "drop").
func (bc *BlockCache) Drop(ctx context.Context) {
	bc.mu.Lock()
	savedMaxEntries := bc.entries.maxEntries
	savedMaxSize := bc.entries.maxSize
	bc.entries.maxEntries = 0
	bc.entries.maxSize = 0
	bc.mu.Unlock()

	bc.expire(ctx)

	bc.mu.Lock()
	bc.entries.maxEntries = savedMaxEntries
	bc.entries.maxSize = savedMaxSize
	bc.mu.Unlock()
}
