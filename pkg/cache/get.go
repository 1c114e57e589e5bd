package cache

import (
	"context"

	"github.com/s3ql/main/internal/logger"
)

// Handle is a scoped acquisition of a CacheEntry returned by Get. Callers
// must call Close exactly once when done mutating or reading it
// (spec.md §4.5 "get ... yields the entry to the caller. On release:
// updates CacheMap.size by (new_size - old_size); releases the entry
// lock").
type Handle struct {
	bc      *BlockCache
	key     Key
	entry   *Entry
	oldSize int64
	closed  bool
}

// Entry exposes the underlying scratch file for reads/writes. The caller
// must not retain it past Close.
func (h *Handle) Entry() *Entry { return h.entry }

// Close commits the entry's size delta into the CacheMap and releases the
// entry lock. Calls after the first are no-ops.
func (h *Handle) Close() {
	if h.closed {
		return
	}
	h.closed = true

	h.bc.mu.Lock()
	h.bc.entries.adjustSize(h.entry.Size() - h.oldSize)
	h.bc.mu.Unlock()

	h.bc.entryLocks.Release(h.key)
}

// Get is the scoped acquisition of spec.md §4.5: if the CacheMap is full,
// runs expire first; acquires the entry lock on (inode, blockno) (possibly
// downloading the block on miss); yields the entry. Concurrent Get calls on
// the same (inode, blockno) serialize via the entry lock (spec.md §8
// scenario S6).
func (bc *BlockCache) Get(ctx context.Context, inode, blockno uint64) (*Handle, error) {
	if bc.destroyed {
		return nil, ErrClosed
	}
	key := Key{Inode: inode, BlockNo: blockno}

	lc := logger.NewLogContext("get").WithBlock(inode, blockno)
	ctx = logger.WithContext(ctx, lc)

	bc.mu.Lock()
	full := bc.entries.isFull()
	bc.mu.Unlock()
	if full {
		bc.expire(ctx)
	}

	// Suspension point: acquire the entry lock without holding bc.mu, so
	// unrelated keys are never blocked behind this one (spec.md §5).
	bc.entryLocks.Acquire(key)

	bc.mu.Lock()
	entry, ok := bc.entries.get(key, true)
	bc.mu.Unlock()

	if ok {
		return &Handle{bc: bc, key: key, entry: entry, oldSize: entry.Size()}, nil
	}

	entry, err := bc.download(ctx, key)
	if err != nil {
		bc.entryLocks.Release(key)
		return nil, err
	}

	bc.mu.Lock()
	bc.entries.insert(entry)
	bc.mu.Unlock()

	return &Handle{bc: bc, key: key, entry: entry, oldSize: entry.Size()}, nil
}
