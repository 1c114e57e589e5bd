package cache

import (
	"context"

	"github.com/s3ql/main/internal/logger"
)

// expire implements spec.md §4.9: bring size<=maxSize and len<=maxEntries,
// repeating until satisfied or everything remaining is in-transit.
// Iterates a snapshot of keys (oldest/LRU first) so the scan tolerates
// concurrent mutation of the live map while bc.mu is not held throughout
// (spec.md §9 "snapshotting keys").
func (bc *BlockCache) expire(ctx context.Context) {
	for {
		bc.mu.Lock()
		deficitMet := !bc.entries.isFull()
		bc.mu.Unlock()
		if deficitMet {
			return
		}

		keys := bc.snapshotKeys()
		scheduledAny := false

		for _, key := range keys {
			bc.mu.Lock()
			stillFull := bc.entries.isFull()
			bc.mu.Unlock()
			if !stillFull {
				break
			}

			entry, ok := bc.peek(key)
			if !ok {
				continue
			}

			if entry.Dirty() {
				status, err := bc.uploadIfDirty(ctx, key)
				if err != nil {
					logger.WarnCtx(ctx, "expire: upload_if_dirty failed", "error", err)
					continue
				}
				if status == StatusScheduled {
					scheduledAny = true
				}
				continue
			}

			if !bc.entryLocks.TryAcquire(key) {
				continue
			}
			bc.mu.Lock()
			cur, ok := bc.entries.get(key, false)
			if ok && cur == entry && !cur.Dirty() {
				bc.entries.remove(key, true)
				if bc.metrics != nil {
					bc.metrics.RecordEviction()
				}
			}
			bc.mu.Unlock()
			bc.entryLocks.Release(key)
		}

		if scheduledAny {
			bc.waitTransferCompleted()
			continue
		}

		// Nothing more can be done this pass: either the deficit is met,
		// or everything left is in-transit (spec.md invariant 6).
		bc.mu.Lock()
		done := !bc.entries.isFull()
		bc.mu.Unlock()
		if done || bc.inTransitCount() == 0 {
			return
		}
		bc.waitTransferCompleted()
	}
}

func (bc *BlockCache) snapshotKeys() []Key {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.entries.snapshot()
}

func (bc *BlockCache) peek(key Key) (*Entry, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.entries.get(key, false)
}
