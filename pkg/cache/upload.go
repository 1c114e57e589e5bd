package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/backend"
	"github.com/s3ql/main/pkg/metadata"
	"github.com/s3ql/main/pkg/transfer"
)

// Status is the result of uploadIfDirty, mirroring the three outcomes
// spec.md §4.7 distinguishes.
type Status int

const (
	StatusNoOp Status = iota
	StatusScheduled
	StatusUploaded
)

type uploadJob struct {
	key   Key
	entry *Entry
	objID int64
}

// uploadIfDirty implements spec.md §4.7. Short-circuits if key is already
// in-transit ("scheduled") or not dirty ("no-op"). Otherwise computes the
// content digest, resolves dedup, and either hands the entry to an upload
// worker or finishes the dedup-match path inline.
func (bc *BlockCache) uploadIfDirty(ctx context.Context, key Key) (Status, error) {
	if bc.isInTransit(key) {
		return StatusScheduled, nil
	}

	bc.entryLocks.Acquire(key)

	bc.mu.Lock()
	entry, ok := bc.entries.get(key, false)
	bc.mu.Unlock()

	if !ok {
		bc.entryLocks.Release(key)
		return StatusNoOp, nil
	}
	if bc.isInTransit(key) {
		bc.entryLocks.Release(key)
		return StatusScheduled, nil
	}
	if !entry.Dirty() {
		bc.entryLocks.Release(key)
		return StatusNoOp, nil
	}

	bc.markInTransit(key)

	contents, err := entry.contents()
	if err != nil {
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, fmt.Errorf("cache: read entry contents for digest: %w", err)
	}
	digest := sha256.Sum256(contents)

	oldBlockID, err := bc.store.BlockIDForInodeBlock(ctx, key.Inode, key.BlockNo)
	hadOld := true
	if errors.Is(err, metadata.ErrNotFound) {
		hadOld = false
	} else if err != nil {
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, fmt.Errorf("cache: lookup old block id: %w", err)
	}

	matchedBlockID, err := bc.store.BlockIDForHash(ctx, digest)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return bc.uploadNewContent(ctx, key, entry, digest, int64(len(contents)), hadOld, oldBlockID)
	case err != nil:
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, fmt.Errorf("cache: lookup block by hash: %w", err)
	default:
		return bc.finishDedupMatch(ctx, key, entry, matchedBlockID, hadOld, oldBlockID)
	}
}

// uploadNewContent is the "no match" branch of spec.md §4.7 step 5: a
// fresh objects/blocks row is reserved before the upload starts, so a
// concurrent uploader computing the same new hash takes the dedup path
// instead of racing to insert a duplicate row (spec.md §4.7 "upload
// rationale").
func (bc *BlockCache) uploadNewContent(ctx context.Context, key Key, entry *Entry, digest [32]byte, size int64, hadOld bool, oldBlockID int64) (Status, error) {
	objID, err := bc.store.InsertObjectPlaceholder(ctx)
	if err != nil {
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, fmt.Errorf("cache: insert object placeholder: %w", err)
	}

	blockID, err := bc.store.InsertBlock(ctx, objID, digest, size)
	if err != nil {
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, fmt.Errorf("cache: insert block: %w", err)
	}

	if err := bc.store.UpsertInodeBlock(ctx, blockID, key.Inode, key.BlockNo); err != nil {
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, fmt.Errorf("cache: upsert inode_blocks: %w", err)
	}

	// Still holding the entry lock, acquire the object lock and hand off
	// to the upload Distributor (spec.md §4.7 step 5). The worker owns
	// both locks from here and releases them on completion.
	bc.objectLocks.Acquire(objID)

	bc.derefIfReplaced(ctx, hadOld, oldBlockID, blockID)

	job := uploadJob{key: key, entry: entry, objID: objID}
	if !bc.uploadDist.Put(job, 5*time.Second) {
		// No worker accepted the hand-off within the timeout: either all
		// workers are dead or shutdown is underway (spec.md §5 "Timeouts").
		bc.objectLocks.Release(objID)
		bc.clearInTransit(key)
		bc.entryLocks.Release(key)
		return StatusNoOp, ErrNoWorkers
	}
	return StatusScheduled, nil
}

// finishDedupMatch is the "match" branch of spec.md §4.7 step 5.
func (bc *BlockCache) finishDedupMatch(ctx context.Context, key Key, entry *Entry, matchedBlockID int64, hadOld bool, oldBlockID int64) (Status, error) {
	if !hadOld || matchedBlockID != oldBlockID {
		if err := bc.store.IncrementBlockRefcount(ctx, matchedBlockID); err != nil {
			bc.clearInTransit(key)
			bc.entryLocks.Release(key)
			return StatusNoOp, fmt.Errorf("cache: bump refcount on dedup match: %w", err)
		}
		if err := bc.store.UpsertInodeBlock(ctx, matchedBlockID, key.Inode, key.BlockNo); err != nil {
			bc.clearInTransit(key)
			bc.entryLocks.Release(key)
			return StatusNoOp, fmt.Errorf("cache: relink inode_blocks on dedup match: %w", err)
		}
	}

	entry.markClean()
	bc.clearInTransit(key)
	bc.entryLocks.Release(key)

	if bc.metrics != nil {
		bc.metrics.RecordDedupHit()
	}

	bc.derefIfReplaced(ctx, hadOld, oldBlockID, matchedBlockID)
	return StatusNoOp, nil
}

// derefIfReplaced runs block dereference on oldBlockID only when the link
// at (inode, blockno) actually moved away from it — rederefing an unchanged
// link would double-release a refcount that was never incremented for this
// write (spec.md §4.7 step 6, resolved in DESIGN.md's open-question
// decisions).
func (bc *BlockCache) derefIfReplaced(ctx context.Context, hadOld bool, oldBlockID, newBlockID int64) {
	if !hadOld || oldBlockID == newBlockID {
		return
	}
	if err := bc.deref(ctx, oldBlockID); err != nil {
		logger.ErrorCtx(ctx, "block dereference failed", logger.KeyBlockID, oldBlockID, "error", err)
	}
}

// uploadWorker drains the upload Distributor until it receives
// transfer.Quit (spec.md §4.11).
func (bc *BlockCache) uploadWorker(stop <-chan struct{}) {
	for {
		v := bc.uploadDist.Get()
		if v == transfer.Quit {
			return
		}
		job, ok := v.(uploadJob)
		if !ok {
			continue
		}
		bc.runUpload(job)
	}
}

// runUpload performs the actual backend write for one uploadJob and
// commits or tombstones accordingly (spec.md §4.7 worker completion,
// "Upload failure handling").
func (bc *BlockCache) runUpload(job uploadJob) {
	ctx := logger.WithContext(context.Background(),
		logger.NewLogContext("upload").WithBlock(job.key.Inode, job.key.BlockNo).WithObject(job.objID))

	start := time.Now()
	size, err := bc.uploadObject(ctx, job)

	if err != nil {
		logger.ErrorCtx(ctx, "upload failed after retries, tombstoning object", "error", err)
		if clearErr := bc.store.ClearBlockHash(ctx, job.objID); clearErr != nil {
			logger.ErrorCtx(ctx, "failed to tombstone blocks.hash after upload failure", "error", clearErr)
		}
		if bc.metrics != nil {
			bc.metrics.RecordUploadFailure()
		}
		bc.dataLoss.OnDataLoss(fmt.Sprintf("upload of object %d failed: %v", job.objID, err))
	} else {
		if commitErr := bc.store.CommitUpload(ctx, job.objID, size); commitErr != nil {
			logger.ErrorCtx(ctx, "failed to commit uploaded object size", "error", commitErr)
		} else {
			job.entry.markClean()
		}
		if bc.metrics != nil {
			bc.metrics.ObserveUpload(size, time.Since(start))
		}
	}

	bc.objectLocks.Release(job.objID)
	bc.clearInTransit(job.key)
	bc.entryLocks.Release(job.key)
}

func (bc *BlockCache) uploadObject(ctx context.Context, job uploadJob) (int64, error) {
	be, err := bc.backendPool.Lease(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: lease backend for upload: %w", err)
	}
	defer bc.backendPool.Release(be)

	contents, err := job.entry.contents()
	if err != nil {
		return 0, fmt.Errorf("cache: read entry contents for upload: %w", err)
	}

	size, err := be.Write(ctx, backend.ObjectKey(job.objID), func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(contents))
		return err
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}
