package cache

import (
	"context"
	"fmt"

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/backend"
	"github.com/s3ql/main/pkg/transfer"
)

// singleDeleteWorkerCount is the fallback fan-out when the backend has no
// bulk-delete support (spec.md §4.5 "init").
const singleDeleteWorkerCount = 20

// singleDeleteWorker pulls object ids one at a time and issues one backend
// delete per id (spec.md §4.10 "Single-delete worker"), used when the
// backend reports no bulk-delete support.
func (bc *BlockCache) singleDeleteWorker(stop <-chan struct{}) {
	for {
		v := bc.removalQueue.Get()
		if v == transfer.Quit {
			return
		}
		if v == transfer.Flush {
			continue
		}
		objID, ok := v.(int64)
		if !ok {
			continue
		}
		bc.deleteOne(objID)
	}
}

func (bc *BlockCache) deleteOne(objID int64) {
	ctx := logger.WithContext(context.Background(),
		logger.NewLogContext("removal").WithObject(objID))

	be, err := bc.backendPool.Lease(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "single-delete worker failed to lease backend", "error", err)
		return
	}
	defer bc.backendPool.Release(be)

	err = be.Delete(ctx, backend.ObjectKey(objID))
	if err != nil && !backend.IsNotFound(err) {
		logger.ErrorCtx(ctx, "object delete failed", "error", err)
		return
	}
	if backend.IsNotFound(err) {
		logger.WarnCtx(ctx, "object already absent on delete, failsafe engaged")
		bc.dataLoss.OnDataLoss(fmt.Sprintf("object %d already absent on delete", objID))
	}
}

// multiDeleteWorker coalesces ids into batches bounded by maxBatch and
// issues bulk deletes (spec.md §4.10 "Multi-delete worker").
func (bc *BlockCache) multiDeleteWorker(stop <-chan struct{}, maxBatch int) {
	if maxBatch <= 0 {
		maxBatch = 1000
	}

	var batch []int64
	for {
		v, ok := bc.removalQueue.GetNonBlocking()
		if !ok {
			if len(batch) > 0 {
				bc.deleteBatch(batch)
				batch = nil
			}
			v = bc.removalQueue.Get()
			ok = true
		}

		if v == transfer.Quit {
			if len(batch) > 0 {
				bc.deleteBatch(batch)
			}
			return
		}
		if v == transfer.Flush {
			if len(batch) > 0 {
				bc.deleteBatch(batch)
				batch = nil
			}
			continue
		}

		objID, idOk := v.(int64)
		if !idOk {
			continue
		}
		batch = append(batch, objID)
		if len(batch) >= maxBatch {
			bc.deleteBatch(batch)
			batch = nil
		}
	}
}

func (bc *BlockCache) deleteBatch(objIDs []int64) {
	ctx := logger.WithContext(context.Background(), logger.NewLogContext("removal"))

	be, err := bc.backendPool.Lease(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "multi-delete worker failed to lease backend", "error", err)
		return
	}
	defer bc.backendPool.Release(be)

	keys := make([]string, len(objIDs))
	for i, id := range objIDs {
		keys[i] = backend.ObjectKey(id)
	}

	failed, err := be.DeleteMulti(ctx, keys)
	if err != nil {
		logger.ErrorCtx(ctx, "batch delete failed", "error", err, "batch_size", len(objIDs))
		return
	}
	if len(failed) > 0 {
		logger.WarnCtx(ctx, "some objects in batch could not be deleted, failsafe engaged",
			"failed_count", len(failed))
		bc.dataLoss.OnDataLoss("multi-delete batch had partial failures")
	}
}
