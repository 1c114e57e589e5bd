// Package metrics defines the observability surface for the block cache
// orchestrator (pkg/cache), grounded on the teacher's pkg/cache/cache_metrics.go
// interface shape; here the interface lives in this package rather than in
// pkg/cache, which imports it. Passing a nil CacheMetrics
// disables collection with zero overhead; every implementation method must
// tolerate a nil receiver.
package metrics

import "time"

// CacheMetrics is the observability surface pkg/cache is built against.
// Optional: pass nil to disable metrics collection entirely.
type CacheMetrics interface {
	// ObserveUpload records one completed upload of size bytes, taking
	// duration.
	ObserveUpload(bytes int64, duration time.Duration)

	// ObserveDownload records one completed download of size bytes, taking
	// duration.
	ObserveDownload(bytes int64, duration time.Duration)

	// RecordEviction records one CacheMap entry evicted during expire.
	RecordEviction()

	// RecordDedupHit records one upload_if_dirty call that matched an
	// existing blocks.hash row instead of creating a new object.
	RecordDedupHit()

	// RecordUploadFailure records one upload that exhausted retries and
	// tombstoned its object (spec.md §4.7).
	RecordUploadFailure()

	// SetInTransit reports the current size of the in-transit set
	// (spec.md §3, invariant 8).
	SetInTransit(count int)

	// SetRemovalQueueDepth reports the current depth of the removal queue.
	SetRemovalQueueDepth(depth int)

	// SetCacheUsage reports the CacheMap's current entries/bytes, matching
	// the tuple returned by BlockCache.Usage (spec.md §4.5).
	SetCacheUsage(entries int, bytes int64, dirtyEntries int, dirtyBytes int64)
}
