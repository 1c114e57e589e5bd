package cache

import "errors"

// Error kinds from spec.md §7, beyond what pkg/backend already classifies
// (NotFound, TempFailure).

// ErrCorrupted names the condition of a downloaded object whose content
// does not match the digest recorded in blocks.hash. The download path does
// not verify content against blocks.hash, so no function in this package
// returns ErrCorrupted.
var ErrCorrupted = errors.New("cache: downloaded object failed checksum verification")

// ErrNoWorkers is returned when a producer (upload or removal) cannot find
// a live worker to hand work to (spec.md §7 NoWorkerThreads).
var ErrNoWorkers = errors.New("cache: no live worker threads to accept work")

// ErrClosed is returned by Get and Remove when called after Destroy. The
// other public BlockCache methods do not check for a destroyed cache.
var ErrClosed = errors.New("cache: block cache has been destroyed")

// DataLoss is the interface a cache consumes to report a detected data-loss
// condition without holding a back-reference to the filesystem layer. It is
// supplied through Config.DataLoss when New is called; there is no way to
// set or replace it on an existing BlockCache.
type DataLoss interface {
	// OnDataLoss is invoked whenever the cache detects that backend data
	// is missing or may be lost (a NotFound during download, an absent
	// object or a partially failed batch during removal, a failed upload,
	// workers or in-transit uploads left over at shutdown). The filesystem
	// layer is expected to set its failsafe flag and refuse further writes.
	OnDataLoss(reason string)
}

// noopDataLoss is used when the caller supplies no collaborator; it does
// nothing, so New never requires a non-nil DataLoss.
type noopDataLoss struct{}

func (noopDataLoss) OnDataLoss(string) {}
