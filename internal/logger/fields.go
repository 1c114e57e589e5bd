package logger

// Standard field keys for structured logging across the cache, metadata and
// backend packages. Consistent keys make log aggregation/querying possible
// across components; every call site should use these constants instead of
// ad-hoc string literals.
const (
	KeyOperation = "operation" // get, remove, flush, expire, upload, download, destroy

	KeyInode   = "inode"
	KeyBlockNo = "blockno"
	KeyObjectID = "object_id"
	KeyBlockID  = "block_id"
	KeyHash     = "hash"

	KeyBytes    = "bytes"
	KeyDuration = "duration_ms"
	KeyRate     = "rate_mib_s"

	KeyWorker   = "worker"
	KeyQueue    = "queue"
	KeyBackend  = "backend"
	KeyRefcount = "refcount"
	KeyReason   = "reason"
)
