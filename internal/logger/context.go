package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped fields threaded through a single cache
// operation (get/remove/flush/...), so a worker goroutine that picks up
// work asynchronously can still log with the coordinates of the call that
// originated it.
type LogContext struct {
	Operation string // "get", "upload", "download", "expire", "remove", ...
	Inode     uint64
	BlockNo   uint64
	ObjectID  int64
	StartTime time.Time
}

func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

func NewLogContext(operation string) *LogContext {
	return &LogContext{Operation: operation, StartTime: time.Now()}
}

func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

func (lc *LogContext) WithBlock(inode, blockno uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Inode = inode
		clone.BlockNo = blockno
	}
	return clone
}

func (lc *LogContext) WithObject(objectID int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ObjectID = objectID
	}
	return clone
}

func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
