// Package logger provides the structured logging surface used across the
// cache, metadata, and backend packages. It wraps log/slog with an
// atomically-swappable handler so the process can reconfigure level/format
// at runtime (e.g. from a SIGHUP handler or a config reload) without handing
// every package its own logger instance.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level is the logger's own level enum, decoupled from slog.Level so that
// config files and flags can use plain strings without importing log/slog.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return LevelDebug
	case "WARN", "warn":
		return LevelWarn
	case "ERROR", "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config controls process-wide logger construction.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output io.Writer
}

var (
	currentLevel atomic.Int32

	mu      sync.RWMutex
	slogger *slog.Logger
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	reconfigure("text", os.Stderr)
}

// Configure rebuilds the process-wide logger from cfg. Safe to call more
// than once (e.g. after a config reload).
func Configure(cfg Config) {
	currentLevel.Store(int32(ParseLevel(cfg.Level)))
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	reconfigure(cfg.Format, out)
}

func reconfigure(format string, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))

	opts := &slog.HandlerOptions{Level: levelVar}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	slogger = slog.New(h)
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }
func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }

// DebugCtx and friends fold the request-scoped LogContext (if any) into the
// log attributes ahead of the caller's own args.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	current().Debug(msg, mergeCtx(ctx, args)...)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	current().Info(msg, mergeCtx(ctx, args)...)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	current().Warn(msg, mergeCtx(ctx, args)...)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().Error(msg, mergeCtx(ctx, args)...)
}

func mergeCtx(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}
	extra := []any{KeyOperation, lc.Operation}
	if lc.Inode != 0 {
		extra = append(extra, KeyInode, lc.Inode, KeyBlockNo, lc.BlockNo)
	}
	if lc.ObjectID != 0 {
		extra = append(extra, KeyObjectID, lc.ObjectID)
	}
	return append(extra, args...)
}
