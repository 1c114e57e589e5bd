// Package local implements backend.Pool/Backend over a plain directory,
// grounded on the teacher's pkg/payload/store/fs.Store: write to a .tmp file,
// fsync, atomically rename into place. Used for the "local" backend.kind and
// for tests that would otherwise need network I/O.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/s3ql/main/pkg/backend"
)

// Store is both the Pool and the Backend: local directories have no
// connection to lease, so Lease/Release are no-ops returning the same
// instance.
type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend/local: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Lease(_ context.Context) (backend.Backend, error) { return s, nil }
func (s *Store) Release(backend.Backend)                         {}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *Store) Write(_ context.Context, key string, fn backend.WriteFunc) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(key)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("backend/local: create %s: %w", tmp, err)
	}

	if err := fn(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("backend/local: fsync %s: %w", tmp, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("backend/local: stat %s: %w", tmp, err)
	}
	size := info.Size()

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("backend/local: close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("backend/local: rename %s -> %s: %w", tmp, target, err)
	}

	return size, nil
}

func (s *Store) Read(_ context.Context, key string, fn backend.ReadFunc) error {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("backend/local: open %s: %w", key, err)
	}
	defer f.Close()
	return fn(f)
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("backend/local: remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteMulti(ctx context.Context, keys []string) ([]string, error) {
	var failed []string
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil && !errors.Is(err, backend.ErrNotFound) {
			failed = append(failed, k)
		}
	}
	return failed, nil
}

func (s *Store) HasDeleteMulti() bool { return true }

func (s *Store) MaxDeleteMultiBatch() int { return 1000 }

var _ io.Writer = (*os.File)(nil) // sanity: fn receives *os.File which satisfies io.Writer
