package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Key identifies one CacheEntry: a (inode, blockno) pair (spec.md §3).
type Key struct {
	Inode   uint64
	BlockNo uint64
}

func (k Key) fileName() string {
	return fmt.Sprintf("%d-%d", k.Inode, k.BlockNo)
}

// Entry is one on-disk scratch file for one (inode, blockno) pair
// (spec.md §3 CacheEntry). Each method is guarded by the entry's own mutex,
// but that does not make a sequence of calls atomic: callers hold the entry
// lock on Key while they use the entry, which is what BlockCache.Get
// arranges.
type Entry struct {
	Key Key

	mu sync.Mutex

	file *os.File
	path string

	size      int64
	pos       int64
	dirty     bool
	lastWrite time.Time

	// unlinked is set once the scratch file has been removed so Close
	// does not attempt to remove it twice.
	unlinked bool
}

// openEntry opens (or creates) the scratch file at dir/key.fileName().
func openEntry(dir string, key Key) (*Entry, error) {
	path := filepath.Join(dir, key.fileName())
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("cache: open scratch file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cache: stat scratch file %s: %w", path, err)
	}
	return &Entry{
		Key:  key,
		file: f,
		path: path,
		size: info.Size(),
	}, nil
}

// ReadAt reads len(p) bytes starting at off, per io.ReaderAt.
func (e *Entry) ReadAt(p []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.ReadAt(p, off)
}

// WriteAt writes p at off, extending the scratch file and marking the
// entry dirty (spec.md §3: "dirty: true iff modified since last successful
// upload").
func (e *Entry) WriteAt(p []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.file.WriteAt(p, off)
	if n > 0 {
		e.dirty = true
		e.lastWrite = time.Now()
		if end := off + int64(n); end > e.size {
			e.size = end
		}
	}
	return n, err
}

// Truncate resizes the scratch file, marking it dirty if the size changes.
func (e *Entry) Truncate(size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.file.Truncate(size); err != nil {
		return err
	}
	if size != e.size {
		e.dirty = true
		e.lastWrite = time.Now()
	}
	e.size = size
	return nil
}

// Size returns the entry's current byte length.
func (e *Entry) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// Dirty reports whether the entry has unsynced local writes.
func (e *Entry) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// markClean clears the dirty flag once an upload commits successfully.
func (e *Entry) markClean() {
	e.mu.Lock()
	e.dirty = false
	e.mu.Unlock()
}

// contents reads the entire scratch file, used to compute the upload
// digest (spec.md §4.7 step 3).
func (e *Entry) contents() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, e.size)
	if _, err := e.file.ReadAt(buf, 0); err != nil && len(buf) > 0 {
		return nil, err
	}
	return buf, nil
}

// flushLocal fsyncs the scratch file without uploading (spec.md §4.5
// flush_local).
func (e *Entry) flushLocal() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

// close releases the file handle, unlinking the scratch file unless keep
// is true (spec.md §3: "scratch file is unlinked on destroy unless the
// user chose to keep the on-disk cache").
func (e *Entry) close(keep bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.file.Close()
	if !keep && !e.unlinked {
		if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) {
			if err == nil {
				err = rmErr
			}
		}
		e.unlinked = true
	}
	return err
}
