package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3ql/main/pkg/backend"
	"github.com/s3ql/main/pkg/backend/local"
	"github.com/s3ql/main/pkg/metadata"
	"github.com/s3ql/main/pkg/metadata/memory"
)

// failingBackend wraps a local.Store, failing Write for a configured set of
// object keys with a permanent (non-temp) error — used to drive spec.md §8
// scenario S5.
type failingBackend struct {
	*local.Store
	mu       sync.Mutex
	failKeys map[string]bool
}

func (f *failingBackend) Write(ctx context.Context, key string, fn backend.WriteFunc) (int64, error) {
	f.mu.Lock()
	fail := f.failKeys[key]
	f.mu.Unlock()
	if fail {
		return 0, assert.AnError
	}
	return f.Store.Write(ctx, key, fn)
}

func (f *failingBackend) Lease(_ context.Context) (backend.Backend, error) { return f, nil }
func (f *failingBackend) Release(backend.Backend)                         {}

func newTestCache(t *testing.T, be backend.Pool) (*BlockCache, *memory.Store) {
	t.Helper()
	store := memory.New()
	bc, err := New(be, store, Config{
		CacheDir:      t.TempDir(),
		MaxEntries:    768,
		MaxSize:       1 << 30,
		UploadThreads: 2,
	})
	require.NoError(t, err)
	require.NoError(t, bc.Init(context.Background()))
	t.Cleanup(func() { bc.Destroy(context.Background(), false) })
	return bc, store
}

func writeBlock(t *testing.T, bc *BlockCache, inode, blockno uint64, data []byte) {
	t.Helper()
	h, err := bc.Get(context.Background(), inode, blockno)
	require.NoError(t, err)
	_, err = h.Entry().WriteAt(data, 0)
	require.NoError(t, err)
	h.Close()
}

func readBlock(t *testing.T, bc *BlockCache, inode, blockno uint64, n int) []byte {
	t.Helper()
	h, err := bc.Get(context.Background(), inode, blockno)
	require.NoError(t, err)
	buf := make([]byte, n)
	_, err = h.Entry().ReadAt(buf, 0)
	h.Close()
	if err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	return buf
}

func countBackendObjects(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

// S1 — Dedup across two files.
func TestScenarioS1DedupAcrossTwoFiles(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)
	bc, store := newTestCache(t, be)

	payload := bytes.Repeat([]byte{0xAB}, 1<<20)
	writeBlock(t, bc, 100, 0, payload)
	writeBlock(t, bc, 200, 0, payload)

	require.NoError(t, bc.Flush(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, 1, snap.ObjectCount, "exactly one object row for deduped content")
	require.Len(t, snap.BlockRefcounts, 1)
	for _, rc := range snap.BlockRefcounts {
		assert.Equal(t, 2, rc, "block refcount must equal the two inode_blocks rows pointing at it")
	}
	assert.Equal(t, 1, countBackendObjects(t, backendDir))
}

// S2 — Overwrite releases old block.
func TestScenarioS2OverwriteReleasesOldBlock(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)
	bc, store := newTestCache(t, be)

	oldPayload := bytes.Repeat([]byte{0xAB}, 1<<20)
	newPayload := bytes.Repeat([]byte{0xCD}, 1<<20)

	writeBlock(t, bc, 100, 0, oldPayload)
	writeBlock(t, bc, 200, 0, oldPayload)
	require.NoError(t, bc.Flush(context.Background()))

	writeBlock(t, bc, 100, 0, newPayload)
	require.NoError(t, bc.Flush(context.Background()))

	assert.Equal(t, 2, countBackendObjects(t, backendDir))

	snap := store.Snapshot()
	assert.Equal(t, 2, snap.ObjectCount, "two objects now exist")
	refcounts := make([]int, 0, len(snap.BlockRefcounts))
	for _, rc := range snap.BlockRefcounts {
		refcounts = append(refcounts, rc)
	}
	assert.ElementsMatch(t, []int{1, 1}, refcounts, "old block still used by B, new block used by A")
}

// S3 — Delete propagates.
func TestScenarioS3DeletePropagates(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)
	bc, store := newTestCache(t, be)

	oldPayload := bytes.Repeat([]byte{0xAB}, 1<<20)
	newPayload := bytes.Repeat([]byte{0xCD}, 1<<20)

	writeBlock(t, bc, 100, 0, oldPayload)
	writeBlock(t, bc, 200, 0, oldPayload)
	require.NoError(t, bc.Flush(context.Background()))
	writeBlock(t, bc, 100, 0, newPayload)
	require.NoError(t, bc.Flush(context.Background()))

	require.NoError(t, bc.Remove(context.Background(), 200, 0, 0))

	waitForRemovalQueueDrain(t, bc)

	snap := store.Snapshot()
	assert.Len(t, snap.BlockRefcounts, 1)
	assert.Len(t, snap.ObjectRefcounts, 1)
	assert.Equal(t, 1, countBackendObjects(t, backendDir), "old object deleted from backend")
}

func waitForRemovalQueueDrain(t *testing.T, bc *BlockCache) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if bc.removalQueue.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 0, bc.removalQueue.Len(), "removal queue did not drain")
}

// S4 — Eviction of clean blocks.
func TestScenarioS4EvictionOfCleanBlocks(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)

	store := memory.New()
	bc, err := New(be, store, Config{
		CacheDir:      t.TempDir(),
		MaxEntries:    10,
		MaxSize:       1 << 30,
		UploadThreads: 2,
	})
	require.NoError(t, err)
	require.NoError(t, bc.Init(context.Background()))
	t.Cleanup(func() { bc.Destroy(context.Background(), false) })

	for i := uint64(0); i < 10; i++ {
		writeBlock(t, bc, 1, i, []byte{byte(i)})
	}
	require.NoError(t, bc.Flush(context.Background()))

	// An 11th distinct block pushes the map over max_entries; Get() only
	// checks fullness before inserting, so drive expire directly here to
	// exercise invariant 6 (eviction goal) without depending on a 12th Get.
	writeBlock(t, bc, 1, 10, []byte{10})
	require.NoError(t, bc.Flush(context.Background()))
	bc.expire(context.Background())

	entries, _, _, _, _ := bc.Usage()
	assert.LessOrEqual(t, entries, 10)
}

// S5 — Upload failure clears hash.
func TestScenarioS5UploadFailureClearsHash(t *testing.T) {
	backendDir := t.TempDir()
	inner, err := local.New(backendDir)
	require.NoError(t, err)

	fb := &failingBackend{Store: inner, failKeys: make(map[string]bool)}

	store := memory.New()
	bc, err := New(fb, store, Config{
		CacheDir:      t.TempDir(),
		MaxEntries:    768,
		MaxSize:       1 << 30,
		UploadThreads: 1,
	})
	require.NoError(t, err)
	require.NoError(t, bc.Init(context.Background()))
	t.Cleanup(func() { bc.Destroy(context.Background(), false) })

	// The object id assigned to the first new block under an empty store
	// is deterministic (memory.Store starts counting at 1).
	fb.mu.Lock()
	fb.failKeys[backend.ObjectKey(1)] = true
	fb.mu.Unlock()

	payload := []byte("will fail")
	writeBlock(t, bc, 1, 0, payload)
	require.NoError(t, bc.Flush(context.Background()))

	snap := store.Snapshot()
	require.Len(t, snap.BlockRefcounts, 1)

	digest := sha256.Sum256(payload)
	_, err = store.BlockIDForHash(context.Background(), digest)
	assert.ErrorIs(t, err, metadata.ErrNotFound, "tombstoned block must no longer be a dedup candidate")
	assert.Equal(t, 0, bc.inTransitCount())
}

// S6 — Concurrent get of the same block: every reader sees the same bytes
// and exactly one scratch file for the block is left in the cache directory.
func TestScenarioS6ConcurrentGetSameBlock(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)
	bc, _ := newTestCache(t, be)

	payload := []byte("concurrent read payload")
	writeBlock(t, bc, 7, 3, payload)
	require.NoError(t, bc.Flush(context.Background()))

	// Drop the cache entry so the next Get is a cold download.
	bc.Drop(context.Background())

	var wg sync.WaitGroup
	results := make([][]byte, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = readBlock(t, bc, 7, 3, len(payload))
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, payload, r)
	}

	matches, _ := filepath.Glob(filepath.Join(bc.cacheDir, "7-3*"))
	assert.Len(t, matches, 1, "no duplicate scratch files left behind")
}

// Invariant 3: read-your-writes per block.
func TestReadYourWritesPerBlock(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)
	bc, _ := newTestCache(t, be)

	payload := []byte("hello, block")
	writeBlock(t, bc, 42, 0, payload)
	got := readBlock(t, bc, 42, 0, len(payload))
	assert.Equal(t, payload, got)
}

// Round-trip law: remove(i,k) ∘ get(i,k) returns a zero-length entry.
func TestRemoveThenGetReturnsZeroLengthEntry(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)
	bc, _ := newTestCache(t, be)

	writeBlock(t, bc, 1, 1, []byte("some data"))
	require.NoError(t, bc.Flush(context.Background()))
	require.NoError(t, bc.Remove(context.Background(), 1, 1, 0))

	h, err := bc.Get(context.Background(), 1, 1)
	require.NoError(t, err)
	defer h.Close()
	assert.EqualValues(t, 0, h.Entry().Size())
}

// Invariant 9: scratch hygiene after destroy(keep_cache=false).
func TestDestroyRemovesCacheDirectory(t *testing.T) {
	backendDir := t.TempDir()
	be, err := local.New(backendDir)
	require.NoError(t, err)

	dir := t.TempDir()
	store := memory.New()
	bc, err := New(be, store, Config{CacheDir: dir, MaxEntries: 768, MaxSize: 1 << 20, UploadThreads: 1})
	require.NoError(t, err)
	require.NoError(t, bc.Init(context.Background()))

	writeBlock(t, bc, 1, 0, []byte("x"))
	require.NoError(t, bc.Destroy(context.Background(), false))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
