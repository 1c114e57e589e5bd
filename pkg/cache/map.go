package cache

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// entryMap is the ordered mapping from Key to *Entry described in spec.md
// §3/§4.4, backed by wk8/go-ordered-map/v2 so that oldest-to-newest
// iteration (needed by expire, §4.9) and O(1) lookup/insert/delete are both
// available without hand-rolling a doubly-linked hash map. The library has
// no built-in "touch" operation, so MRU motion is Delete-then-Set, which
// re-appends the key at the newest end — exactly what touching means here.
type entryMap struct {
	m          *orderedmap.OrderedMap[Key, *Entry]
	size       int64
	maxSize    int64
	maxEntries int
}

func newEntryMap(maxSize int64, maxEntries int) *entryMap {
	return &entryMap{
		m:          orderedmap.New[Key, *Entry](),
		maxSize:    maxSize,
		maxEntries: maxEntries,
	}
}

// insert adds a new entry at the MRU end and accounts for its size.
func (em *entryMap) insert(e *Entry) {
	em.m.Set(e.Key, e)
	em.size += e.Size()
}

// get looks up key, optionally touching it to the MRU end for LRU
// semantics (spec.md §4.4).
func (em *entryMap) get(key Key, touch bool) (*Entry, bool) {
	e, ok := em.m.Get(key)
	if !ok {
		return nil, false
	}
	if touch {
		em.m.Delete(key)
		em.m.Set(key, e)
	}
	return e, true
}

// adjustSize updates the map's size accounting after an entry's on-disk
// size changed by delta (spec.md §4.5 get: "updates CacheMap.size by
// (new_size - old_size)").
func (em *entryMap) adjustSize(delta int64) {
	em.size += delta
}

// remove deletes key from the map, closing its file and optionally
// unlinking the scratch file, and adjusts size accounting. Returns the
// removed entry, or nil if key was absent.
func (em *entryMap) remove(key Key, unlink bool) (*Entry, error) {
	e, ok := em.m.Get(key)
	if !ok {
		return nil, nil
	}
	em.m.Delete(key)
	em.size -= e.Size()
	if em.size < 0 {
		em.size = 0
	}
	return e, e.close(!unlink)
}

// isFull reports the CacheMap.is_full() condition: an OR of the byte-size
// overflow and the entry-count overflow (resolved against
// original_source/s3ql/block_cache.py's CacheDict.is_full(), which spec.md
// itself leaves ambiguous between AND/OR — see SPEC_FULL.md §D).
func (em *entryMap) isFull() bool {
	return em.size > em.maxSize || em.m.Len() > em.maxEntries
}

func (em *entryMap) len() int {
	return em.m.Len()
}

// snapshot copies the current key order (oldest first) so callers can
// iterate while the global lock is released, tolerating concurrent
// mutation of the live map (spec.md §4.9 step 1, §9 "snapshotting keys").
func (em *entryMap) snapshot() []Key {
	keys := make([]Key, 0, em.m.Len())
	for pair := em.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// dirtyUsage sums size/count over entries currently marked dirty, for
// get_usage (spec.md §4.5).
func (em *entryMap) dirtyUsage() (count int, bytes int64) {
	for pair := em.m.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Dirty() {
			count++
			bytes += pair.Value.Size()
		}
	}
	return count, bytes
}
