// Package memory is an in-memory metadata.Store used for tests and for the
// "memory" metadata.driver config option. Grounded on the teacher's
// pkg/metadata/store/memory (map-backed reference implementations guarded by
// a single sync.Mutex, the same texture as dittofs's own in-memory stores).
package memory

import (
	"context"
	"sync"

	"github.com/s3ql/main/pkg/metadata"
)

type objectRow struct {
	refcount int
	size     int64
}

type blockRow struct {
	refcount int
	objID    int64
	hash     [32]byte
	hasHash  bool
	size     int64
}

// Store is a map-backed metadata.Store. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	nextObjID   int64
	nextBlockID int64
	objects     map[int64]*objectRow
	blocks      map[int64]*blockRow
	byHash      map[[32]byte]int64 // hash -> blockID, only for rows with hasHash
	inodeBlocks map[inodeBlockKey]int64
}

type inodeBlockKey struct {
	inode, blockno uint64
}

func New() *Store {
	return &Store{
		objects:     make(map[int64]*objectRow),
		blocks:      make(map[int64]*blockRow),
		byHash:      make(map[[32]byte]int64),
		inodeBlocks: make(map[inodeBlockKey]int64),
	}
}

func (s *Store) BlockIDForInodeBlock(_ context.Context, inode, blockno uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.inodeBlocks[inodeBlockKey{inode, blockno}]
	if !ok {
		return 0, metadata.ErrNotFound
	}
	return id, nil
}

func (s *Store) BlockIDForHash(_ context.Context, hash [32]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hash]
	if !ok {
		return 0, metadata.ErrNotFound
	}
	return id, nil
}

func (s *Store) ObjectIDForBlock(_ context.Context, blockID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return 0, metadata.ErrNotFound
	}
	return b.objID, nil
}

func (s *Store) BlockRefcount(_ context.Context, blockID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return 0, metadata.ErrNotFound
	}
	return b.refcount, nil
}

func (s *Store) ObjectRefcountAndSize(_ context.Context, objID int64) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[objID]
	if !ok {
		return 0, 0, metadata.ErrNotFound
	}
	return o.refcount, o.size, nil
}

func (s *Store) InsertObjectPlaceholder(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObjID++
	id := s.nextObjID
	s.objects[id] = &objectRow{refcount: 1, size: metadata.SizeNotUploaded}
	return id, nil
}

func (s *Store) InsertBlock(_ context.Context, objID int64, hash [32]byte, size int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBlockID++
	id := s.nextBlockID
	s.blocks[id] = &blockRow{refcount: 1, objID: objID, hash: hash, hasHash: true, size: size}
	s.byHash[hash] = id
	return id, nil
}

func (s *Store) UpsertInodeBlock(_ context.Context, blockID int64, inode, blockno uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inodeBlocks[inodeBlockKey{inode, blockno}] = blockID
	return nil
}

func (s *Store) IncrementBlockRefcount(_ context.Context, blockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return metadata.ErrNotFound
	}
	b.refcount++
	return nil
}

func (s *Store) DecrementBlockRefcount(_ context.Context, blockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return metadata.ErrNotFound
	}
	b.refcount--
	return nil
}

func (s *Store) ClearBlockHash(_ context.Context, objID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.objID == objID && b.hasHash {
			delete(s.byHash, b.hash)
			b.hasHash = false
			b.hash = [32]byte{}
		}
	}
	return nil
}

func (s *Store) CommitUpload(_ context.Context, objID int64, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[objID]
	if !ok {
		return metadata.ErrNotFound
	}
	o.size = size
	return nil
}

func (s *Store) DecrementObjectRefcount(_ context.Context, objID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[objID]
	if !ok {
		return metadata.ErrNotFound
	}
	o.refcount--
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, blockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[blockID]; ok && b.hasHash {
		delete(s.byHash, b.hash)
	}
	delete(s.blocks, blockID)
	return nil
}

func (s *Store) DeleteObject(_ context.Context, objID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objID)
	return nil
}

func (s *Store) DeleteInodeBlock(_ context.Context, inode, blockno uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inodeBlocks, inodeBlockKey{inode, blockno})
	return nil
}

func (s *Store) Close(_ context.Context) error { return nil }

// Snapshot is a testing helper exposing row counts without reaching into
// package internals, used by scenario tests (S1-S3 in spec.md §8).
type Snapshot struct {
	ObjectCount int
	BlockCount  int
	BlockRefcounts  map[int64]int
	ObjectRefcounts map[int64]int
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		BlockRefcounts:  make(map[int64]int, len(s.blocks)),
		ObjectRefcounts: make(map[int64]int, len(s.objects)),
	}
	for id, b := range s.blocks {
		snap.BlockRefcounts[id] = b.refcount
	}
	for id, o := range s.objects {
		snap.ObjectRefcounts[id] = o.refcount
	}
	snap.ObjectCount = len(s.objects)
	snap.BlockCount = len(s.blocks)
	return snap
}
