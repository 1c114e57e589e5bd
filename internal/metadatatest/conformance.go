// Package metadatatest is a conformance suite run against every
// metadata.Store implementation, mirroring the teacher's
// storetest.RunConformanceSuite pattern (pkg/metadata/storetest): one set of
// behavioral assertions, exercised by every backing implementation's own
// _test.go via a thin wrapper.
package metadatatest

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3ql/main/pkg/metadata"
)

// RunConformanceSuite exercises store against the facade's documented
// semantics (spec.md §3, §6). factory must return a fresh, empty store.
func RunConformanceSuite(t *testing.T, factory func() metadata.Store) {
	t.Helper()

	t.Run("LookupMissingInodeBlockIsNotFound", func(t *testing.T) {
		s := factory()
		ctx := context.Background()
		_, err := s.BlockIDForInodeBlock(ctx, 1, 0)
		assert.ErrorIs(t, err, metadata.ErrNotFound)
	})

	t.Run("InsertAndLookupNewBlock", func(t *testing.T) {
		s := factory()
		ctx := context.Background()

		objID, err := s.InsertObjectPlaceholder(ctx)
		require.NoError(t, err)

		hash := sha256.Sum256([]byte("hello"))
		blockID, err := s.InsertBlock(ctx, objID, hash, 5)
		require.NoError(t, err)

		require.NoError(t, s.UpsertInodeBlock(ctx, blockID, 100, 0))

		gotBlockID, err := s.BlockIDForInodeBlock(ctx, 100, 0)
		require.NoError(t, err)
		assert.Equal(t, blockID, gotBlockID)

		gotBlockID, err = s.BlockIDForHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, blockID, gotBlockID)

		gotObjID, err := s.ObjectIDForBlock(ctx, blockID)
		require.NoError(t, err)
		assert.Equal(t, objID, gotObjID)
	})

	t.Run("DedupRefcounting", func(t *testing.T) {
		s := factory()
		ctx := context.Background()

		objID, err := s.InsertObjectPlaceholder(ctx)
		require.NoError(t, err)
		hash := sha256.Sum256([]byte("dedup-me"))
		blockID, err := s.InsertBlock(ctx, objID, hash, 5)
		require.NoError(t, err)
		require.NoError(t, s.UpsertInodeBlock(ctx, blockID, 1, 0))

		// A second inode links to the same content hash.
		found, err := s.BlockIDForHash(ctx, hash)
		require.NoError(t, err)
		require.Equal(t, blockID, found)
		require.NoError(t, s.IncrementBlockRefcount(ctx, found))
		require.NoError(t, s.UpsertInodeBlock(ctx, found, 2, 0))

		refcount, err := s.BlockRefcount(ctx, blockID)
		require.NoError(t, err)
		assert.Equal(t, 2, refcount)
	})

	t.Run("ClearBlockHashTombstonesUploadFailure", func(t *testing.T) {
		s := factory()
		ctx := context.Background()

		objID, err := s.InsertObjectPlaceholder(ctx)
		require.NoError(t, err)
		hash := sha256.Sum256([]byte("will-fail"))
		blockID, err := s.InsertBlock(ctx, objID, hash, 9)
		require.NoError(t, err)
		require.NoError(t, s.UpsertInodeBlock(ctx, blockID, 1, 0))

		require.NoError(t, s.ClearBlockHash(ctx, objID))

		_, err = s.BlockIDForHash(ctx, hash)
		assert.ErrorIs(t, err, metadata.ErrNotFound, "a cleared hash must never be returned by dedup lookup")

		// The blocks row itself (and its inode_blocks link) must survive,
		// since inode_blocks may already reference it (spec.md §4.7).
		gotBlockID, err := s.BlockIDForInodeBlock(ctx, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, blockID, gotBlockID)
	})

	t.Run("CommitUploadSetsRealSize", func(t *testing.T) {
		s := factory()
		ctx := context.Background()

		objID, err := s.InsertObjectPlaceholder(ctx)
		require.NoError(t, err)

		refcount, size, err := s.ObjectRefcountAndSize(ctx, objID)
		require.NoError(t, err)
		assert.Equal(t, 1, refcount)
		assert.EqualValues(t, metadata.SizeNotUploaded, size)

		require.NoError(t, s.CommitUpload(ctx, objID, 4096))
		_, size, err = s.ObjectRefcountAndSize(ctx, objID)
		require.NoError(t, err)
		assert.EqualValues(t, 4096, size)
	})

	t.Run("DeleteCascadeBookkeeping", func(t *testing.T) {
		s := factory()
		ctx := context.Background()

		objID, err := s.InsertObjectPlaceholder(ctx)
		require.NoError(t, err)
		hash := sha256.Sum256([]byte("to-delete"))
		blockID, err := s.InsertBlock(ctx, objID, hash, 5)
		require.NoError(t, err)
		require.NoError(t, s.UpsertInodeBlock(ctx, blockID, 1, 0))

		require.NoError(t, s.DeleteInodeBlock(ctx, 1, 0))
		require.NoError(t, s.DeleteBlock(ctx, blockID))
		require.NoError(t, s.DeleteObject(ctx, objID))

		_, err = s.BlockIDForInodeBlock(ctx, 1, 0)
		assert.ErrorIs(t, err, metadata.ErrNotFound)
		_, err = s.BlockRefcount(ctx, blockID)
		assert.ErrorIs(t, err, metadata.ErrNotFound)
		_, _, err = s.ObjectRefcountAndSize(ctx, objID)
		assert.ErrorIs(t, err, metadata.ErrNotFound)
	})

	t.Run("RelinkInodeBlockToDifferentBlock", func(t *testing.T) {
		s := factory()
		ctx := context.Background()

		objID, err := s.InsertObjectPlaceholder(ctx)
		require.NoError(t, err)
		blockA, err := s.InsertBlock(ctx, objID, sha256.Sum256([]byte("a")), 1)
		require.NoError(t, err)
		blockB, err := s.InsertBlock(ctx, objID, sha256.Sum256([]byte("b")), 1)
		require.NoError(t, err)

		require.NoError(t, s.UpsertInodeBlock(ctx, blockA, 1, 0))
		got, err := s.BlockIDForInodeBlock(ctx, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, blockA, got)

		require.NoError(t, s.UpsertInodeBlock(ctx, blockB, 1, 0))
		got, err = s.BlockIDForInodeBlock(ctx, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, blockB, got)
	})
}
