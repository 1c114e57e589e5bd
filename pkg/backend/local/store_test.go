package local

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3ql/main/pkg/backend"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("the quick brown fox")

	size, err := s.Write(ctx, "s3ql_data_1", func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), size)

	var got bytes.Buffer
	err = s.Read(ctx, "s3ql_data_1", func(r io.Reader) error {
		_, err := io.Copy(&got, r)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, payload, got.Bytes())
}

func TestReadMissingKeyIsNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	err = s.Read(context.Background(), "s3ql_data_999", func(r io.Reader) error { return nil })
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestDeleteMissingKeyIsNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	err = s.Delete(context.Background(), "s3ql_data_999")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestWriteFailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	boom := assert.AnError
	_, err = s.Write(context.Background(), "s3ql_data_1", func(w io.Writer) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	assert.Empty(t, matches, "failed write must not leave a .tmp file behind")
}

func TestDeleteMultiReportsOnlyFailures(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Write(ctx, "a", func(w io.Writer) error { _, e := w.Write([]byte("x")); return e })
	require.NoError(t, err)

	failed, err := s.DeleteMulti(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Empty(t, failed, "a missing key is tolerated, not reported as failed")
}
