// Package backend defines the BackendPool facade of spec.md §6: lease/return
// of concrete backend clients and the object read/write/delete operations
// the cache issues against the `s3ql_data_{id}` namespace. Out of scope per
// spec.md §1: authentication, HTTP transport details, compression,
// encryption, and backend-specific quirks beyond NotFound/TempFailure
// classification.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ObjectKey formats the backend key for obj_id, the only key prefix the
// cache ever touches (spec.md §6).
func ObjectKey(objID int64) string {
	return fmt.Sprintf("s3ql_data_%d", objID)
}

// ErrNotFound is returned when the backend reports the object absent.
var ErrNotFound = errors.New("backend: object not found")

// TempFailureError wraps an underlying error that the backend layer
// classifies as transient (network/SSL/5xx/408/429, spec.md §7) and worth
// retrying with backoff.
type TempFailureError struct {
	Err error
}

func (e *TempFailureError) Error() string { return "backend: temporary failure: " + e.Err.Error() }
func (e *TempFailureError) Unwrap() error { return e.Err }

// IsTempFailure reports whether err (or anything it wraps) is a
// TempFailureError.
func IsTempFailure(err error) bool {
	var tf *TempFailureError
	return errors.As(err, &tf)
}

// IsNotFound reports whether err (or anything it wraps) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// WriteFunc is invoked by Backend.Write with a sink the caller copies bytes
// into; mirrors spec.md §6's "writer is invoked with a sink the cache
// copies bytes into".
type WriteFunc func(w io.Writer) error

// ReadFunc is invoked by Backend.Read with a source the caller copies bytes
// from.
type ReadFunc func(r io.Reader) error

// Backend is one concrete object-store client, leased from a Pool.
type Backend interface {
	// Write uploads key, calling fn with a sink to copy the payload into,
	// and returns the number of bytes actually stored.
	Write(ctx context.Context, key string, fn WriteFunc) (size int64, err error)

	// Read downloads key, calling fn with a source to copy the payload
	// from. Returns ErrNotFound if the object does not exist.
	Read(ctx context.Context, key string, fn ReadFunc) error

	// Delete removes key. Returns ErrNotFound (tolerable, spec.md §7) if
	// already absent.
	Delete(ctx context.Context, key string) error

	// DeleteMulti removes every key in keys, returning the subset that
	// could not be deleted (spec.md §6: "removes successful keys from the
	// input list so callers can retry failures").
	DeleteMulti(ctx context.Context, keys []string) (failed []string, err error)

	// HasDeleteMulti reports whether this backend supports bulk delete.
	HasDeleteMulti() bool

	// MaxDeleteMultiBatch is the largest batch DeleteMulti accepts in one
	// call (spec.md §4.10: "bounded by the backend's feature report,
	// default 1000").
	MaxDeleteMultiBatch() int
}

// Pool leases and returns Backend instances, matching spec.md §6's
// "BackendPool facade: lease/return of concrete backend clients".
type Pool interface {
	Lease(ctx context.Context) (Backend, error)
	Release(b Backend)
}
