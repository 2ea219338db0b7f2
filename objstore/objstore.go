// Package objstore defines the object-store boundary the persist pipeline
// uploads columnar files through (spec.md §6), with a minio-go-backed
// implementation and an in-memory fake for tests. The object-store driver
// itself is explicitly out of scope (spec.md §1); this package only defines
// and exercises the interface.
package objstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when path does not exist.
var ErrNotFound = errors.New("objstore: not found")

// Store is the minimal write-path boundary: persist uploads a file and
// never needs to list or delete (query-side reads are out of scope).
type Store interface {
	Put(ctx context.Context, path string, data io.Reader, size int64) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// ObjectPath builds the deterministic path spec.md §6 prescribes:
// <namespace_id>/<table_id>/<partition_id>/<uuid>.parquet.
func ObjectPath(namespaceID, tableID, partitionID int64, fileUUID string) string {
	return formatPath(namespaceID, tableID, partitionID, fileUUID)
}
