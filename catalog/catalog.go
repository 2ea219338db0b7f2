// Package catalog defines the abstract catalog boundary spec.md §6 names
// (partitions.create_or_get, namespaces.get_by_id, tables.get_by_id,
// parquet_files.create, parquet_files.list_by_namespace_not_to_delete) and
// ships two implementations of it: a pgx-backed adapter for a real Postgres
// catalog, and an in-memory fake for tests. The catalog database driver
// itself is explicitly out of scope (spec.md §1); this package only defines
// and exercises the boundary.
package catalog

import (
	"context"
	"time"

	"github.com/chronocore/ingestcore/ids"
)

// Partition is the catalog's view of a partition: its durable id and the
// metadata the persist pipeline needs once, not per-job.
type Partition struct {
	ID           ids.PartitionId
	NamespaceID  ids.NamespaceId
	TableID      ids.TableId
	PartitionKey ids.PartitionKey
	SortKey      []string
}

// Namespace and Table are the minimal projections the deferred-load resolver
// needs (C3): a display name to embed in persisted file metadata.
type Namespace struct {
	ID   ids.NamespaceId
	Name string
}

type Table struct {
	ID   ids.TableId
	Name string
}

// ParquetFileParams describes one persisted columnar file, matching the
// metadata blob spec.md §4.7 step 3 embeds and §6's parquet_files.create.
type ParquetFileParams struct {
	NamespaceID  ids.NamespaceId
	TableID      ids.TableId
	PartitionID  ids.PartitionId
	ObjectPath   string
	MinTime      time.Time
	MaxTime      time.Time
	MaxSequence  ids.SequenceNumber
	RowCount     int64
	SortKey      []string
	FileSizeByte int64
}

// Catalog is the full boundary this package's callers depend on. It is
// intentionally small and synchronous; retry policy (spec.md's "retry
// forever") lives in the caller (partition.CatalogPartitionResolver,
// persist.Worker), not in the interface itself.
type Catalog interface {
	PartitionStore
	NamespaceStore
	TableStore
	ParquetFileStore
}

// PartitionStore backs spec.md §6's partitions.create_or_get and
// partitions.most_recent_n.
type PartitionStore interface {
	CreateOrGetPartition(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (Partition, error)
	MostRecentPartitions(ctx context.Context, limit int) ([]Partition, error)
}

// NamespaceStore backs spec.md §6's namespaces.get_by_id.
type NamespaceStore interface {
	GetNamespace(ctx context.Context, id ids.NamespaceId) (Namespace, error)
}

// TableStore backs spec.md §6's tables.get_by_id.
type TableStore interface {
	GetTable(ctx context.Context, id ids.TableId) (Table, error)
}

// ParquetFileStore backs spec.md §6's parquet_files.create and
// parquet_files.list_by_namespace_not_to_delete.
type ParquetFileStore interface {
	CreateParquetFile(ctx context.Context, params ParquetFileParams) error
	ListParquetFilesByNamespace(ctx context.Context, namespaceID ids.NamespaceId) ([]ParquetFileParams, error)
}
