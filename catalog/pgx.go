package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chronocore/ingestcore/ids"
)

// PgxCatalog is a Postgres-backed Catalog, the one concrete implementation
// of the boundary named in spec.md §6. Schema management and migrations are
// out of scope; this adapter assumes the tables already exist.
type PgxCatalog struct {
	pool *pgxpool.Pool
}

// NewPgxCatalog opens a pooled connection to dsn and verifies it is reachable.
func NewPgxCatalog(ctx context.Context, dsn string) (*PgxCatalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	return &PgxCatalog{pool: pool}, nil
}

// Close releases the connection pool.
func (c *PgxCatalog) Close() { c.pool.Close() }

func (c *PgxCatalog) CreateOrGetPartition(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (Partition, error) {
	const q = `
		INSERT INTO partitions (namespace_id, table_id, partition_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace_id, table_id, partition_key) DO UPDATE SET partition_key = EXCLUDED.partition_key
		RETURNING id, sort_key`
	var partitionID int64
	var sortKey []string
	err := c.pool.QueryRow(ctx, q, int64(namespaceID), int64(tableID), string(key)).Scan(&partitionID, &sortKey)
	if err != nil {
		return Partition{}, fmt.Errorf("catalog: create_or_get partition: %w", err)
	}
	return Partition{
		ID:           ids.PartitionId(partitionID),
		NamespaceID:  namespaceID,
		TableID:      tableID,
		PartitionKey: key,
		SortKey:      sortKey,
	}, nil
}

func (c *PgxCatalog) MostRecentPartitions(ctx context.Context, limit int) ([]Partition, error) {
	const q = `
		SELECT id, namespace_id, table_id, partition_key, sort_key
		FROM partitions
		ORDER BY last_written_at DESC
		LIMIT $1`
	rows, err := c.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: most_recent_n partitions: %w", err)
	}
	defer rows.Close()

	var out []Partition
	for rows.Next() {
		var partitionID, namespaceID, tableID int64
		var partitionKey string
		var sortKey []string
		if err := rows.Scan(&partitionID, &namespaceID, &tableID, &partitionKey, &sortKey); err != nil {
			return nil, fmt.Errorf("catalog: scan partition: %w", err)
		}
		out = append(out, Partition{
			ID:           ids.PartitionId(partitionID),
			NamespaceID:  ids.NamespaceId(namespaceID),
			TableID:      ids.TableId(tableID),
			PartitionKey: ids.PartitionKey(partitionKey),
			SortKey:      sortKey,
		})
	}
	return out, rows.Err()
}

func (c *PgxCatalog) GetNamespace(ctx context.Context, id ids.NamespaceId) (Namespace, error) {
	const q = `SELECT id, name FROM namespaces WHERE id = $1`
	var namespaceID int64
	var name string
	err := c.pool.QueryRow(ctx, q, int64(id)).Scan(&namespaceID, &name)
	if err == pgx.ErrNoRows {
		return Namespace{}, fmt.Errorf("catalog: namespace %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Namespace{}, fmt.Errorf("catalog: get_by_id namespace: %w", err)
	}
	return Namespace{ID: ids.NamespaceId(namespaceID), Name: name}, nil
}

func (c *PgxCatalog) GetTable(ctx context.Context, id ids.TableId) (Table, error) {
	const q = `SELECT id, name FROM tables WHERE id = $1`
	var tableID int64
	var name string
	err := c.pool.QueryRow(ctx, q, int64(id)).Scan(&tableID, &name)
	if err == pgx.ErrNoRows {
		return Table{}, fmt.Errorf("catalog: table %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Table{}, fmt.Errorf("catalog: get_by_id table: %w", err)
	}
	return Table{ID: ids.TableId(tableID), Name: name}, nil
}

func (c *PgxCatalog) CreateParquetFile(ctx context.Context, p ParquetFileParams) error {
	const q = `
		INSERT INTO parquet_files
			(namespace_id, table_id, partition_id, object_path, min_time, max_time, max_sequence, row_count, sort_key, file_size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := c.pool.Exec(ctx, q,
		int64(p.NamespaceID), int64(p.TableID), int64(p.PartitionID), p.ObjectPath,
		p.MinTime, p.MaxTime, int64(p.MaxSequence), p.RowCount, p.SortKey, p.FileSizeByte)
	if err != nil {
		return fmt.Errorf("catalog: create parquet_file: %w", err)
	}
	return nil
}

func (c *PgxCatalog) ListParquetFilesByNamespace(ctx context.Context, namespaceID ids.NamespaceId) ([]ParquetFileParams, error) {
	const q = `
		SELECT namespace_id, table_id, partition_id, object_path, min_time, max_time, max_sequence, row_count, sort_key, file_size_bytes
		FROM parquet_files
		WHERE namespace_id = $1 AND NOT to_delete`
	rows, err := c.pool.Query(ctx, q, int64(namespaceID))
	if err != nil {
		return nil, fmt.Errorf("catalog: list_by_namespace_not_to_delete: %w", err)
	}
	defer rows.Close()

	var out []ParquetFileParams
	for rows.Next() {
		var nsID, tblID, partID, maxSeq int64
		var p ParquetFileParams
		if err := rows.Scan(&nsID, &tblID, &partID, &p.ObjectPath,
			&p.MinTime, &p.MaxTime, &maxSeq, &p.RowCount, &p.SortKey, &p.FileSizeByte); err != nil {
			return nil, fmt.Errorf("catalog: scan parquet_file: %w", err)
		}
		p.NamespaceID, p.TableID, p.PartitionID = ids.NamespaceId(nsID), ids.TableId(tblID), ids.PartitionId(partID)
		p.MaxSequence = ids.SequenceNumber(maxSeq)
		out = append(out, p)
	}
	return out, rows.Err()
}
