package persist

import (
	"io"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

func nanoTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// fileMetadata holds the per-file metadata (ids, time range, max sequence,
// row count, sort key) that is recorded in the catalog through toParams.
// writeParquet fills in the time range but does not embed this metadata, or
// a schema description, in the columnar file itself.
type fileMetadata struct {
	NamespaceID ids.NamespaceId
	TableID     ids.TableId
	PartitionID ids.PartitionId
	MaxSequence ids.SequenceNumber
	RowCount    int64
	SortKey     []string
	MinTimeNano int64
	MaxTimeNano int64
	haveTime    bool
}

func (m fileMetadata) toParams(objectPath string, fileSizeBytes int64) catalog.ParquetFileParams {
	return catalog.ParquetFileParams{
		NamespaceID:  m.NamespaceID,
		TableID:      m.TableID,
		PartitionID:  m.PartitionID,
		ObjectPath:   objectPath,
		MinTime:      nanoTime(m.MinTimeNano),
		MaxTime:      nanoTime(m.MaxTimeNano),
		MaxSequence:  m.MaxSequence,
		RowCount:     m.RowCount,
		SortKey:      m.SortKey,
		FileSizeByte: fileSizeBytes,
	}
}

// writeParquet encodes batch as a columnar file, deriving the schema from
// the batch's own column types. Column order is the sorted column name order
// so the file layout is deterministic across runs.
func writeParquet(w io.Writer, batch *op.ColumnBatch, meta *fileMetadata) error {
	names := sortedColumnNames(batch)
	if len(names) == 0 {
		_, err := w.Write(nil)
		return err
	}

	group := parquet.Group{}
	for _, name := range names {
		col := batch.Columns[name]
		group[name] = nodeForColumnType(col.Type)
	}
	schema := parquet.NewSchema("row", group)

	pw := parquet.NewGenericWriter[any](w, schema)
	defer pw.Close()

	rowCount := batch.RowCount
	for i := 0; i < rowCount; i++ {
		row := make(parquet.Row, len(names))
		for colIdx, name := range names {
			col := batch.Columns[name]
			row[colIdx] = valueAt(col, i).Level(0, 0, colIdx)
			updateTimeRange(meta, col, i)
		}
		if _, err := pw.WriteRows([]parquet.Row{row}); err != nil {
			return err
		}
	}
	return nil
}

func sortedColumnNames(batch *op.ColumnBatch) []string {
	names := make([]string, 0, len(batch.Columns))
	for name := range batch.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nodeForColumnType(t op.ColumnType) parquet.Node {
	switch t {
	case op.ColumnInt64, op.ColumnTimestamp:
		return parquet.Int(64)
	case op.ColumnFloat64:
		return parquet.Leaf(parquet.DoubleType)
	case op.ColumnBool:
		return parquet.Leaf(parquet.BooleanType)
	case op.ColumnString:
		return parquet.String()
	default:
		return parquet.String()
	}
}

func valueAt(col *op.Column, i int) parquet.Value {
	switch col.Type {
	case op.ColumnInt64:
		return parquet.ValueOf(col.Int64Values[i])
	case op.ColumnFloat64:
		return parquet.ValueOf(col.Float64Values[i])
	case op.ColumnBool:
		return parquet.ValueOf(col.BoolValues[i])
	case op.ColumnString:
		return parquet.ValueOf(col.StringValues[i])
	case op.ColumnTimestamp:
		return parquet.ValueOf(col.TimestampNanos[i])
	default:
		return parquet.ValueOf("")
	}
}

func updateTimeRange(meta *fileMetadata, col *op.Column, i int) {
	if col.Type != op.ColumnTimestamp {
		return
	}
	t := col.TimestampNanos[i]
	if !meta.haveTime {
		meta.MinTimeNano = t
		meta.MaxTimeNano = t
		meta.haveTime = true
		return
	}
	if t < meta.MinTimeNano {
		meta.MinTimeNano = t
	}
	if t > meta.MaxTimeNano {
		meta.MaxTimeNano = t
	}
}
