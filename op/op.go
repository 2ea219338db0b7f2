// Package op defines the sequenced write operations carried by the WAL and
// applied to the BufferTree, and their canonical binary encoding (spec.md §6).
package op

import (
	"github.com/chronocore/ingestcore/ids"
)

// ColumnType identifies the physical representation of a Column's values.
type ColumnType uint8

const (
	ColumnInt64 ColumnType = iota
	ColumnFloat64
	ColumnString
	ColumnBool
	ColumnTimestamp
)

// Column is one typed, dense column of a ColumnBatch. Only one of the value
// slices is populated, selected by Type.
type Column struct {
	Type           ColumnType
	Int64Values    []int64
	Float64Values  []float64
	StringValues   []string
	BoolValues     []bool
	TimestampNanos []int64
}

// Len returns the number of values held by the column, independent of Type.
func (c *Column) Len() int {
	switch c.Type {
	case ColumnInt64:
		return len(c.Int64Values)
	case ColumnFloat64:
		return len(c.Float64Values)
	case ColumnString:
		return len(c.StringValues)
	case ColumnBool:
		return len(c.BoolValues)
	case ColumnTimestamp:
		return len(c.TimestampNanos)
	default:
		return 0
	}
}

// appendFrom appends the values of src to c. Both must share Type. This is
// the "additive merge" spec.md requires of ColumnBatch.
func (c *Column) appendFrom(src *Column) {
	switch c.Type {
	case ColumnInt64:
		c.Int64Values = append(c.Int64Values, src.Int64Values...)
	case ColumnFloat64:
		c.Float64Values = append(c.Float64Values, src.Float64Values...)
	case ColumnString:
		c.StringValues = append(c.StringValues, src.StringValues...)
	case ColumnBool:
		c.BoolValues = append(c.BoolValues, src.BoolValues...)
	case ColumnTimestamp:
		c.TimestampNanos = append(c.TimestampNanos, src.TimestampNanos...)
	}
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{Type: c.Type}
	out.appendFrom(c)
	return out
}

// ColumnBatch is a columnar, typed batch of rows for one table. Merge is
// additive only: rows are never deleted or rewritten in place.
type ColumnBatch struct {
	RowCount int
	Columns  map[string]*Column
}

// NewColumnBatch returns an empty batch ready to be merged into.
func NewColumnBatch() *ColumnBatch {
	return &ColumnBatch{Columns: make(map[string]*Column)}
}

// Merge additively folds src into b, creating columns that don't yet exist
// and appending to ones that do.
func (b *ColumnBatch) Merge(src *ColumnBatch) {
	if src == nil {
		return
	}
	for name, col := range src.Columns {
		if existing, ok := b.Columns[name]; ok {
			existing.appendFrom(col)
		} else {
			b.Columns[name] = col.Clone()
		}
	}
	b.RowCount += src.RowCount
}

// Clone returns a deep copy of the batch, suitable for detaching an
// immutable snapshot from a still-mutating buffer (BufferTree.Snapshot).
func (b *ColumnBatch) Clone() *ColumnBatch {
	out := NewColumnBatch()
	out.RowCount = b.RowCount
	for name, col := range b.Columns {
		out.Columns[name] = col.Clone()
	}
	return out
}

// Write is one caller's batch of rows destined for a single partition key,
// spread across one or more tables.
type Write struct {
	PartitionKey ids.PartitionKey
	Tables       map[ids.TableId]*ColumnBatch
}

// SequencedOp is the unit of durability: a Write tagged with the sequence
// number the Timestamp Oracle assigned it and the namespace it belongs to.
type SequencedOp struct {
	SequenceNumber ids.SequenceNumber
	NamespaceId    ids.NamespaceId
	Write          Write
}
