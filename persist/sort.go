package persist

import (
	"sort"

	"github.com/chronocore/ingestcore/op"
)

// sortColumnBatch reorders every column in batch in place according to
// sortKey (spec.md §4.7 step 2: "sort ... by the partition's sort key, ties
// broken lexicographically on the primary-key columns, then by insertion
// order"). Columns named in sortKey that are absent from the batch are
// skipped; with no sort key at all the batch is left in insertion order.
func sortColumnBatch(batch *op.ColumnBatch, sortKey []string) {
	if batch.RowCount == 0 {
		return
	}

	var keyCols []*op.Column
	for _, name := range sortKey {
		if col, ok := batch.Columns[name]; ok {
			keyCols = append(keyCols, col)
		}
	}
	if len(keyCols) == 0 {
		return
	}

	perm := make([]int, batch.RowCount)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		i, j := perm[a], perm[b]
		for _, col := range keyCols {
			c := compareColumnValues(col, i, j)
			if c != 0 {
				return c < 0
			}
		}
		return false // preserves insertion order for full ties (SliceStable)
	})

	for name, col := range batch.Columns {
		batch.Columns[name] = permuteColumn(col, perm)
	}
}

func compareColumnValues(col *op.Column, i, j int) int {
	switch col.Type {
	case op.ColumnInt64:
		return compareInt64(col.Int64Values[i], col.Int64Values[j])
	case op.ColumnFloat64:
		return compareFloat64(col.Float64Values[i], col.Float64Values[j])
	case op.ColumnTimestamp:
		return compareInt64(col.TimestampNanos[i], col.TimestampNanos[j])
	case op.ColumnString:
		return compareString(col.StringValues[i], col.StringValues[j])
	case op.ColumnBool:
		return compareBool(col.BoolValues[i], col.BoolValues[j])
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func permuteColumn(col *op.Column, perm []int) *op.Column {
	out := &op.Column{Type: col.Type}
	switch col.Type {
	case op.ColumnInt64:
		out.Int64Values = make([]int64, len(perm))
		for i, p := range perm {
			out.Int64Values[i] = col.Int64Values[p]
		}
	case op.ColumnFloat64:
		out.Float64Values = make([]float64, len(perm))
		for i, p := range perm {
			out.Float64Values[i] = col.Float64Values[p]
		}
	case op.ColumnString:
		out.StringValues = make([]string, len(perm))
		for i, p := range perm {
			out.StringValues[i] = col.StringValues[p]
		}
	case op.ColumnBool:
		out.BoolValues = make([]bool, len(perm))
		for i, p := range perm {
			out.BoolValues[i] = col.BoolValues[p]
		}
	case op.ColumnTimestamp:
		out.TimestampNanos = make([]int64, len(perm))
		for i, p := range perm {
			out.TimestampNanos[i] = col.TimestampNanos[p]
		}
	}
	return out
}
