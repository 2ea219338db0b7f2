package op

// Canonical binary encoding of a SequencedOp (spec.md §6): a hand-rolled,
// length-delimited layout rather than a schema-evolving format such as
// protobuf, because the spec prescribes the literal field layout and no
// .proto toolchain is part of this exercise (see DESIGN.md).
//
// SequencedOp   := u64(sequence_number) u64(namespace_id) u32(len) op_encoding
// op_encoding   := u16(len) partition_key u32(num_tables) table*
// table         := u64(table_id) column_batch
// column_batch  := u32(row_count) u32(num_columns) column*
// column        := u16(len) name u8(type) u32(count) value*
//
// Strings and bools are length/count-prefixed; fixed-width numerics are
// written directly in little-endian order.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/chronocore/ingestcore/ids"
)

// ErrTruncated is returned when a buffer ends before a length-prefixed
// field it promised could be read in full. Callers performing WAL replay
// treat this as "torn tail", not a hard error (spec.md §4.8, §8 S6).
var ErrTruncated = errors.New("op: truncated encoding")

// EncodeSequencedOp returns the canonical payload for seq, to be wrapped by
// the WAL's length+CRC frame.
func EncodeSequencedOp(seq SequencedOp) []byte {
	body := encodeWrite(seq.Write)

	buf := make([]byte, 8+8+4+len(body))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(seq.SequenceNumber))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(seq.NamespaceId))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(body)))
	copy(buf[20:], body)
	return buf
}

// DecodeSequencedOp parses the payload produced by EncodeSequencedOp. It
// returns ErrTruncated (wrapped) if buf ends mid-field, which callers during
// WAL replay treat as the end of a torn segment rather than a fatal error.
func DecodeSequencedOp(buf []byte) (SequencedOp, error) {
	var out SequencedOp
	if len(buf) < 20 {
		return out, ErrTruncated
	}
	out.SequenceNumber = ids.SequenceNumber(binary.LittleEndian.Uint64(buf[0:8]))
	out.NamespaceId = ids.NamespaceId(binary.LittleEndian.Uint64(buf[8:16]))
	n := binary.LittleEndian.Uint32(buf[16:20])
	rest := buf[20:]
	if uint64(len(rest)) < uint64(n) {
		return out, ErrTruncated
	}
	w, err := decodeWrite(rest[:n])
	if err != nil {
		return out, err
	}
	out.Write = w
	return out, nil
}

func encodeWrite(w Write) []byte {
	var buf []byte
	buf = appendU16String(buf, string(w.PartitionKey))

	ids4 := make([]ids.TableId, 0, len(w.Tables))
	for t := range w.Tables {
		ids4 = append(ids4, t)
	}
	sort.Slice(ids4, func(i, j int) bool { return ids4[i] < ids4[j] })

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(ids4)))
	buf = append(buf, tmp4[:]...)

	for _, t := range ids4 {
		var tmp8 [8]byte
		binary.LittleEndian.PutUint64(tmp8[:], uint64(t))
		buf = append(buf, tmp8[:]...)
		buf = append(buf, encodeColumnBatch(w.Tables[t])...)
	}
	return buf
}

func decodeWrite(buf []byte) (Write, error) {
	var w Write
	pk, rest, err := readU16String(buf)
	if err != nil {
		return w, err
	}
	w.PartitionKey = ids.PartitionKey(pk)

	if len(rest) < 4 {
		return w, ErrTruncated
	}
	numTables := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]

	w.Tables = make(map[ids.TableId]*ColumnBatch, numTables)
	for i := uint32(0); i < numTables; i++ {
		if len(rest) < 8 {
			return w, ErrTruncated
		}
		tableID := ids.TableId(binary.LittleEndian.Uint64(rest[0:8]))
		rest = rest[8:]

		cb, n, err := decodeColumnBatch(rest)
		if err != nil {
			return w, err
		}
		rest = rest[n:]
		w.Tables[tableID] = cb
	}
	return w, nil
}

func encodeColumnBatch(b *ColumnBatch) []byte {
	var buf []byte
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(b.RowCount))
	buf = append(buf, tmp4[:]...)

	names := make([]string, 0, len(b.Columns))
	for name := range b.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(names)))
	buf = append(buf, tmp4[:]...)

	for _, name := range names {
		col := b.Columns[name]
		buf = appendU16String(buf, name)
		buf = append(buf, byte(col.Type))
		buf = appendColumnValues(buf, col)
	}
	return buf
}

func decodeColumnBatch(buf []byte) (*ColumnBatch, int, error) {
	start := len(buf)
	if len(buf) < 8 {
		return nil, 0, ErrTruncated
	}
	b := NewColumnBatch()
	b.RowCount = int(binary.LittleEndian.Uint32(buf[0:4]))
	numCols := binary.LittleEndian.Uint32(buf[4:8])
	rest := buf[8:]

	for i := uint32(0); i < numCols; i++ {
		name, r, err := readU16String(rest)
		if err != nil {
			return nil, 0, err
		}
		rest = r
		if len(rest) < 1 {
			return nil, 0, ErrTruncated
		}
		typ := ColumnType(rest[0])
		rest = rest[1:]

		col, r2, err := readColumnValues(rest, typ)
		if err != nil {
			return nil, 0, err
		}
		rest = r2
		b.Columns[name] = col
	}
	consumed := start - len(rest)
	return b, consumed, nil
}

func appendColumnValues(buf []byte, c *Column) []byte {
	var tmp4 [4]byte
	n := c.Len()
	binary.LittleEndian.PutUint32(tmp4[:], uint32(n))
	buf = append(buf, tmp4[:]...)

	switch c.Type {
	case ColumnInt64:
		for _, v := range c.Int64Values {
			var tmp8 [8]byte
			binary.LittleEndian.PutUint64(tmp8[:], uint64(v))
			buf = append(buf, tmp8[:]...)
		}
	case ColumnTimestamp:
		for _, v := range c.TimestampNanos {
			var tmp8 [8]byte
			binary.LittleEndian.PutUint64(tmp8[:], uint64(v))
			buf = append(buf, tmp8[:]...)
		}
	case ColumnFloat64:
		for _, v := range c.Float64Values {
			var tmp8 [8]byte
			binary.LittleEndian.PutUint64(tmp8[:], float64bits(v))
			buf = append(buf, tmp8[:]...)
		}
	case ColumnBool:
		for _, v := range c.BoolValues {
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	case ColumnString:
		for _, v := range c.StringValues {
			buf = appendU16String(buf, v)
		}
	}
	return buf
}

func readColumnValues(buf []byte, typ ColumnType) (*Column, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	rest := buf[4:]
	c := &Column{Type: typ}

	switch typ {
	case ColumnInt64:
		c.Int64Values = make([]int64, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 8 {
				return nil, nil, ErrTruncated
			}
			c.Int64Values[i] = int64(binary.LittleEndian.Uint64(rest[:8]))
			rest = rest[8:]
		}
	case ColumnTimestamp:
		c.TimestampNanos = make([]int64, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 8 {
				return nil, nil, ErrTruncated
			}
			c.TimestampNanos[i] = int64(binary.LittleEndian.Uint64(rest[:8]))
			rest = rest[8:]
		}
	case ColumnFloat64:
		c.Float64Values = make([]float64, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 8 {
				return nil, nil, ErrTruncated
			}
			c.Float64Values[i] = float64frombits(binary.LittleEndian.Uint64(rest[:8]))
			rest = rest[8:]
		}
	case ColumnBool:
		c.BoolValues = make([]bool, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 1 {
				return nil, nil, ErrTruncated
			}
			c.BoolValues[i] = rest[0] != 0
			rest = rest[1:]
		}
	case ColumnString:
		c.StringValues = make([]string, n)
		for i := uint32(0); i < n; i++ {
			var s string
			var err error
			s, rest, err = readU16String(rest)
			if err != nil {
				return nil, nil, err
			}
			c.StringValues[i] = s
		}
	default:
		return nil, nil, fmt.Errorf("op: unknown column type %d", typ)
	}
	return c, rest, nil
}

func appendU16String(buf []byte, s string) []byte {
	var tmp2 [2]byte
	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(s)))
	buf = append(buf, tmp2[:]...)
	return append(buf, s...)
}

func readU16String(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint16(buf[0:2])
	rest := buf[2:]
	if uint64(len(rest)) < uint64(n) {
		return "", nil, ErrTruncated
	}
	return string(rest[:n]), rest[n:], nil
}
