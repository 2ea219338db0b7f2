// Package ids defines the opaque identifiers shared across the ingest core.
package ids

import "fmt"

// NamespaceId identifies a tenant namespace in the catalog.
type NamespaceId int64

// TableId identifies a table within a namespace.
type TableId int64

// PartitionId identifies a catalog-resolved partition.
type PartitionId int64

// SequenceNumber orders records within one append path. It is not a global
// total order: concurrent writers may be assigned interleaved values that
// land in the WAL or BufferTree in a different order than they were issued.
type SequenceNumber uint64

// SegmentId identifies a WAL segment file. Segment IDs are assigned in
// creation order but, because concurrent writers may interleave their
// appends, a segment's contained sequence numbers need not be monotonic or
// contiguous with neighbouring segments.
type SegmentId uint64

// PartitionKey is a short printable partition discriminator, e.g. a date.
type PartitionKey string

func (n NamespaceId) String() string { return fmt.Sprintf("ns:%d", int64(n)) }
func (t TableId) String() string     { return fmt.Sprintf("tbl:%d", int64(t)) }
func (p PartitionId) String() string { return fmt.Sprintf("part:%d", int64(p)) }
func (s SegmentId) String() string   { return fmt.Sprintf("seg:%d", uint64(s)) }
