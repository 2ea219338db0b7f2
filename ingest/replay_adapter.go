package ingest

import (
	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/replay"
	"github.com/chronocore/ingestcore/wal"
)

// walSegmentSource adapts wal.ReadHandle to replay.SegmentSource: replay
// only ever needs a segment's id to open a reader over it, so the richer
// wal.ClosedSegment descriptor is narrowed to replay's minimal shape here
// rather than widening replay's interface to know about WAL internals.
type walSegmentSource struct {
	rh wal.ReadHandle
}

func (s walSegmentSource) ClosedSegments() []replay.ClosedSegment {
	closed := s.rh.ClosedSegments()
	out := make([]replay.ClosedSegment, len(closed))
	for i, c := range closed {
		out[i] = replay.ClosedSegment{ID: c.ID}
	}
	return out
}

func (s walSegmentSource) ReaderFor(id ids.SegmentId) (replay.SegmentReader, error) {
	return s.rh.ReaderFor(id)
}
