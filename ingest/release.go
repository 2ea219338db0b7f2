package ingest

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/wal"
)

// segmentRequirement is the set of partitions that had sequences in a given
// WAL segment at the moment it was rotated, and the sequence number each
// must persist past before the segment is deletable.
type segmentRequirement struct {
	need map[ids.PartitionId]ids.SequenceNumber
	done map[ids.PartitionId]bool
}

// segmentReleaser implements persist.WalReleaser: it is told, per
// partition, how far persistence has progressed, and deletes a WAL segment
// once every partition that had sequences in it has persisted past them
// (spec.md §4.7 "rotation task" paragraph).
type segmentReleaser struct {
	mu     sync.Mutex
	rot    wal.RotationHandle
	logger log.Logger
	byID   map[ids.SegmentId]*segmentRequirement
}

func newSegmentReleaser(rot wal.RotationHandle, logger log.Logger) *segmentReleaser {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &segmentReleaser{rot: rot, logger: logger, byID: make(map[ids.SegmentId]*segmentRequirement)}
}

// RegisterSegment records, for a just-rotated segment, which partitions had
// sequences in it and the max sequence each needs to clear. Called by the
// rotation task after Rotate() and before it submits that rotation's persist
// jobs.
func (s *segmentReleaser) RegisterSegment(id ids.SegmentId, need map[ids.PartitionId]ids.SequenceNumber) {
	if len(need) == 0 {
		// Nothing was written to this segment by any tracked partition;
		// it is immediately deletable.
		s.deleteSegment(id)
		return
	}
	s.mu.Lock()
	s.byID[id] = &segmentRequirement{need: need, done: make(map[ids.PartitionId]bool, len(need))}
	s.mu.Unlock()
}

// ReleaseUpTo marks partitionID as persisted through seq and deletes any
// segment whose requirement is now fully satisfied.
func (s *segmentReleaser) ReleaseUpTo(_ ids.NamespaceId, partitionID ids.PartitionId, seq ids.SequenceNumber) {
	var satisfied []ids.SegmentId

	s.mu.Lock()
	for id, req := range s.byID {
		need, ok := req.need[partitionID]
		if !ok || req.done[partitionID] {
			continue
		}
		if seq < need {
			continue
		}
		req.done[partitionID] = true

		allDone := true
		for p := range req.need {
			if !req.done[p] {
				allDone = false
				break
			}
		}
		if allDone {
			satisfied = append(satisfied, id)
			delete(s.byID, id)
		}
	}
	s.mu.Unlock()

	for _, id := range satisfied {
		s.deleteSegment(id)
	}
}

func (s *segmentReleaser) deleteSegment(id ids.SegmentId) {
	if err := s.rot.Delete(id); err != nil {
		level.Warn(s.logger).Log("msg", "failed to delete fully-persisted wal segment", "segment", id, "err", err)
	}
}
