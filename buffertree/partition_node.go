package buffertree

import (
	"sync"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

// partitionNode is the PartitionNode of spec.md §3: a persistent PartitionId,
// a mutable batch, and the (completed, in-progress) persistence watermark
// pair. All mutation goes through mu, matching §4.5's "two writers to the
// same partition serialise at the leaf".
type partitionNode struct {
	id           ids.PartitionId
	namespaceID  ids.NamespaceId
	tableID      ids.TableId
	partitionKey ids.PartitionKey

	mu                      sync.Mutex
	mutable                 *op.ColumnBatch
	maxSequenceSeen         ids.SequenceNumber
	pendingSnapshots        []Snapshot
	inProgressPersistMaxSeq ids.SequenceNumber
	completedPersistMaxSeq  ids.SequenceNumber
}

func newPartitionNode(id ids.PartitionId, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) *partitionNode {
	return &partitionNode{
		id:           id,
		namespaceID:  namespaceID,
		tableID:      tableID,
		partitionKey: key,
		mutable:      op.NewColumnBatch(),
	}
}

func (p *partitionNode) merge(batch *op.ColumnBatch, seq ids.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutable.Merge(batch)
	if seq > p.maxSequenceSeen {
		p.maxSequenceSeen = seq
	}
}

func (p *partitionNode) snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	detached := p.mutable
	maxSeq := p.maxSequenceSeen
	p.mutable = op.NewColumnBatch()

	snap := Snapshot{Batch: detached, MaxSequence: maxSeq}
	p.pendingSnapshots = append(p.pendingSnapshots, snap)
	if maxSeq > p.inProgressPersistMaxSeq {
		p.inProgressPersistMaxSeq = maxSeq
	}
	return snap
}

func (p *partitionNode) markPersisted(maxSequence ids.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if maxSequence > p.completedPersistMaxSeq {
		p.completedPersistMaxSeq = maxSequence
	}
	remaining := p.pendingSnapshots[:0]
	for _, snap := range p.pendingSnapshots {
		if snap.MaxSequence > maxSequence {
			remaining = append(remaining, snap)
		}
	}
	p.pendingSnapshots = remaining
}

func (p *partitionNode) query() QuerySnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	immutable := make([]*op.ColumnBatch, len(p.pendingSnapshots))
	for i, snap := range p.pendingSnapshots {
		immutable[i] = snap.Batch
	}
	return QuerySnapshot{
		PersistedWatermark: p.completedPersistMaxSeq,
		Immutable:          immutable,
		InProgress:         p.mutable.Clone(),
	}
}
