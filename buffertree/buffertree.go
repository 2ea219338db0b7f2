// Package buffertree implements the three-level concurrent in-memory index
// described in spec.md's C5: NamespaceId -> TableId -> PartitionKey, each
// leaf holding a mutable ColumnBatch accumulator plus the bookkeeping the
// persist pipeline needs to know which sequences are still only in memory.
package buffertree

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
	"github.com/chronocore/ingestcore/partition"
)

// PartitionResolver is the C4 capability the tree needs to turn a
// (namespace, table, partition_key) triple into a durable PartitionId. It is
// satisfied by *partition.Provider.
type PartitionResolver interface {
	GetOrCreate(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (*partition.Data, error)
}

// Snapshot is an immutable, detached view of a partition's rows up to
// MaxSequence, produced by Tree.Snapshot at rotation time.
type Snapshot struct {
	Batch       *op.ColumnBatch
	MaxSequence ids.SequenceNumber
}

// QuerySnapshot pairs the detached immutable batches not yet fully persisted
// with the partition's still-mutating in-progress batch and its persisted
// watermark, mirroring the shape a query-side partition response needs.
type QuerySnapshot struct {
	PersistedWatermark ids.SequenceNumber
	Immutable          []*op.ColumnBatch
	InProgress         *op.ColumnBatch
}

type namespaceNode struct {
	tables *xsync.MapOf[ids.TableId, *tableNode]
}

type tableNode struct {
	partitions *xsync.MapOf[ids.PartitionKey, *partitionNode]
}

// Tree is the root of the BufferTree.
type Tree struct {
	namespaces *xsync.MapOf[ids.NamespaceId, *namespaceNode]
	resolver   PartitionResolver
}

// New constructs an empty BufferTree backed by resolver for partition
// metadata lookups.
func New(resolver PartitionResolver) *Tree {
	return &Tree{
		namespaces: xsync.NewMapOf[ids.NamespaceId, *namespaceNode](),
		resolver:   resolver,
	}
}

func (t *Tree) namespaceFor(id ids.NamespaceId) *namespaceNode {
	n, _ := t.namespaces.LoadOrCompute(id, func() *namespaceNode {
		return &namespaceNode{tables: xsync.NewMapOf[ids.TableId, *tableNode]()}
	})
	return n
}

func (n *namespaceNode) tableFor(id ids.TableId) *tableNode {
	tn, _ := n.tables.LoadOrCompute(id, func() *tableNode {
		return &tableNode{partitions: xsync.NewMapOf[ids.PartitionKey, *partitionNode]()}
	})
	return tn
}

// Apply merges op's write into the tree, resolving each table's partition
// via the PartitionResolver and serialising the merge behind that
// partition's own lock (spec.md §4.5). It never re-reads or replays op;
// callers (sink, replay) decide whether that has already happened.
func (t *Tree) Apply(ctx context.Context, sop op.SequencedOp) error {
	ns := t.namespaceFor(sop.NamespaceId)
	for tableID, batch := range sop.Write.Tables {
		tn := ns.tableFor(tableID)
		pd, err := t.resolver.GetOrCreate(ctx, sop.NamespaceId, tableID, sop.Write.PartitionKey)
		if err != nil {
			return fmt.Errorf("buffertree: resolve partition: %w", err)
		}

		pn, _ := tn.partitions.LoadOrCompute(sop.Write.PartitionKey, func() *partitionNode {
			return newPartitionNode(pd.ID, sop.NamespaceId, tableID, sop.Write.PartitionKey)
		})
		pn.merge(batch, sop.SequenceNumber)
	}
	return nil
}

// Handle is a stable reference to one partition leaf, returned by
// PartitionIter and used by the persist pipeline's rotation task.
type Handle struct {
	node *partitionNode
}

func (h Handle) PartitionID() ids.PartitionId      { return h.node.id }
func (h Handle) NamespaceID() ids.NamespaceId      { return h.node.namespaceID }
func (h Handle) TableID() ids.TableId              { return h.node.tableID }
func (h Handle) PartitionKey() ids.PartitionKey    { return h.node.partitionKey }
func (h Handle) MaxSequenceSeen() ids.SequenceNumber {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	return h.node.maxSequenceSeen
}

// PartitionIter returns a point-in-time copy of every currently known
// partition (spec.md §4.5: "stable across iteration even if new partitions
// appear").
func (t *Tree) PartitionIter() []Handle {
	var out []Handle
	t.namespaces.Range(func(_ ids.NamespaceId, ns *namespaceNode) bool {
		ns.tables.Range(func(_ ids.TableId, tn *tableNode) bool {
			tn.partitions.Range(func(_ ids.PartitionKey, pn *partitionNode) bool {
				out = append(out, Handle{node: pn})
				return true
			})
			return true
		})
		return true
	})
	return out
}

// Snapshot atomically detaches h's current mutable buffer into an immutable
// batch, remembering the max sequence it contains; subsequent writes land in
// a fresh mutable buffer (spec.md §4.5).
func (t *Tree) Snapshot(h Handle) Snapshot {
	return h.node.snapshot()
}

// MarkPersisted advances h's completed_persistence_max_sequence and prunes
// any pending immutable snapshot fully covered by it (spec.md §4.7 step 6,
// I4).
func (t *Tree) MarkPersisted(h Handle, maxSequence ids.SequenceNumber) {
	h.node.markPersisted(maxSequence)
}

// Query returns h's current state for the query-side partition response
// shape: persisted watermark, pending immutable snapshots, and the
// in-progress mutable batch projected to an immutable view.
func (t *Tree) Query(h Handle) QuerySnapshot {
	return h.node.query()
}
