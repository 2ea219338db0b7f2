package buffertree

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
	"github.com/chronocore/ingestcore/partition"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	resolver := partition.NewCatalogPartitionResolver(catalog.NewFake(), nil)
	p, err := partition.New(100, resolver)
	require.NoError(t, err)
	return New(p)
}

func writeOp(seq uint64, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey, value int64) op.SequencedOp {
	return op.SequencedOp{
		SequenceNumber: ids.SequenceNumber(seq),
		NamespaceId:    namespaceID,
		Write: op.Write{
			PartitionKey: key,
			Tables: map[ids.TableId]*op.ColumnBatch{
				tableID: {
					RowCount: 1,
					Columns: map[string]*op.Column{
						"v": {Type: op.ColumnInt64, Int64Values: []int64{value}},
					},
				},
			},
		},
	}
}

func TestApplyMergesIntoSamePartitionLeaf(t *testing.T) {
	tree := newTestTree(t)
	ctx := context.Background()

	require.NoError(t, tree.Apply(ctx, writeOp(1, 1, 1, "2026-08-01", 10)))
	require.NoError(t, tree.Apply(ctx, writeOp(2, 1, 1, "2026-08-01", 20)))

	handles := tree.PartitionIter()
	require.Len(t, handles, 1)
	require.Equal(t, ids.SequenceNumber(2), handles[0].MaxSequenceSeen())

	snap := tree.Query(handles[0])
	require.Equal(t, []int64{10, 20}, snap.InProgress.Columns["v"].Int64Values)
}

func TestApplyToDifferentPartitionKeysCreatesDistinctLeaves(t *testing.T) {
	tree := newTestTree(t)
	ctx := context.Background()

	require.NoError(t, tree.Apply(ctx, writeOp(1, 1, 1, "2026-08-01", 1)))
	require.NoError(t, tree.Apply(ctx, writeOp(2, 1, 1, "2026-08-02", 2)))

	require.Len(t, tree.PartitionIter(), 2)
}

func TestSnapshotDetachesMutableBufferAndStartsFresh(t *testing.T) {
	tree := newTestTree(t)
	ctx := context.Background()

	require.NoError(t, tree.Apply(ctx, writeOp(1, 1, 1, "2026-08-01", 1)))
	handle := tree.PartitionIter()[0]

	snap := tree.Snapshot(handle)
	require.Equal(t, ids.SequenceNumber(1), snap.MaxSequence)
	require.Equal(t, []int64{1}, snap.Batch.Columns["v"].Int64Values)

	require.NoError(t, tree.Apply(ctx, writeOp(2, 1, 1, "2026-08-01", 2)))
	q := tree.Query(handle)
	require.Equal(t, []int64{2}, q.InProgress.Columns["v"].Int64Values)
	require.Len(t, q.Immutable, 1)
	require.Equal(t, []int64{1}, q.Immutable[0].Columns["v"].Int64Values)
}

func TestMarkPersistedPrunesCoveredSnapshots(t *testing.T) {
	tree := newTestTree(t)
	ctx := context.Background()
	require.NoError(t, tree.Apply(ctx, writeOp(1, 1, 1, "2026-08-01", 1)))
	handle := tree.PartitionIter()[0]
	snap := tree.Snapshot(handle)

	tree.MarkPersisted(handle, snap.MaxSequence)

	q := tree.Query(handle)
	require.Empty(t, q.Immutable)
	require.Equal(t, snap.MaxSequence, q.PersistedWatermark)
}

func TestConcurrentApplyToSamePartitionIsSerialised(t *testing.T) {
	tree := newTestTree(t)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, tree.Apply(ctx, writeOp(uint64(i), 1, 1, "2026-08-01", int64(i))))
		}(i)
	}
	wg.Wait()

	handle := tree.PartitionIter()[0]
	snap := tree.Query(handle)
	require.Len(t, snap.InProgress.Columns["v"].Int64Values, n)
	require.Equal(t, ids.SequenceNumber(n), handle.MaxSequenceSeen())
}
