package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/chronocore/ingestcore/buffertree"
	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/deferredload"
	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/objstore"
	"github.com/chronocore/ingestcore/op"
	"github.com/chronocore/ingestcore/partition"
)

type recordingReleaser struct {
	mu       sync.Mutex
	released []ids.SequenceNumber
}

func (r *recordingReleaser) ReleaseUpTo(_ ids.NamespaceId, _ ids.PartitionId, seq ids.SequenceNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, seq)
}

func newTestPipeline(t *testing.T) (*Pipeline, *catalog.Fake, *objstore.Fake, *buffertree.Tree, *recordingReleaser) {
	t.Helper()
	fakeCatalog := catalog.NewFake()
	fakeCatalog.PutNamespace(catalog.Namespace{ID: 1, Name: "ns"})
	fakeCatalog.PutTable(catalog.Table{ID: 1, Name: "tbl"})

	store := objstore.NewFake()
	resolver := partition.NewCatalogPartitionResolver(fakeCatalog, nil)
	prov, err := partition.New(10, resolver)
	require.NoError(t, err)
	tree := buffertree.New(prov)
	releaser := &recordingReleaser{}

	p := New(Config{SubmissionQueueDepth: 4, Workers: 2, WorkerQueueDepth: 4}, fakeCatalog, store, tree, releaser, nil, NewMetrics(prometheus.NewRegistry()))
	return p, fakeCatalog, store, tree, releaser
}

func TestRunJobUploadsAndRegistersFile(t *testing.T) {
	p, fakeCatalog, store, tree, releaser := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)
	defer p.Close()

	require.NoError(t, tree.Apply(ctx, op.SequencedOp{
		SequenceNumber: 100,
		NamespaceId:    1,
		Write: op.Write{
			PartitionKey: "2026-08-01",
			Tables: map[ids.TableId]*op.ColumnBatch{
				1: {RowCount: 2, Columns: map[string]*op.Column{"v": {Type: op.ColumnInt64, Int64Values: []int64{1, 2}}}},
			},
		},
	}))
	handle := tree.PartitionIter()[0]
	snap := tree.Snapshot(handle)

	done := make(chan error, 1)
	job := Job{
		NamespaceID:           1,
		TableID:               1,
		PartitionID:           handle.PartitionID(),
		Handle:                handle,
		PartitionData:         &partition.Data{SortKey: deferredload.New[[]string](ctx, 0, func(context.Context) ([]string, error) { return nil, nil })},
		SnapshotBatches:       []Snapshot{snap},
		MaxSequenceInSnapshot: snap.MaxSequence,
		Done:                  done,
	}
	require.NoError(t, p.Submit(ctx, job))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("persist job did not complete")
	}

	files, err := fakeCatalog.ListParquetFilesByNamespace(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, int64(2), files[0].RowCount)
	require.NotEmpty(t, store.Paths())
	require.Equal(t, []ids.SequenceNumber{100}, releaser.released)
}

// TestSamePartitionJobsCompleteInSubmissionOrder exercises P5: jobs for the
// same partition are routed to the same worker by workerIndexFor and so
// complete in the order they were submitted, and the catalog's recorded
// max-sequence is monotone non-decreasing as a result.
func TestSamePartitionJobsCompleteInSubmissionOrder(t *testing.T) {
	p, fakeCatalog, _, tree, _ := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)
	defer p.Close()

	var handle buffertree.Handle
	const jobCount = 5
	dones := make([]chan error, jobCount)

	for i := 0; i < jobCount; i++ {
		seq := ids.SequenceNumber(i + 1)
		require.NoError(t, tree.Apply(ctx, op.SequencedOp{
			SequenceNumber: seq,
			NamespaceId:    1,
			Write: op.Write{
				PartitionKey: "2026-08-01",
				Tables: map[ids.TableId]*op.ColumnBatch{
					1: {RowCount: 1, Columns: map[string]*op.Column{"v": {Type: op.ColumnInt64, Int64Values: []int64{int64(seq)}}}},
				},
			},
		}))
		if i == 0 {
			handle = tree.PartitionIter()[0]
		}
		snap := tree.Snapshot(handle)

		done := make(chan error, 1)
		dones[i] = done
		job := Job{
			NamespaceID:           1,
			TableID:               1,
			PartitionID:           handle.PartitionID(),
			Handle:                handle,
			PartitionData:         &partition.Data{SortKey: deferredload.New[[]string](ctx, 0, func(context.Context) ([]string, error) { return nil, nil })},
			SnapshotBatches:       []Snapshot{snap},
			MaxSequenceInSnapshot: snap.MaxSequence,
			Done:                  done,
		}
		require.NoError(t, p.Submit(ctx, job))
	}

	// Wait for every job to finish. Completion order is checked below through
	// the catalog, which lists files in the order they were recorded.
	for i, done := range dones {
		select {
		case err := <-done:
			require.NoError(t, err, "job %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d did not complete", i)
		}
	}

	files, err := fakeCatalog.ListParquetFilesByNamespace(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, jobCount)
	for i := 1; i < len(files); i++ {
		require.Less(t, files[i-1].MaxSequence, files[i].MaxSequence, "catalog max-sequence must increase with each recorded file")
	}
	require.Equal(t, ids.SequenceNumber(jobCount), files[len(files)-1].MaxSequence)
}
