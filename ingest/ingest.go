package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronocore/ingestcore/buffertree"
	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/oracle"
	"github.com/chronocore/ingestcore/partition"
	"github.com/chronocore/ingestcore/persist"
	"github.com/chronocore/ingestcore/replay"
	"github.com/chronocore/ingestcore/sink"
	"github.com/chronocore/ingestcore/wal"
)

// Ingester is the assembled write path: the one object a frontend (out of
// scope per spec.md §1) needs to turn a Write into a durable, queryable
// BufferTree entry.
type Ingester struct {
	cfg Config

	wal      *wal.WAL
	oracle   *oracle.Oracle
	tree     *buffertree.Tree
	provider *partition.Provider
	sink     *sink.Sink
	pipe     *persist.Pipeline

	releaser *segmentReleaser

	rotationDone chan struct{}
	stopRotation context.CancelFunc
	wg           sync.WaitGroup
}

// New opens the WAL, pre-warms the partition cache, replays the WAL into a
// fresh BufferTree, and starts the persist pipeline and rotation task. Any
// failure here is fatal: the returned error is always an *InitError
// (spec.md §6 "process exit codes", §7).
func New(ctx context.Context, cfg Config) (*Ingester, error) {
	cfg = cfg.withDefaults()

	w, err := wal.Open(cfg.WalDirectory,
		wal.WithMaxSegmentBytes(nonZeroOr(cfg.WalMaxSegmentBytes, 256<<20)),
		wal.WithLogger(cfg.Logger),
		wal.WithRegisterer(cfg.Registerer),
	)
	if err != nil {
		return nil, newInitError(WalInit, err)
	}

	resolver := partition.NewCatalogPartitionResolver(cfg.Catalog, cfg.Logger)
	provider, err := partition.New(cfg.PartitionCacheCap, resolver)
	if err != nil {
		w.Close()
		return nil, newInitError(PreWarmPartitions, err)
	}
	if err := provider.PreWarm(ctx, cfg.Catalog, cfg.PartitionCacheCap); err != nil {
		w.Close()
		return nil, newInitError(PreWarmPartitions, err)
	}

	tree := buffertree.New(provider)
	orc := oracle.New()

	source := walSegmentSource{rh: w.ReadHandle()}
	if err := replay.Run(ctx, source, tree, orc, cfg.Logger); err != nil {
		w.Close()
		return nil, newInitError(WalReplay, err)
	}

	sk := sink.New(orc, w.WriteHandle(), tree, cfg.Logger)

	releaser := newSegmentReleaser(w.RotationHandle(), cfg.Logger)
	metrics := persist.NewMetrics(cfg.Registerer)
	pipe := persist.New(persist.Config{
		SubmissionQueueDepth: cfg.PersistSubmissionQueueDepth,
		Workers:              cfg.PersistWorkers,
		WorkerQueueDepth:     cfg.PersistWorkerQueueDepth,
	}, cfg.Catalog, cfg.ObjectStore, tree, releaser, cfg.Logger, metrics)

	rotationCtx, cancel := context.WithCancel(context.Background())
	in := &Ingester{
		cfg:          cfg,
		wal:          w,
		oracle:       orc,
		tree:         tree,
		provider:     provider,
		sink:         sk,
		pipe:         pipe,
		releaser:     releaser,
		rotationDone: make(chan struct{}),
		stopRotation: cancel,
	}

	pipe.Run(rotationCtx)
	in.wg.Add(1)
	go in.runRotationTask(rotationCtx)
	go in.watchFatal(rotationCtx)

	return in, nil
}

// watchFatal calls cfg.OnFatal the first time the persist pipeline reports
// a PersistPermanent failure (spec.md §7), or returns quietly once the
// ingester is shut down.
func (in *Ingester) watchFatal(ctx context.Context) {
	select {
	case err := <-in.pipe.Fatal():
		in.cfg.OnFatal(err)
	case <-ctx.Done():
	}
}

func nonZeroOr(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

// Sink exposes the underlying sink for callers (the write-path frontend,
// out of scope here) to invoke Apply against.
func (in *Ingester) Sink() *sink.Sink { return in.sink }

// Tree exposes the BufferTree for the query-side frontend (out of scope
// here) to read partition snapshots from.
func (in *Ingester) Tree() *buffertree.Tree { return in.tree }

// runRotationTask rotates the WAL every WalRotationPeriod, registers the
// sealed segment's per-partition release requirement, and submits a persist
// job for every partition that has new sequences since its last submission
// (spec.md §4.7 "rotation task").
func (in *Ingester) runRotationTask(ctx context.Context) {
	defer in.wg.Done()
	defer close(in.rotationDone)

	ticker := time.NewTicker(in.cfg.WalRotationPeriod)
	defer ticker.Stop()

	lastSubmitted := make(map[ids.PartitionId]ids.SequenceNumber)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.rotateAndSubmit(ctx, lastSubmitted)
		}
	}
}

func (in *Ingester) rotateAndSubmit(ctx context.Context, lastSubmitted map[ids.PartitionId]ids.SequenceNumber) {
	if _, err := in.wal.RotationHandle().Rotate(); err != nil {
		level.Error(in.cfg.Logger).Log("msg", "wal rotation failed", "err", err)
		return
	}

	handles := in.tree.PartitionIter()
	requirement := make(map[ids.PartitionId]ids.SequenceNumber)
	var jobs []persist.Job

	for _, h := range handles {
		maxSeq := h.MaxSequenceSeen()
		if maxSeq == 0 || maxSeq <= lastSubmitted[h.PartitionID()] {
			continue
		}
		requirement[h.PartitionID()] = maxSeq

		snap := in.tree.Snapshot(h)
		if snap.Batch == nil || snap.Batch.RowCount == 0 {
			continue
		}

		pd, err := in.provider.GetOrCreate(ctx, h.NamespaceID(), h.TableID(), h.PartitionKey())
		if err != nil {
			level.Error(in.cfg.Logger).Log("msg", "failed to resolve partition metadata for persist job, will retry next rotation", "partition", h.PartitionID(), "err", err)
			continue
		}

		job := persist.Job{
			NamespaceID:           h.NamespaceID(),
			TableID:               h.TableID(),
			PartitionID:           h.PartitionID(),
			Handle:                h,
			PartitionData:         pd,
			SnapshotBatches:       []persist.Snapshot{snap},
			MaxSequenceInSnapshot: snap.MaxSequence,
		}
		jobs = append(jobs, job)
	}

	// Register the segment just sealed by Rotate() above, even with an empty
	// requirement: an empty requirement means nothing tracked wrote to it,
	// so segmentReleaser deletes it immediately instead of leaking it. This
	// happens before any job is submitted, so a job cannot report progress
	// for a segment the releaser does not know about yet.
	closed := in.wal.ReadHandle().ClosedSegments()
	if len(closed) > 0 {
		newest := closed[len(closed)-1]
		in.releaser.RegisterSegment(newest.ID, requirement)
	}

	for _, job := range jobs {
		if err := in.pipe.Submit(ctx, job); err != nil {
			level.Error(in.cfg.Logger).Log("msg", "failed to submit persist job after rotation", "partition", job.PartitionID, "err", err)
			continue
		}
		lastSubmitted[job.PartitionID] = requirement[job.PartitionID]
	}
}

// Close stops the rotation task and the persist pipeline, then closes the
// WAL. It does not wait for in-flight persist jobs; callers that need a
// clean drain should stop accepting new writes first.
func (in *Ingester) Close() error {
	in.stopRotation()
	<-in.rotationDone
	in.pipe.Close()
	return in.wal.Close()
}
