// Package persist implements the bounded producer/consumer persistence
// pipeline described in spec.md's C7: a submission queue feeding a worker
// pool that compacts a partition snapshot into a columnar file, uploads it,
// registers it in the catalog, and then frees the WAL segment(s) it made
// durable.
package persist

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"

	"github.com/chronocore/ingestcore/buffertree"
	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/objstore"
	"github.com/chronocore/ingestcore/partition"
)

var tracer = otel.Tracer("github.com/chronocore/ingestcore/persist")

// Job is the PersistJob of spec.md §3.
type Job struct {
	NamespaceID           ids.NamespaceId
	TableID               ids.TableId
	PartitionID           ids.PartitionId
	PartitionData         *partition.Data
	SnapshotBatches       []Snapshot
	MaxSequenceInSnapshot ids.SequenceNumber
	Handle                buffertree.Handle

	// Done, if non-nil, receives the job's error (possibly nil) and is then
	// closed once the job completes. Tests use it to wait for completion; the
	// rotation task leaves it nil.
	Done chan error
}

// Snapshot is an alias of buffertree.Snapshot, so that jobs can be built
// with persist.Snapshot values.
type Snapshot = buffertree.Snapshot

// WalReleaser is the WAL capability the pipeline needs to free segments once
// their contents are durably persisted elsewhere: RotationHandle.Delete plus
// enough of ReadHandle to know which segments are now coverable.
type WalReleaser interface {
	// ReleaseUpTo is told "every sequence <= seq for this partition has been
	// persisted"; the implementation decides, across all partitions, which
	// closed segments are now fully covered and deletes them.
	ReleaseUpTo(namespaceID ids.NamespaceId, partitionID ids.PartitionId, seq ids.SequenceNumber)
}

// Config bounds the pipeline's resource usage (spec.md §6).
type Config struct {
	SubmissionQueueDepth int
	Workers              int
	WorkerQueueDepth     int
}

func (c Config) withDefaults() Config {
	if c.SubmissionQueueDepth <= 0 {
		c.SubmissionQueueDepth = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.WorkerQueueDepth <= 0 {
		c.WorkerQueueDepth = 100
	}
	return c
}

// Pipeline is the bounded actor system of spec.md §4.7.
type Pipeline struct {
	cfg Config

	submission chan Job
	workers    []chan Job

	cat     catalog.Catalog
	store   objstore.Store
	tree    *buffertree.Tree
	wal     WalReleaser
	logger  log.Logger
	metrics *metrics

	fatal chan error
	stop  chan struct{}
}

// New constructs a Pipeline. It does not start background workers; call Run.
func New(cfg Config, cat catalog.Catalog, store objstore.Store, tree *buffertree.Tree, wal WalReleaser, logger log.Logger, metrics *metrics) *Pipeline {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := &Pipeline{
		cfg:        cfg,
		submission: make(chan Job, cfg.SubmissionQueueDepth),
		cat:        cat,
		store:      store,
		tree:       tree,
		wal:        wal,
		logger:     logger,
		metrics:    metrics,
		fatal:      make(chan error, 1),
		stop:       make(chan struct{}),
	}
	p.workers = make([]chan Job, cfg.Workers)
	for i := range p.workers {
		p.workers[i] = make(chan Job, cfg.WorkerQueueDepth)
	}
	return p
}

// Run starts the admission routine and all workers in background goroutines
// and returns immediately; they stop when ctx is cancelled or Close is
// called.
func (p *Pipeline) Run(ctx context.Context) {
	for i, q := range p.workers {
		go p.runWorker(ctx, i, q)
	}
	go p.runAdmission(ctx)
}

// Close stops accepting new jobs. In-flight jobs run to completion.
func (p *Pipeline) Close() {
	close(p.stop)
}

// Fatal reports a PersistPermanent failure (spec.md §7): an encoding schema
// mismatch or other impossible invariant that no retry will resolve. The
// caller (the ingest package's lifecycle guard) owns the decision of how to
// crash the process; this channel only ever carries the first such error.
func (p *Pipeline) Fatal() <-chan error {
	return p.fatal
}

// Submit enqueues job, blocking if the submission queue is full (spec.md
// §4.7's back-pressure on the rotation task).
func (p *Pipeline) Submit(ctx context.Context, job Job) error {
	select {
	case p.submission <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return fmt.Errorf("persist: pipeline closed")
	}
}

func (p *Pipeline) runAdmission(ctx context.Context) {
	for {
		select {
		case job := <-p.submission:
			wi := workerIndexFor(job.PartitionID, len(p.workers))
			select {
			case p.workers[wi] <- job:
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			}
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		}
	}
}

// workerIndexFor hashes partition_id to a worker queue so that jobs for the
// same partition are always routed to the same worker and hence serialised
// (spec.md §4.7 "admission routine hashes partition_id").
func workerIndexFor(partitionID ids.PartitionId, workers int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d", int64(partitionID))
	return int(h.Sum32()) % workers
}

func (p *Pipeline) runWorker(ctx context.Context, index int, queue chan Job) {
	for {
		select {
		case job := <-queue:
			p.processJob(ctx, index, job)
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		}
	}
}

func (p *Pipeline) processJob(ctx context.Context, workerIndex int, job Job) {
	ctx, span := tracer.Start(ctx, "persist.processJob")
	defer span.End()

	start := time.Now()
	err := p.runJob(ctx, job)
	if p.metrics != nil {
		p.metrics.observeJob(workerIndex, time.Since(start), err)
	}
	if err != nil {
		level.Error(p.logger).Log("msg", "persist job failed permanently", "namespace", job.NamespaceID, "table", job.TableID, "partition", job.PartitionID, "err", err)
		if errors.Is(err, ErrPersistPermanent) {
			select {
			case p.fatal <- err:
			default:
			}
		}
	}
	if job.Done != nil {
		job.Done <- err
		close(job.Done)
	}
}
