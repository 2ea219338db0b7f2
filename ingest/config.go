// Package ingest wires the WAL, Timestamp Oracle, partition provider,
// BufferTree, sink, persist pipeline and replay into the single process
// lifecycle described by spec.md §6-§7: replay on startup, accept writes,
// rotate and persist on a timer, shut down cleanly.
package ingest

import (
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/objstore"
)

// Config is spec.md §6's injected configuration. There is no CLI/env layer;
// callers build this struct directly (out of scope per spec.md §1).
type Config struct {
	WalDirectory                string
	WalMaxSegmentBytes          int64
	WalRotationPeriod           time.Duration
	PartitionCacheCap           int
	PersistSubmissionQueueDepth int
	PersistWorkers              int
	PersistWorkerQueueDepth     int

	Catalog     catalog.Catalog
	ObjectStore objstore.Store
	Logger      log.Logger
	Registerer  prometheus.Registerer

	// OnFatal is invoked, once, when the persist pipeline reports a
	// PersistPermanent failure (spec.md §7): an encoding schema mismatch or
	// other impossible invariant that retrying cannot fix. It defaults to
	// os.Exit(1); tests substitute a non-exiting hook.
	OnFatal func(error)
}

func (c Config) withDefaults() Config {
	if c.WalRotationPeriod <= 0 {
		c.WalRotationPeriod = 10 * time.Minute
	}
	if c.PartitionCacheCap <= 0 {
		c.PartitionCacheCap = 40_000
	}
	if c.PersistSubmissionQueueDepth <= 0 {
		c.PersistSubmissionQueueDepth = 1000
	}
	if c.PersistWorkers <= 0 {
		c.PersistWorkers = 4
	}
	if c.PersistWorkerQueueDepth <= 0 {
		c.PersistWorkerQueueDepth = 100
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.OnFatal == nil {
		c.OnFatal = func(err error) {
			level.Error(c.Logger).Log("msg", "persist pipeline reported a permanent failure, exiting", "err", err)
			os.Exit(1)
		}
	}
	return c
}
