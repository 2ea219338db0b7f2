// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package wal implements the segmented, append-only, crash-recoverable
// binary write-ahead log (spec.md C2). A WAL has one open (appendable)
// segment at a time and any number of closed (readable, eventually
// deletable) segments. WriteHandle, ReadHandle and RotationHandle are thin,
// cheaply cloneable facades over one shared WAL so callers only see the
// capability they need (spec.md §9 "handle aliasing").
package wal

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronocore/ingestcore/ids"
)

// state is the immutable, atomically-swapped snapshot of which segments
// exist. Readers load it without taking writeMu; only rotate/delete mutate
// it, and they do so by constructing a new state and swapping it in.
type state struct {
	closed     *immutable.SortedMap[uint64, ClosedSegment]
	openID     ids.SegmentId
	openWriter *segmentWriter
}

// WAL is the segment lifecycle manager described in spec.md §4.2.
type WAL struct {
	dir             string
	maxSegmentBytes int64
	logger          log.Logger
	reg             prometheus.Registerer
	metrics         *walMetrics
	meta            *metaStore

	s       atomic.Value // *state
	writeMu sync.Mutex

	closed uint32
}

// Option configures Open.
type Option func(*WAL)

// WithMaxSegmentBytes bounds the size of each segment file before append
// returns ErrWalFull.
func WithMaxSegmentBytes(n int64) Option {
	return func(w *WAL) { w.maxSegmentBytes = n }
}

// WithLogger sets the logger used for background/best-effort failures.
func WithLogger(logger log.Logger) Option {
	return func(w *WAL) { w.logger = logger }
}

// WithRegisterer sets the prometheus.Registerer metrics are registered
// against. Defaults to a private registry if unset.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(w *WAL) { w.reg = reg }
}

// Open opens the WAL rooted at dir, creating it if necessary. Every
// pre-existing "<id>.dat" file is treated as Closed; a fresh segment,
// numbered one past the highest existing id, is created and becomes the
// sole Open segment (spec.md §4.2).
func Open(dir string, opts ...Option) (*WAL, error) {
	w := &WAL{
		dir:             dir,
		maxSegmentBytes: defaultMaxBytes,
		logger:          log.NewNopLogger(),
		reg:             prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.metrics = newWALMetrics(w.reg)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}

	meta, err := openMetaStore(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: open metadata store: %w", err)
	}
	w.meta = meta

	existing, err := listSegmentIDs(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}

	closed := &immutable.SortedMap[uint64, ClosedSegment]{}
	var nextID ids.SegmentId
	for _, id := range existing {
		info, err := w.loadOrScanSegmentInfo(id)
		if err != nil {
			return nil, fmt.Errorf("wal: recover segment %d: %w", id, err)
		}
		closed = closed.Set(uint64(id), info)
		if id >= nextID {
			nextID = id + 1
		}
	}

	writer, err := createSegmentWriter(dir, nextID, w.maxSegmentBytes)
	if err != nil {
		return nil, fmt.Errorf("wal: create segment %d: %w", nextID, err)
	}

	w.s.Store(&state{closed: closed, openID: nextID, openWriter: writer})
	w.metrics.openSegments.Set(float64(closed.Len()))
	return w, nil
}

// loadOrScanSegmentInfo returns a pre-existing segment's summary, preferring
// the bbolt cache but falling back to a full scan (and repopulating the
// cache) if the cache is missing or stale relative to the file on disk.
func (w *WAL) loadOrScanSegmentInfo(id ids.SegmentId) (ClosedSegment, error) {
	stat, err := os.Stat(segmentPath(w.dir, id))
	if err != nil {
		return ClosedSegment{}, err
	}

	if cached, ok := w.meta.get(id); ok && cached.SizeBytes == stat.Size() {
		return cached, nil
	}

	info, err := scanSegment(w.dir, id, stat)
	if err != nil {
		return ClosedSegment{}, err
	}
	if err := w.meta.put(info); err != nil {
		level.Warn(w.logger).Log("msg", "failed to cache segment metadata", "segment", id, "err", err)
	}
	return info, nil
}

func scanSegment(dir string, id ids.SegmentId, stat os.FileInfo) (ClosedSegment, error) {
	r, err := openSegmentReader(dir, id)
	if err != nil {
		return ClosedSegment{}, err
	}
	defer r.Close()

	info := ClosedSegment{ID: id, SizeBytes: stat.Size(), CreatedAt: stat.ModTime(), SealedAt: stat.ModTime()}
	for {
		rec, err := r.Next()
		if err != nil {
			break
		}
		if rec.SequenceNumber > info.MaxSequence {
			info.MaxSequence = rec.SequenceNumber
		}
	}
	return info, nil
}

func (w *WAL) loadState() *state {
	return w.s.Load().(*state)
}

func (w *WAL) checkClosed() error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	return nil
}

// WriteHandle exposes only Append: the capability needed by the write path
// (spec.md C6). It is cheap to copy and safe for concurrent use.
type WriteHandle struct{ w *WAL }

// ReadHandle exposes only the read-side operations used by replay and the
// persist pipeline's segment bookkeeping.
type ReadHandle struct{ w *WAL }

// RotationHandle exposes only rotate/delete, used by the persist pipeline's
// rotation task.
type RotationHandle struct{ w *WAL }

func (w *WAL) WriteHandle() WriteHandle       { return WriteHandle{w} }
func (w *WAL) ReadHandle() ReadHandle         { return ReadHandle{w} }
func (w *WAL) RotationHandle() RotationHandle { return RotationHandle{w} }

// Close stops accepting new operations and releases the current segment and
// metadata store. It is safe to call more than once.
func (w *WAL) Close() error {
	if !atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		return nil
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	st := w.loadState()
	if _, err := st.openWriter.seal(); err != nil {
		level.Error(w.logger).Log("msg", "failed to seal open segment on close", "err", err)
	}
	return w.meta.close()
}
