// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import (
	"os"

	"github.com/go-kit/log/level"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

// Append encodes o and writes it to the current open segment. It returns
// only once the write has completed; durability level beyond that is a
// deployment concern (spec.md §4.2 notes this is configurable, out of
// scope here). Append never mutates o.
func (h WriteHandle) Append(o op.SequencedOp) (AppendResult, error) {
	if err := h.w.checkClosed(); err != nil {
		return AppendResult{}, err
	}
	payload := op.EncodeSequencedOp(o)
	if len(payload) > maxEntrySize {
		// Larger than a reader will accept (and, past 4 GiB, larger than the
		// u32 length field can describe): refuse rather than write a record
		// that replay would treat as the end of the log.
		return AppendResult{}, ErrEncode
	}

	st := h.w.loadState()
	res, err := st.openWriter.append(o.SequenceNumber, payload)
	if err != nil {
		if err == ErrWalFull {
			h.w.metrics.appendsFull.Inc()
		}
		return AppendResult{}, err
	}
	h.w.metrics.appends.Inc()
	h.w.metrics.bytesWritten.Add(float64(res.BytesWritten))
	return res, nil
}

// ClosedSegments returns every sealed segment in creation order.
func (h ReadHandle) ClosedSegments() []ClosedSegment {
	st := h.w.loadState()
	out := make([]ClosedSegment, 0, st.closed.Len())
	it := st.closed.Iterator()
	for !it.Done() {
		_, v, _ := it.Next()
		out = append(out, v)
	}
	return out
}

// ReaderFor opens a forward-only reader over the given closed segment.
func (h ReadHandle) ReaderFor(id ids.SegmentId) (*SegmentReader, error) {
	st := h.w.loadState()
	if _, ok := st.closed.Get(uint64(id)); !ok {
		return nil, ErrNotFound
	}
	return openSegmentReader(h.w.dir, id)
}

// Rotate atomically seals the current open segment and replaces it with a
// freshly created one, returning the sealed segment's descriptor. Safe to
// call concurrently: each call rotates whichever segment is open at the
// time it acquires the internal lock (spec.md §4.2's "idempotent-safe"
// requirement is satisfied because concurrent callers never corrupt state;
// see DESIGN.md for this reading of the open question).
func (h RotationHandle) Rotate() (ClosedSegment, error) {
	w := h.w
	if err := w.checkClosed(); err != nil {
		return ClosedSegment{}, err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	st := w.loadState()
	closedInfo, err := st.openWriter.seal()
	if err != nil {
		return ClosedSegment{}, err
	}

	newID := st.openID + 1
	newWriter, err := createSegmentWriter(w.dir, newID, w.maxSegmentBytes)
	if err != nil {
		return ClosedSegment{}, err
	}

	newClosed := st.closed.Set(uint64(closedInfo.ID), closedInfo)
	w.s.Store(&state{closed: newClosed, openID: newID, openWriter: newWriter})
	w.metrics.rotations.Inc()
	w.metrics.openSegments.Set(float64(newClosed.Len()))

	if err := w.meta.put(closedInfo); err != nil {
		level.Warn(w.logger).Log("msg", "failed to persist segment metadata cache", "segment", closedInfo.ID, "err", err)
	}
	return closedInfo, nil
}

// Delete removes a closed segment's file. It fails with ErrSegmentOpen if
// id is still the open segment, or ErrSegmentDeleted if it is not currently
// tracked as closed (spec.md §4.2, I4).
func (h RotationHandle) Delete(id ids.SegmentId) error {
	w := h.w
	if err := w.checkClosed(); err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	st := w.loadState()
	if id == st.openID {
		return ErrSegmentOpen
	}
	if _, ok := st.closed.Get(uint64(id)); !ok {
		return ErrSegmentDeleted
	}

	newClosed := st.closed.Delete(uint64(id))
	w.s.Store(&state{closed: newClosed, openID: st.openID, openWriter: st.openWriter})

	if err := os.Remove(segmentPath(w.dir, id)); err != nil {
		return err
	}
	if err := w.meta.delete(id); err != nil {
		level.Warn(w.logger).Log("msg", "failed to evict segment metadata cache", "segment", id, "err", err)
	}
	w.metrics.deletions.Inc()
	w.metrics.openSegments.Set(float64(newClosed.Len()))
	return nil
}
