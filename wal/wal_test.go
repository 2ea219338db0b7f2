// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import (
	"io"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

func testOpWithBatch(seq uint64, partitionKey string) op.SequencedOp {
	return op.SequencedOp{
		SequenceNumber: ids.SequenceNumber(seq),
		NamespaceId:    ids.NamespaceId(1),
		Write: op.Write{
			PartitionKey: ids.PartitionKey(partitionKey),
			Tables: map[ids.TableId]*op.ColumnBatch{
				1: {
					RowCount: 1,
					Columns: map[string]*op.Column{
						"v": {Type: op.ColumnInt64, Int64Values: []int64{int64(seq)}},
					},
				},
			},
		},
	}
}

func openTestWAL(t *testing.T) *WAL {
	t.Helper()
	dir := t.TempDir()
	w, err := Open(dir, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// TestAppendRotateReadRoundTrip covers S1: write, rotate, read back the
// closed segment and get the same ops in order.
func TestAppendRotateReadRoundTrip(t *testing.T) {
	w := openTestWAL(t)
	wh := w.WriteHandle()

	var want []op.SequencedOp
	for i := uint64(1); i <= 5; i++ {
		o := testOpWithBatch(i, "2026-08-01")
		want = append(want, o)
		_, err := wh.Append(o)
		require.NoError(t, err)
	}

	rh := w.ReadHandle()
	require.Empty(t, rh.ClosedSegments())

	closedInfo, err := w.RotationHandle().Rotate()
	require.NoError(t, err)
	require.Equal(t, ids.SequenceNumber(5), closedInfo.MaxSequence)

	segments := rh.ClosedSegments()
	require.Len(t, segments, 1)

	r, err := rh.ReaderFor(segments[0].ID)
	require.NoError(t, err)
	defer r.Close()

	var got []op.SequencedOp
	for {
		o, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, o)
	}
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].SequenceNumber, got[i].SequenceNumber)
	}
}

// TestReplayAcrossRestart covers S2/S3: reopening a WAL directory treats all
// pre-existing segments as closed and starts a fresh open segment numbered
// one past the highest existing id.
func TestReplayAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	w1, err := Open(dir, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	wh := w1.WriteHandle()
	for i := uint64(1); i <= 3; i++ {
		_, err := wh.Append(testOpWithBatch(i, "2026-08-01"))
		require.NoError(t, err)
	}
	firstClosed, err := w1.RotationHandle().Rotate()
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := Open(dir, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer w2.Close()

	// The segment that was open when w1 closed is also pre-existing, so it is
	// reopened as closed alongside the rotated one.
	segments := w2.ReadHandle().ClosedSegments()
	require.Len(t, segments, 2)
	require.Equal(t, firstClosed.ID, segments[0].ID)
	require.Equal(t, firstClosed.MaxSequence, segments[0].MaxSequence)

	st := w2.loadState()
	require.Equal(t, firstClosed.ID+2, st.openID)

	var replayed []op.SequencedOp
	r, err := w2.ReadHandle().ReaderFor(segments[0].ID)
	require.NoError(t, err)
	defer r.Close()
	for {
		o, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		replayed = append(replayed, o)
	}
	require.Len(t, replayed, 3)
}

// TestTornTailToleratedOnRead covers S6: a truncated trailing frame (as if
// the process crashed mid-write) must not surface as a hard error, only as
// the end of the stream.
func TestTornTailToleratedOnRead(t *testing.T) {
	w := openTestWAL(t)
	wh := w.WriteHandle()
	for i := uint64(1); i <= 3; i++ {
		_, err := wh.Append(testOpWithBatch(i, "2026-08-01"))
		require.NoError(t, err)
	}
	closedInfo, err := w.RotationHandle().Rotate()
	require.NoError(t, err)

	path := segmentPath(w.dir, closedInfo.ID)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	stat, err := f.Stat()
	require.NoError(t, err)
	require.NoError(t, f.Truncate(stat.Size()-3))
	require.NoError(t, f.Close())

	r, err := openSegmentReader(w.dir, closedInfo.ID)
	require.NoError(t, err)
	defer r.Close()

	var n int
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 2, n)
}

// TestDeleteRejectsOpenSegment covers I4: the currently open segment can
// never be deleted.
func TestDeleteRejectsOpenSegment(t *testing.T) {
	w := openTestWAL(t)
	st := w.loadState()
	err := w.RotationHandle().Delete(st.openID)
	require.ErrorIs(t, err, ErrSegmentOpen)
}

// TestDeleteRemovesClosedSegment covers the persist pipeline's final step:
// once a closed segment has been durably persisted elsewhere, it can be
// deleted and subsequently is absent from both ClosedSegments and disk.
func TestDeleteRemovesClosedSegment(t *testing.T) {
	w := openTestWAL(t)
	wh := w.WriteHandle()
	_, err := wh.Append(testOpWithBatch(1, "2026-08-01"))
	require.NoError(t, err)
	closedInfo, err := w.RotationHandle().Rotate()
	require.NoError(t, err)

	require.NoError(t, w.RotationHandle().Delete(closedInfo.ID))
	require.Empty(t, w.ReadHandle().ClosedSegments())

	_, err = os.Stat(segmentPath(w.dir, closedInfo.ID))
	require.True(t, os.IsNotExist(err))

	err = w.RotationHandle().Delete(closedInfo.ID)
	require.ErrorIs(t, err, ErrSegmentDeleted)
}

// TestConcurrentAppendsAllSurvive covers S5: concurrent writers may be
// interleaved in any order but no record may be lost.
func TestConcurrentAppendsAllSurvive(t *testing.T) {
	w := openTestWAL(t)
	wh := w.WriteHandle()

	const goroutines = 8
	const perGoroutine = 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				seq := uint64(g*perGoroutine + i + 1)
				_, err := wh.Append(testOpWithBatch(seq, "2026-08-01"))
				require.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	closedInfo, err := w.RotationHandle().Rotate()
	require.NoError(t, err)

	r, err := w.ReadHandle().ReaderFor(closedInfo.ID)
	require.NoError(t, err)
	defer r.Close()

	var count int
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	require.Equal(t, goroutines*perGoroutine, count)
}

// TestAppendReturnsErrWalFullAndRotateRecovers covers the capacity-limit
// edge case: once the open segment is full, Append fails until a rotation
// makes room.
func TestAppendReturnsErrWalFullAndRotateRecovers(t *testing.T) {
	dir := t.TempDir()
	recordLen := frameHeaderLen + len(op.EncodeSequencedOp(testOpWithBatch(1, "2026-08-01")))
	w, err := Open(dir, WithRegisterer(prometheus.NewRegistry()), WithMaxSegmentBytes(int64(headerLen+recordLen)))
	require.NoError(t, err)
	defer w.Close()

	wh := w.WriteHandle()
	_, err = wh.Append(testOpWithBatch(1, "2026-08-01"))
	require.NoError(t, err)

	_, err = wh.Append(testOpWithBatch(2, "2026-08-01"))
	require.ErrorIs(t, err, ErrWalFull)

	_, err = w.RotationHandle().Rotate()
	require.NoError(t, err)

	_, err = wh.Append(testOpWithBatch(2, "2026-08-01"))
	require.NoError(t, err)
}

func TestAppendAfterCloseReturnsErrClosed(t *testing.T) {
	w := openTestWAL(t)
	require.NoError(t, w.Close())
	_, err := w.WriteHandle().Append(testOpWithBatch(1, "2026-08-01"))
	require.ErrorIs(t, err, ErrClosed)
}
