package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

func TestApplyAppendsThenApplies(t *testing.T) {
	wal := &fakeWAL{}
	buf := &fakeBuffer{}
	s := New(&fakeOracle{}, wal, buf, nil)

	_, err := s.Apply(context.Background(), op.Write{PartitionKey: "2026-08-01"}, 1)
	require.NoError(t, err)
	require.Len(t, wal.appends, 1)
	require.Equal(t, 1, buf.appliedCount())
	require.Equal(t, ids.SequenceNumber(1), wal.appends[0].SequenceNumber)
}

func TestApplyFailsClosedOnWalAppendError(t *testing.T) {
	wal := &fakeWAL{failNext: true}
	buf := &fakeBuffer{}
	s := New(&fakeOracle{}, wal, buf, nil)

	_, err := s.Apply(context.Background(), op.Write{PartitionKey: "2026-08-01"}, 1)
	require.Error(t, err)
	require.Equal(t, 0, buf.appliedCount())
}

func TestApplyReportsDurableSuccessEvenWhenBufferApplyFails(t *testing.T) {
	wal := &fakeWAL{}
	buf := &fakeBuffer{failNext: true}
	s := New(&fakeOracle{}, wal, buf, nil)

	_, err := s.Apply(context.Background(), op.Write{PartitionKey: "2026-08-01"}, 1)
	require.NoError(t, err)
	require.Len(t, wal.appends, 1)
	require.Equal(t, 0, buf.appliedCount())
}

// TestApplyIsCancellationSafeAfterAppend covers P6: cancelling the caller's
// context after the WAL append has completed must not prevent the buffer
// apply from completing.
func TestApplyIsCancellationSafeAfterAppend(t *testing.T) {
	wal := &fakeWAL{}
	buf := &fakeBuffer{block: make(chan struct{})}
	s := New(&fakeOracle{}, wal, buf, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = s.Apply(ctx, op.Write{PartitionKey: "2026-08-01"}, 1)
		close(done)
	}()

	// Give Apply time to get past the WAL append before cancelling.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(buf.block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Apply did not complete after caller cancellation")
	}
	require.Equal(t, 1, buf.appliedCount())
}
