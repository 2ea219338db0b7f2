package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

// fakeWAL and fakeBuffer play the role the Rust original's MockDmlSink plays
// in wal_sink.rs's own tests: simple recorders that let a test assert call
// order and arguments without a real WAL or BufferTree.
type fakeWAL struct {
	mu      sync.Mutex
	appends []op.SequencedOp
	failNext bool
}

func (f *fakeWAL) Append(o op.SequencedOp) (AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return AppendResult{}, errors.New("disk full")
	}
	f.appends = append(f.appends, o)
	return AppendResult{TotalBytes: int64(len(f.appends) * 100), BytesWritten: 100}, nil
}

type fakeBuffer struct {
	mu      sync.Mutex
	applied []op.SequencedOp
	block   chan struct{}
	failNext bool
}

func (f *fakeBuffer) Apply(ctx context.Context, o op.SequencedOp) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("resolve partition failed")
	}
	f.applied = append(f.applied, o)
	return nil
}

func (f *fakeBuffer) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

type fakeOracle struct {
	mu  sync.Mutex
	cur uint64
}

func (o *fakeOracle) Next() ids.SequenceNumber {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cur++
	return ids.SequenceNumber(o.cur)
}
