// Package oracle implements the Timestamp Oracle (spec.md C1): a single
// wait-free atomic counter that hands out monotonically increasing sequence
// numbers, seeded once at startup from the highest sequence number observed
// during WAL replay.
package oracle

import (
	"sync/atomic"

	"github.com/chronocore/ingestcore/ids"
)

// Oracle hands out SequenceNumbers that are strictly greater than every
// value previously returned and every value observed during replay (I3).
// It is safe for concurrent use and never blocks.
type Oracle struct {
	// hwm is the last sequence number issued. next() returns hwm+1.
	hwm uint64
}

// New returns an Oracle with no sequence numbers issued yet. Callers that
// replay a WAL before accepting writes must call Init with the maximum
// sequence number observed during replay before the first Next call.
func New() *Oracle {
	return &Oracle{}
}

// Init seeds the oracle's high-water-mark. It must be called at most once,
// before any call to Next, typically immediately after WAL replay
// completes (spec.md C8 step 3).
func (o *Oracle) Init(highWaterMark ids.SequenceNumber) {
	atomic.StoreUint64(&o.hwm, uint64(highWaterMark))
}

// Next atomically increments the high-water-mark and returns the new value.
// It never blocks and never fails.
func (o *Oracle) Next() ids.SequenceNumber {
	return ids.SequenceNumber(atomic.AddUint64(&o.hwm, 1))
}

// HighWaterMark returns the most recently issued sequence number, or the
// seeded value if Next has not yet been called. Intended for diagnostics.
func (o *Oracle) HighWaterMark() ids.SequenceNumber {
	return ids.SequenceNumber(atomic.LoadUint64(&o.hwm))
}
