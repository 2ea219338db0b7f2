// Package sink implements the WAL-sink / apply chain described in spec.md's
// C6: assign a sequence number, durably append to the WAL, then apply to the
// BufferTree, with the append-then-apply region made cancellation-safe
// (spec.md §4.6, §9, P6).
package sink

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

var tracer = otel.Tracer("github.com/chronocore/ingestcore/sink")

// Appender is the WAL capability this sink needs: WriteHandle.Append.
type Appender interface {
	Append(o op.SequencedOp) (AppendResult, error)
}

// AppendResult mirrors wal.AppendResult without importing the wal package,
// keeping sink decoupled from the WAL's on-disk representation.
type AppendResult struct {
	TotalBytes   int64
	BytesWritten int64
}

// Applier is the BufferTree capability this sink needs: Tree.Apply.
type Applier interface {
	Apply(ctx context.Context, o op.SequencedOp) error
}

// Oracle hands out sequence numbers (C1).
type Oracle interface {
	Next() ids.SequenceNumber
}

// Sink orders WAL durability before buffer visibility for every op it is
// given (spec.md I2).
type Sink struct {
	oracle  Oracle
	wal     Appender
	buffer  Applier
	logger  log.Logger
}

// New constructs a Sink. logger may be nil.
func New(oracle Oracle, wal Appender, buffer Applier, logger log.Logger) *Sink {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Sink{oracle: oracle, wal: wal, buffer: buffer, logger: logger}
}

// Apply assigns a sequence number if unset, appends to the WAL, and applies
// to the buffer. Once the WAL append has succeeded, ctx cancellation no
// longer aborts the operation: the buffer apply runs on a detached context
// that keeps the caller's values (such as the tracing span) but drops its
// cancellation and deadline, per spec.md's cancellation-safety requirement
// (§4.6, §9, DESIGN NOTES strategy (b)).
func (s *Sink) Apply(ctx context.Context, w op.Write, namespaceID ids.NamespaceId) (AppendResult, error) {
	ctx, span := tracer.Start(ctx, "sink.Apply", trace.WithAttributes())
	defer span.End()

	sop := op.SequencedOp{
		SequenceNumber: s.oracle.Next(),
		NamespaceId:    namespaceID,
		Write:          w,
	}

	res, err := s.wal.Append(sop)
	if err != nil {
		span.RecordError(err)
		return AppendResult{}, fmt.Errorf("sink: wal append: %w", err)
	}

	// The op is now durable. A caller cancelling ctx from here on must not
	// cause it to be lost from the buffer: detach onto a context that only
	// the apply itself controls the lifetime of.
	applyCtx := detach(ctx)
	if err := s.buffer.Apply(applyCtx, sop); err != nil {
		// BufferApply failures are internal-only (spec.md §7): the op is
		// safe in the WAL and will be reprocessed on replay, so this is
		// logged, not surfaced, and durable success is still reported.
		level.Error(s.logger).Log("msg", "buffer apply failed after durable WAL append, will be reprocessed on replay", "sequence", sop.SequenceNumber, "err", err)
	}
	return res, nil
}
