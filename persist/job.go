package persist

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/chronocore/ingestcore/objstore"
	"github.com/chronocore/ingestcore/op"
)

// runJob executes the six steps of spec.md §4.7's per-job algorithm.
func (p *Pipeline) runJob(ctx context.Context, job Job) error {
	// 1. Resolve deferred metadata.
	ns, err := p.cat.GetNamespace(ctx, job.NamespaceID)
	if err != nil {
		return fmt.Errorf("persist: resolve namespace: %w", err)
	}
	tbl, err := p.cat.GetTable(ctx, job.TableID)
	if err != nil {
		return fmt.Errorf("persist: resolve table: %w", err)
	}
	var sortKey []string
	if job.PartitionData != nil && job.PartitionData.SortKey != nil {
		sortKey, err = job.PartitionData.SortKey.Get(ctx)
		if err != nil {
			return fmt.Errorf("persist: resolve sort key: %w", err)
		}
	}

	// 2. Concatenate and sort the snapshot batches.
	merged := op.NewColumnBatch()
	for _, snap := range job.SnapshotBatches {
		merged.Merge(snap.Batch)
	}
	sortColumnBatch(merged, sortKey)

	// 3. Write a columnar file; fileMeta collects the metadata recorded in
	// the catalog at step 5 and is not embedded in the file.
	fileMeta := fileMetadata{
		NamespaceID: job.NamespaceID,
		TableID:     job.TableID,
		PartitionID: job.PartitionID,
		MaxSequence: job.MaxSequenceInSnapshot,
		RowCount:    int64(merged.RowCount),
		SortKey:     sortKey,
	}
	var buf bytes.Buffer
	if err := writeParquet(&buf, merged, &fileMeta); err != nil {
		// A malformed column batch here is PersistPermanent (spec.md §7):
		// no amount of retrying fixes an encoding schema mismatch.
		return fmt.Errorf("persist: %w: encode columnar file: %v", ErrPersistPermanent, err)
	}

	// 4. Upload to object storage at a deterministic, versioned path.
	fileUUID := uuid.New().String()
	path := objstore.ObjectPath(int64(job.NamespaceID), int64(job.TableID), int64(job.PartitionID), fileUUID)
	if err := p.retryForever(ctx, func() error {
		return p.store.Put(ctx, path, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	}); err != nil {
		return fmt.Errorf("persist: upload: %w", err)
	}

	// 5. Record the file in the catalog via an atomic upsert.
	params := fileMeta.toParams(path, int64(buf.Len()))
	if err := p.retryForever(ctx, func() error {
		return p.cat.CreateParquetFile(ctx, params)
	}); err != nil {
		return fmt.Errorf("persist: catalog upsert: %w", err)
	}

	// 6. Advance the partition's persisted watermark and free the WAL.
	p.tree.MarkPersisted(job.Handle, job.MaxSequenceInSnapshot)
	p.wal.ReleaseUpTo(job.NamespaceID, job.PartitionID, job.MaxSequenceInSnapshot)

	level.Debug(p.logger).Log("msg", "persisted partition snapshot", "namespace", ns.Name, "table", tbl.Name, "partition", job.PartitionID, "rows", merged.RowCount, "path", path)
	return nil
}

// retryForever implements spec.md's "retry forever" policy for catalog and
// object-store hiccups (PersistTransient, §7): upstream is expected to drop
// load rather than the ingester drop data.
func (p *Pipeline) retryForever(ctx context.Context, fn func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 0
	expo.MaxInterval = 30 * time.Second
	policy := backoff.WithContext(expo, ctx)
	return backoff.RetryNotify(fn, policy, func(err error, wait time.Duration) {
		level.Warn(p.logger).Log("msg", "persist step failed transiently, retrying", "wait", wait, "err", err)
	})
}
