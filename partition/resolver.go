package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/ids"
)

// CatalogPartitionResolver resolves a cache miss against the catalog with
// infinite exponential-backoff retry: spec.md §4.4 notes the ingester
// cannot make progress without the catalog, so there is no retry cap.
type CatalogPartitionResolver struct {
	catalog catalog.PartitionStore
	logger  log.Logger
}

// NewCatalogPartitionResolver wraps cat with the retry-forever policy.
func NewCatalogPartitionResolver(cat catalog.PartitionStore, logger log.Logger) *CatalogPartitionResolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &CatalogPartitionResolver{catalog: cat, logger: logger}
}

func (r *CatalogPartitionResolver) Resolve(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (catalog.Partition, error) {
	var result catalog.Partition

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 0 // retry forever: the ingester cannot make progress without the catalog (spec.md §4.4)
	policy := backoff.WithContext(expo, ctx)
	err := backoff.RetryNotify(func() error {
		part, err := r.catalog.CreateOrGetPartition(ctx, namespaceID, tableID, key)
		if err != nil {
			return err
		}
		result = part
		return nil
	}, policy, func(err error, wait time.Duration) {
		level.Warn(r.logger).Log("msg", "catalog partition lookup failed, retrying", "namespace", namespaceID, "table", tableID, "partition_key", key, "wait", wait, "err", err)
	})
	if err != nil {
		return catalog.Partition{}, fmt.Errorf("partition: resolve %s/%s/%s: %w", namespaceID, tableID, key, err)
	}
	return result, nil
}
