// Package partition implements the partition provider and cache described
// in spec.md's C4: resolving (namespace, table, partition_key) to a durable
// PartitionId, pre-warmed at startup and backed by the catalog on a miss.
package partition

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/deferredload"
	"github.com/chronocore/ingestcore/ids"
)

// Data is a cached partition: its durable id, context, and a deferred
// resolution of its sort key (spec.md §4.4).
type Data struct {
	ID          ids.PartitionId
	NamespaceID ids.NamespaceId
	TableID     ids.TableId
	SortKey     *deferredload.DeferredLoad[[]string]
}

type cacheKey struct {
	namespace ids.NamespaceId
	table     ids.TableId
	key       ids.PartitionKey
}

// Resolver looks up a partition when the cache misses. CatalogPartitionResolver
// is the production implementation; tests may substitute a fake.
type Resolver interface {
	Resolve(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (catalog.Partition, error)
}

// Provider is the cache-plus-resolver pair callers use via GetOrCreate.
// Default capacity is spec.md §6's partition_cache_capacity (40,000).
type Provider struct {
	cache    *lru.Cache[cacheKey, *Data]
	resolver Resolver
	jitter   jitterFunc
}

type jitterFunc func(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, partitionID ids.PartitionId, sortKey []string) *deferredload.DeferredLoad[[]string]

// New constructs a Provider with the given cache capacity and resolver.
func New(capacity int, resolver Resolver) (*Provider, error) {
	if capacity <= 0 {
		capacity = 40_000
	}
	c, err := lru.New[cacheKey, *Data](capacity)
	if err != nil {
		return nil, fmt.Errorf("partition: create cache: %w", err)
	}
	p := &Provider{cache: c, resolver: resolver}
	p.jitter = p.deferSortKey
	return p, nil
}

// PreWarm loads up to the cache's capacity worth of the most recently used
// partitions for this shard (spec.md §4.4). Failure here is the
// PreWarmPartitions fatal startup error (spec.md §7).
func (p *Provider) PreWarm(ctx context.Context, cat catalog.PartitionStore, capacity int) error {
	recent, err := cat.MostRecentPartitions(ctx, capacity)
	if err != nil {
		return fmt.Errorf("partition: pre-warm: %w", err)
	}
	for _, part := range recent {
		key := cacheKey{part.NamespaceID, part.TableID, part.PartitionKey}
		p.cache.Add(key, &Data{
			ID:          part.ID,
			NamespaceID: part.NamespaceID,
			TableID:     part.TableID,
			SortKey:     p.jitter(ctx, part.NamespaceID, part.TableID, part.ID, part.SortKey),
		})
	}
	return nil
}

// GetOrCreate resolves a partition, preferring the in-memory cache and
// falling through to the resolver (with its own infinite-retry policy) on a
// miss.
func (p *Provider) GetOrCreate(ctx context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (*Data, error) {
	ck := cacheKey{namespaceID, tableID, key}
	if d, ok := p.cache.Get(ck); ok {
		return d, nil
	}

	part, err := p.resolver.Resolve(ctx, namespaceID, tableID, key)
	if err != nil {
		return nil, err
	}
	d := &Data{
		ID:          part.ID,
		NamespaceID: part.NamespaceID,
		TableID:     part.TableID,
		SortKey:     p.jitter(ctx, part.NamespaceID, part.TableID, part.ID, part.SortKey),
	}
	p.cache.Add(ck, d)
	return d, nil
}

func (p *Provider) deferSortKey(ctx context.Context, _ ids.NamespaceId, _ ids.TableId, _ ids.PartitionId, sortKey []string) *deferredload.DeferredLoad[[]string] {
	// The sort key is already known at resolution time (it came back with the
	// partition row), so the deferred load resolves immediately rather than
	// spawning a background fetch; this still gives downstream code (the
	// persist worker) one uniform await-the-slot access pattern regardless of
	// whether the value needed an actual catalog round trip.
	return deferredload.New(ctx, 0, func(context.Context) ([]string, error) {
		return sortKey, nil
	})
}
