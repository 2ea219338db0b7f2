package partition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronocore/ingestcore/catalog"
	"github.com/chronocore/ingestcore/ids"
)

func TestGetOrCreateCachesAcrossCalls(t *testing.T) {
	fakeCatalog := catalog.NewFake()
	resolver := NewCatalogPartitionResolver(fakeCatalog, nil)
	p, err := New(10, resolver)
	require.NoError(t, err)

	ctx := context.Background()
	d1, err := p.GetOrCreate(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)
	d2, err := p.GetOrCreate(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)
	require.Equal(t, d1.ID, d2.ID)

	sortKey, err := d1.SortKey.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, sortKey)
}

func TestGetOrCreateDifferentKeysAreIndependent(t *testing.T) {
	fakeCatalog := catalog.NewFake()
	resolver := NewCatalogPartitionResolver(fakeCatalog, nil)
	p, err := New(10, resolver)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := p.GetOrCreate(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)
	b, err := p.GetOrCreate(ctx, 1, 2, "2026-08-02")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestPreWarmPopulatesCacheWithoutResolverCalls(t *testing.T) {
	fakeCatalog := catalog.NewFake()
	ctx := context.Background()
	seeded, err := fakeCatalog.CreateOrGetPartition(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)

	p, err := New(10, failingResolver{})
	require.NoError(t, err)
	require.NoError(t, p.PreWarm(ctx, fakeCatalog, 10))

	d, err := p.GetOrCreate(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, d.ID)
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, ids.NamespaceId, ids.TableId, ids.PartitionKey) (catalog.Partition, error) {
	panic("resolver should not be called on a cache hit")
}
