package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronocore/ingestcore/ids"
)

func TestCreateOrGetPartitionIsIdempotent(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	p1, err := f.CreateOrGetPartition(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)
	p2, err := f.CreateOrGetPartition(ctx, 1, 2, "2026-08-01")
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID)

	p3, err := f.CreateOrGetPartition(ctx, 1, 2, "2026-08-02")
	require.NoError(t, err)
	require.NotEqual(t, p1.ID, p3.ID)
}

func TestGetNamespaceNotFound(t *testing.T) {
	f := NewFake()
	_, err := f.GetNamespace(context.Background(), ids.NamespaceId(99))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListParquetFilesByNamespaceFiltersByNamespace(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	require.NoError(t, f.CreateParquetFile(ctx, ParquetFileParams{NamespaceID: 1, ObjectPath: "a"}))
	require.NoError(t, f.CreateParquetFile(ctx, ParquetFileParams{NamespaceID: 2, ObjectPath: "b"}))

	files, err := f.ListParquetFilesByNamespace(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "a", files[0].ObjectPath)
}
