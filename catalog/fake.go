package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chronocore/ingestcore/ids"
)

type partitionKey struct {
	namespace ids.NamespaceId
	table     ids.TableId
	key       ids.PartitionKey
}

// Fake is an in-memory Catalog used by tests for partition, persist, and
// replay wiring, mirroring the role the Rust original's in-memory catalog
// test double plays for the same subsystems.
type Fake struct {
	mu sync.Mutex

	nextPartitionID int64
	partitions      map[partitionKey]Partition
	byID            map[ids.PartitionId]Partition
	lastWritten     map[ids.PartitionId]time.Time

	namespaces map[ids.NamespaceId]Namespace
	tables     map[ids.TableId]Table
	files      []ParquetFileParams
}

// NewFake returns an empty fake catalog.
func NewFake() *Fake {
	return &Fake{
		partitions:  make(map[partitionKey]Partition),
		byID:        make(map[ids.PartitionId]Partition),
		lastWritten: make(map[ids.PartitionId]time.Time),
		namespaces:  make(map[ids.NamespaceId]Namespace),
		tables:      make(map[ids.TableId]Table),
	}
}

// PutNamespace and PutTable seed name lookups ahead of a test, the way a
// real catalog would already have them populated by the write frontend.
func (f *Fake) PutNamespace(n Namespace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces[n.ID] = n
}

func (f *Fake) PutTable(t Table) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[t.ID] = t
}

func (f *Fake) CreateOrGetPartition(_ context.Context, namespaceID ids.NamespaceId, tableID ids.TableId, key ids.PartitionKey) (Partition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk := partitionKey{namespaceID, tableID, key}
	if p, ok := f.partitions[pk]; ok {
		f.lastWritten[p.ID] = time.Now()
		return p, nil
	}

	f.nextPartitionID++
	p := Partition{
		ID:           ids.PartitionId(f.nextPartitionID),
		NamespaceID:  namespaceID,
		TableID:      tableID,
		PartitionKey: key,
	}
	f.partitions[pk] = p
	f.byID[p.ID] = p
	f.lastWritten[p.ID] = time.Now()
	return p, nil
}

func (f *Fake) MostRecentPartitions(_ context.Context, limit int) ([]Partition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ordered := make([]ids.PartitionId, 0, len(f.byID))
	for id := range f.byID {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return f.lastWritten[ordered[i]].After(f.lastWritten[ordered[j]])
	})
	if limit < len(ordered) {
		ordered = ordered[:limit]
	}
	out := make([]Partition, 0, len(ordered))
	for _, id := range ordered {
		out = append(out, f.byID[id])
	}
	return out, nil
}

func (f *Fake) GetNamespace(_ context.Context, id ids.NamespaceId) (Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.namespaces[id]
	if !ok {
		return Namespace{}, ErrNotFound
	}
	return n, nil
}

func (f *Fake) GetTable(_ context.Context, id ids.TableId) (Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[id]
	if !ok {
		return Table{}, ErrNotFound
	}
	return t, nil
}

func (f *Fake) CreateParquetFile(_ context.Context, p ParquetFileParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, p)
	return nil
}

func (f *Fake) ListParquetFilesByNamespace(_ context.Context, namespaceID ids.NamespaceId) ([]ParquetFileParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ParquetFileParams
	for _, p := range f.files {
		if p.NamespaceID == namespaceID {
			out = append(out, p)
		}
	}
	return out, nil
}
