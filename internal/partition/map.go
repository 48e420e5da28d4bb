package partition

import (
	"bytes"
	"fmt"
	"sort"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/keyenc"
	"github.com/arkilian/tablets/pkg/types"
)

// Map is the materialized partitioning of a table: the descriptor and the
// ordered, gap-free list of partitions it defines. A Map is immutable after
// construction and safe for concurrent use without locking.
type Map struct {
	desc       Descriptor
	rangeTypes []types.DataType
	partitions []types.Partition
}

func newMap(table *types.TableSchema, desc Descriptor) (*Map, error) {
	for i, hc := range desc.HashComponents {
		if hc.NumBuckets < 2 || len(hc.ColumnIDs) == 0 {
			return nil, invalidHash("hash component %d is malformed", i)
		}
		for _, id := range hc.ColumnIDs {
			if _, err := keyColumnType(table, id); err != nil {
				return nil, fmt.Errorf("hash component %d: %w", i, err)
			}
		}
	}

	rangeTypes := make([]types.DataType, 0, len(desc.RangeColumnIDs))
	for _, id := range desc.RangeColumnIDs {
		dt, err := keyColumnType(table, id)
		if err != nil {
			return nil, fmt.Errorf("range component: %w", err)
		}
		rangeTypes = append(rangeTypes, dt)
	}

	if len(desc.SplitKeys) > 0 && len(desc.RangeColumnIDs) == 0 {
		return nil, tabletserrors.NewValidationError(tabletserrors.CodeInvalidSplitRow,
			"split rows require a range partition component")
	}
	if err := checkSplitKeys(desc.SplitKeys); err != nil {
		return nil, err
	}

	return &Map{
		desc:       desc,
		rangeTypes: rangeTypes,
		partitions: buildPartitions(desc),
	}, nil
}

func keyColumnType(table *types.TableSchema, id types.ColumnID) (types.DataType, error) {
	idx := table.IndexOfID(id)
	if idx < 0 {
		return 0, invalidSchema("column id %d does not exist", id)
	}
	if !table.IsKeyColumn(idx) {
		return 0, invalidSchema("column %q is not a primary key column", table.Columns[idx].Name)
	}
	return table.Columns[idx].Type, nil
}

// Descriptor returns a copy of the persisted form of the map.
func (m *Map) Descriptor() Descriptor {
	return m.desc.Clone()
}

// Partitions returns the partitions in partition key order. The returned
// slice is shared and must not be modified.
func (m *Map) Partitions() []types.Partition {
	return m.partitions
}

// NumPartitions returns the number of partitions.
func (m *Map) NumPartitions() int {
	return len(m.partitions)
}

// HashBuckets returns the bucket of row for every hash component.
func (m *Map) HashBuckets(row *types.Row) ([]int32, error) {
	buckets := make([]int32, len(m.desc.HashComponents))
	for i, hc := range m.desc.HashComponents {
		b, err := HashBucket(hc, row)
		if err != nil {
			return nil, fmt.Errorf("hash component %d: %w", i, err)
		}
		buckets[i] = b
	}
	return buckets, nil
}

// RangeKey returns the encoded range key of row.
func (m *Map) RangeKey(row *types.Row) ([]byte, error) {
	return keyenc.EncodeRowKey(row, m.desc.RangeColumnIDs)
}

// PartitionKey returns the partition key of row: one 4-byte big-endian
// bucket index per hash component in declaration order, followed by the
// range key.
func (m *Map) PartitionKey(row *types.Row) ([]byte, error) {
	key := make([]byte, 0, len(m.desc.HashComponents)*bucketPrefixSize)
	for i, hc := range m.desc.HashComponents {
		b, err := HashBucket(hc, row)
		if err != nil {
			return nil, fmt.Errorf("hash component %d: %w", i, err)
		}
		key = appendBucket(key, b)
	}
	return keyenc.AppendRowKey(key, row, m.desc.RangeColumnIDs)
}

// PartitionOf returns the partition owning row.
func (m *Map) PartitionOf(row *types.Row) (types.Partition, error) {
	key, err := m.PartitionKey(row)
	if err != nil {
		return types.Partition{}, err
	}
	return m.PartitionForKey(key), nil
}

// PartitionForKey returns the partition containing an encoded partition key.
// The partitions cover the whole key space, so there is always exactly one.
func (m *Map) PartitionForKey(key []byte) types.Partition {
	idx := sort.Search(len(m.partitions), func(i int) bool {
		return bytes.Compare(m.partitions[i].Lower, key) > 0
	})
	return m.partitions[idx-1]
}
