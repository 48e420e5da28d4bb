package partition

import "github.com/arkilian/tablets/pkg/types"

// HashDescriptor is a hash component with its columns resolved to IDs.
type HashDescriptor struct {
	ColumnIDs  []types.ColumnID `json:"column_ids"`
	NumBuckets int32            `json:"num_buckets"`
	Seed       uint32           `json:"seed"`
}

// Descriptor is the persisted form of a table's partitioning: the resolved
// partition schema plus the encoded split keys. Columns are referenced by
// ID, so a descriptor stays valid across column renames.
type Descriptor struct {
	HashVersion    int              `json:"hash_version"`
	HashComponents []HashDescriptor `json:"hash_components,omitempty"`
	RangeColumnIDs []types.ColumnID `json:"range_column_ids,omitempty"`
	SplitKeys      [][]byte         `json:"split_keys,omitempty"`
}

// NumHashCombinations returns the product of all bucket counts.
func (d Descriptor) NumHashCombinations() int {
	n := 1
	for _, hc := range d.HashComponents {
		n *= int(hc.NumBuckets)
	}
	return n
}

// NumPartitions returns the number of partitions the descriptor defines.
func (d Descriptor) NumPartitions() int {
	return d.NumHashCombinations() * (len(d.SplitKeys) + 1)
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	cp := Descriptor{HashVersion: d.HashVersion}
	for _, hc := range d.HashComponents {
		cp.HashComponents = append(cp.HashComponents, HashDescriptor{
			ColumnIDs:  append([]types.ColumnID(nil), hc.ColumnIDs...),
			NumBuckets: hc.NumBuckets,
			Seed:       hc.Seed,
		})
	}
	cp.RangeColumnIDs = append([]types.ColumnID(nil), d.RangeColumnIDs...)
	for _, k := range d.SplitKeys {
		cp.SplitKeys = append(cp.SplitKeys, append([]byte(nil), k...))
	}
	return cp
}
