package types

import "bytes"

// HashBucketComponent hashes a set of primary key columns into one of
// NumBuckets buckets.
type HashBucketComponent struct {
	// Columns lists primary key columns, disjoint from every other hash component
	Columns []string `json:"columns" yaml:"columns"`

	// NumBuckets is the number of buckets (>= 2)
	NumBuckets int32 `json:"num_buckets" yaml:"num_buckets"`

	// Seed is passed to the hash function
	Seed uint32 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// RangeComponent orders rows by a subset of the primary key columns.
type RangeComponent struct {
	// Columns lists primary key columns; empty means the full primary key
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// PartitionSchema declares how a table is partitioned: zero or more hash
// components followed by an optional range component. It is fixed when the
// table is created.
type PartitionSchema struct {
	HashComponents []HashBucketComponent `json:"hash_components,omitempty" yaml:"hash"`
	Range          *RangeComponent       `json:"range,omitempty" yaml:"range,omitempty"`
}

// NumHashBuckets returns the product of all hash bucket counts (1 with no
// hash components).
func (p PartitionSchema) NumHashBuckets() int64 {
	n := int64(1)
	for _, hc := range p.HashComponents {
		n *= int64(hc.NumBuckets)
	}
	return n
}

// Partition is a half-open range [Lower, Upper) of the partition key space.
// A nil Lower is unbounded below and a nil Upper is unbounded above.
type Partition struct {
	// Index is the position of the partition in partition key order
	Index int `json:"index"`

	// HashBuckets holds the bucket index for each hash component
	HashBuckets []int32 `json:"hash_buckets,omitempty"`

	// RangeLower and RangeUpper bound the range key within the hash buckets
	RangeLower []byte `json:"range_lower,omitempty"`
	RangeUpper []byte `json:"range_upper,omitempty"`

	// Lower and Upper bound the full partition key
	Lower []byte `json:"lower,omitempty"`
	Upper []byte `json:"upper,omitempty"`
}

// Contains reports whether the partition key falls inside the partition.
func (p Partition) Contains(key []byte) bool {
	if len(p.Lower) > 0 && bytes.Compare(key, p.Lower) < 0 {
		return false
	}
	if len(p.Upper) > 0 && bytes.Compare(key, p.Upper) >= 0 {
		return false
	}
	return true
}

// Equal reports whether two partitions cover the same key range.
func (p Partition) Equal(other Partition) bool {
	return bytes.Equal(p.Lower, other.Lower) && bytes.Equal(p.Upper, other.Upper)
}
