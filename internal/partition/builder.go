// Package partition maps rows to tablets. It validates partition schemas,
// materializes the fixed set of partitions a table is created with, and
// resolves the owning partition of any row.
package partition

import (
	"bytes"
	"fmt"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/keyenc"
	"github.com/arkilian/tablets/pkg/types"
)

// Options controls partition materialization.
type Options struct {
	// MaxPartitions caps the number of partitions a table may be created
	// with; 0 disables the limit
	MaxPartitions int
}

// DefaultOptions returns the default materialization options.
func DefaultOptions() Options {
	return Options{MaxPartitions: 1000}
}

// ComputePartitions validates the schemas, encodes the split rows, and
// returns the immutable partition map of a new table. Split rows must set
// exactly the range columns and be strictly increasing.
//
// Either the whole map is returned or an error; nothing is partially built.
func ComputePartitions(table *types.TableSchema, ps types.PartitionSchema, splitRows []*types.Row, opts Options) (*Map, error) {
	desc, err := resolve(table, ps)
	if err != nil {
		return nil, err
	}

	if len(splitRows) > 0 && ps.Range == nil {
		return nil, tabletserrors.NewValidationError(tabletserrors.CodeInvalidSplitRow,
			"split rows require a range partition component")
	}

	for i, row := range splitRows {
		key, err := encodeSplitRow(table, desc.RangeColumnIDs, row)
		if err != nil {
			return nil, fmt.Errorf("split row %d: %w", i, err)
		}
		desc.SplitKeys = append(desc.SplitKeys, key)
	}

	if opts.MaxPartitions > 0 && desc.NumPartitions() > opts.MaxPartitions {
		return nil, tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeTooManyPartitions,
			"%d partitions requested, at most %d allowed at creation", desc.NumPartitions(), opts.MaxPartitions)
	}

	return newMap(table, desc)
}

// FromDescriptor rebuilds the partition map of an existing table from its
// persisted descriptor.
func FromDescriptor(table *types.TableSchema, desc Descriptor) (*Map, error) {
	if err := checkHashVersion(desc.HashVersion); err != nil {
		return nil, tabletserrors.Wrap(tabletserrors.ErrCategoryValidation, tabletserrors.CodeUnknownHashVersion,
			"cannot load partition descriptor", err)
	}
	return newMap(table, desc.Clone())
}

// encodeSplitRow encodes the range columns of a split row.
func encodeSplitRow(table *types.TableSchema, rangeIDs []types.ColumnID, row *types.Row) ([]byte, error) {
	if row == nil {
		return nil, tabletserrors.NewValidationError(tabletserrors.CodeIncompleteSplitRow, "split row is nil")
	}

	inRange := make(map[types.ColumnID]bool, len(rangeIDs))
	for _, id := range rangeIDs {
		inRange[id] = true
	}
	for _, name := range row.SetColumns() {
		col, ok := table.ColumnByName(name)
		if !ok || !inRange[col.ID] {
			return nil, tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeInvalidSplitRow,
				"column %q is not a range partition column", name)
		}
	}
	for _, id := range rangeIDs {
		if v, set := row.GetByID(id); !set || v == nil {
			col, _ := table.ColumnByID(id)
			return nil, tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeIncompleteSplitRow,
				"range column %q has no value", col.Name)
		}
	}

	key, err := keyenc.EncodeRowKey(row, rangeIDs)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, tabletserrors.NewValidationError(tabletserrors.CodeInvalidSplitRow,
			"split row equals the minimum range key")
	}
	return key, nil
}

// checkSplitKeys verifies that split keys are strictly increasing.
func checkSplitKeys(keys [][]byte) error {
	for i := 1; i < len(keys); i++ {
		switch c := bytes.Compare(keys[i-1], keys[i]); {
		case c == 0:
			return tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeDuplicateSplitRow,
				"split row %d duplicates split row %d", i, i-1)
		case c > 0:
			return tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeSplitRowOutOfKeyOrder,
				"split row %d sorts before split row %d", i, i-1)
		}
	}
	return nil
}

// buildPartitions lays out one run of (splits+1) range partitions for every
// combination of hash buckets. Combinations are enumerated with the first
// hash component most significant, which is partition key order.
func buildPartitions(desc Descriptor) []types.Partition {
	combos := desc.NumHashCombinations()
	ranges := len(desc.SplitKeys) + 1

	rangeLowers := make([][]byte, ranges)
	rangeUppers := make([][]byte, ranges)
	for i, key := range desc.SplitKeys {
		rangeUppers[i] = key
		rangeLowers[i+1] = key
	}

	partitions := make([]types.Partition, 0, combos*ranges)
	buckets := make([]int32, len(desc.HashComponents))
	for combo := 0; combo < combos; combo++ {
		prefix := encodeBuckets(buckets)
		var nextPrefix []byte
		if combo+1 < combos {
			nextPrefix = encodeBuckets(nextCombination(buckets, desc.HashComponents))
		}

		for r := 0; r < ranges; r++ {
			p := types.Partition{
				Index:       len(partitions),
				HashBuckets: append([]int32(nil), buckets...),
				RangeLower:  rangeLowers[r],
				RangeUpper:  rangeUppers[r],
				Lower:       concat(prefix, rangeLowers[r]),
			}
			if rangeUppers[r] == nil {
				p.Upper = nextPrefix
			} else {
				p.Upper = concat(prefix, rangeUppers[r])
			}
			partitions = append(partitions, p)
		}

		buckets = nextCombination(buckets, desc.HashComponents)
	}

	partitions[0].Lower = nil
	return partitions
}

// nextCombination returns the bucket combination following buckets, as an
// odometer whose last component changes fastest.
func nextCombination(buckets []int32, components []HashDescriptor) []int32 {
	next := append([]int32(nil), buckets...)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] < components[i].NumBuckets {
			break
		}
		next[i] = 0
	}
	return next
}

func encodeBuckets(buckets []int32) []byte {
	out := make([]byte, 0, len(buckets)*bucketPrefixSize)
	for _, b := range buckets {
		out = appendBucket(out, b)
	}
	return out
}

func concat(a, b []byte) []byte {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
