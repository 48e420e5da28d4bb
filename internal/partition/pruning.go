package partition

import (
	"bytes"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/keyenc"
	"github.com/arkilian/tablets/pkg/types"
)

// PartitionsForScan returns the partitions a scan over the range columns
// must visit. lower is an inclusive bound and upper an exclusive bound; each
// may be nil for an unbounded side and may set only a leading prefix of the
// range columns. Hash buckets are not pruned, so every bucket combination
// contributes the range partitions overlapping the bounds.
func (m *Map) PartitionsForScan(lower, upper *types.Row) ([]types.Partition, error) {
	lo, err := m.encodeBound(lower)
	if err != nil {
		return nil, err
	}
	hi, err := m.encodeBound(upper)
	if err != nil {
		return nil, err
	}

	var out []types.Partition
	for _, p := range m.partitions {
		if len(hi) > 0 && len(p.RangeLower) > 0 && bytes.Compare(p.RangeLower, hi) >= 0 {
			continue
		}
		if len(lo) > 0 && len(p.RangeUpper) > 0 && bytes.Compare(p.RangeUpper, lo) <= 0 {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// encodeBound encodes the set prefix of range columns of a scan bound.
func (m *Map) encodeBound(row *types.Row) ([]byte, error) {
	if row == nil {
		return nil, nil
	}
	ids := m.desc.RangeColumnIDs
	n := 0
	for n < len(ids) && row.IsSetByID(ids[n]) {
		n++
	}
	for _, id := range ids[n:] {
		if row.IsSetByID(id) {
			return nil, tabletserrors.NewValidationError(tabletserrors.CodeInvalidRangeComponent,
				"scan bound must set a leading prefix of the range columns")
		}
	}
	// A proper prefix keeps its terminators so that it bounds every longer
	// key sharing those leading values.
	var key []byte
	for i, id := range ids[:n] {
		v, _ := row.GetByID(id)
		var err error
		key, err = keyenc.AppendValue(key, m.rangeTypes[i], v, i == len(ids)-1)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}
