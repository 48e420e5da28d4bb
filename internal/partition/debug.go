package partition

import (
	"fmt"
	"strings"

	"github.com/arkilian/tablets/internal/keyenc"
	"github.com/arkilian/tablets/pkg/types"
)

// DebugString renders a partition using the column names of table, e.g.
//
//	HASH (host, metric) BUCKET 3, RANGE (last_name, first_name) [("b", ""), ("c", ""))
func (m *Map) DebugString(p types.Partition, table *types.TableSchema) string {
	var parts []string
	for i, hc := range m.desc.HashComponents {
		bucket := int32(0)
		if i < len(p.HashBuckets) {
			bucket = p.HashBuckets[i]
		}
		parts = append(parts, fmt.Sprintf("HASH (%s) BUCKET %d", columnNames(table, hc.ColumnIDs), bucket))
	}
	if len(m.desc.RangeColumnIDs) > 0 {
		parts = append(parts, fmt.Sprintf("RANGE (%s) [%s, %s)",
			columnNames(table, m.desc.RangeColumnIDs),
			m.formatRangeKey(p.RangeLower, "<start>"),
			m.formatRangeKey(p.RangeUpper, "<end>")))
	}
	if len(parts) == 0 {
		return "RANGE [<start>, <end>)"
	}
	return strings.Join(parts, ", ")
}

func (m *Map) formatRangeKey(key []byte, unbounded string) string {
	if len(key) == 0 {
		return unbounded
	}
	values, err := keyenc.DecodeKey(m.rangeTypes, key)
	if err != nil {
		return fmt.Sprintf("<%x>", key)
	}
	return keyenc.FormatValues(values)
}

func columnNames(table *types.TableSchema, ids []types.ColumnID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		if col, ok := table.ColumnByID(id); ok {
			names[i] = col.Name
		} else {
			names[i] = fmt.Sprintf("<column %d>", id)
		}
	}
	return strings.Join(names, ", ")
}
