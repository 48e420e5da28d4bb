package config

import (
	"fmt"

	"github.com/arkilian/tablets/pkg/types"
)

// TableDefinition is the file form of a create-table request:
//
//	name: metrics
//	columns:
//	  - {name: host, type: string}
//	  - {name: time, type: timestamp}
//	  - {name: value, type: double, nullable: true}
//	primary_key: [host, time]
//	partitioning:
//	  hash:
//	    - {columns: [host], num_buckets: 4}
//	  range:
//	    columns: [time]
//	splits:
//	  - {time: "2024-01-01T00:00:00Z"}
type TableDefinition struct {
	Name         string                   `json:"name" yaml:"name"`
	Columns      []types.ColumnSchema     `json:"columns" yaml:"columns"`
	PrimaryKey   []string                 `json:"primary_key" yaml:"primary_key"`
	Partitioning types.PartitionSchema    `json:"partitioning" yaml:"partitioning"`
	Splits       []map[string]interface{} `json:"splits,omitempty" yaml:"splits,omitempty"`
}

// LoadTableDefinition reads a table definition from a YAML or JSON file.
func LoadTableDefinition(path string) (*TableDefinition, error) {
	def := &TableDefinition{}
	if err := decodeFile(path, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Build converts the definition into a table schema, its partition schema
// and the split rows. The primary key columns must be the leading columns,
// in key order. Loosely typed defaults and split values are coerced to
// their column types.
func (d *TableDefinition) Build() (*types.TableSchema, types.PartitionSchema, []*types.Row, error) {
	if len(d.PrimaryKey) == 0 {
		return nil, types.PartitionSchema{}, nil, fmt.Errorf("table %q: primary_key is required", d.Name)
	}
	if len(d.PrimaryKey) > len(d.Columns) {
		return nil, types.PartitionSchema{}, nil, fmt.Errorf("table %q: primary_key names %d columns but only %d are defined",
			d.Name, len(d.PrimaryKey), len(d.Columns))
	}
	for i, name := range d.PrimaryKey {
		if d.Columns[i].Name != name {
			return nil, types.PartitionSchema{}, nil, fmt.Errorf("table %q: primary key column %q must be column %d, found %q",
				d.Name, name, i, d.Columns[i].Name)
		}
	}

	columns := make([]types.ColumnSchema, len(d.Columns))
	for i, col := range d.Columns {
		if col.Default != nil {
			def, err := types.CoerceValue(col.Type, col.Default)
			if err != nil {
				return nil, types.PartitionSchema{}, nil, fmt.Errorf("column %q default: %w", col.Name, err)
			}
			col.Default = def
		}
		columns[i] = col
	}

	table := types.NewTableSchema(d.Name, columns, len(d.PrimaryKey))

	splits := make([]*types.Row, 0, len(d.Splits))
	for i, values := range d.Splits {
		row, err := types.NewRowFromMap(table, values)
		if err != nil {
			return nil, types.PartitionSchema{}, nil, fmt.Errorf("split %d: %w", i, err)
		}
		splits = append(splits, row)
	}

	return table, d.Partitioning, splits, nil
}
