// Package types provides the core data model of the tablet partitioning
// subsystem: column types, table schemas, rows, and partition schemas.
package types

import (
	"fmt"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
)

// Row is a possibly partial row bound to a table schema. Values are stored
// positionally; setters resolve column names against the bound schema, so a
// Row built after a column rename uses the new name.
type Row struct {
	schema *TableSchema
	values []interface{}
	isSet  []bool
}

// NewRow creates an empty row for the given schema.
func NewRow(schema *TableSchema) *Row {
	return &Row{
		schema: schema,
		values: make([]interface{}, len(schema.Columns)),
		isSet:  make([]bool, len(schema.Columns)),
	}
}

// NewRowFromMap creates a row and sets every entry of values on it.
// Values are coerced to the column types, so YAML/JSON decoded input works.
func NewRowFromMap(schema *TableSchema, values map[string]interface{}) (*Row, error) {
	row := NewRow(schema)
	for name, v := range values {
		idx := schema.ColumnIndex(name)
		if idx < 0 {
			return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
				"unknown column %q", name)
		}
		if v == nil {
			if err := row.SetNull(name); err != nil {
				return nil, err
			}
			continue
		}
		coerced, err := CoerceValue(schema.Columns[idx].Type, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		if err := row.Set(name, coerced); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Schema returns the schema the row is bound to.
func (r *Row) Schema() *TableSchema {
	return r.schema
}

// Set assigns a value to the named column. The Go type of v must match the
// column type exactly (see CheckValue).
func (r *Row) Set(name string, v interface{}) error {
	idx := r.schema.ColumnIndex(name)
	if idx < 0 {
		return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
			"unknown column %q", name)
	}
	if v == nil {
		return r.SetNull(name)
	}
	canonical, err := CheckValue(r.schema.Columns[idx].Type, v)
	if err != nil {
		return fmt.Errorf("column %q: %w", name, err)
	}
	r.values[idx] = canonical
	r.isSet[idx] = true
	return nil
}

// SetNull marks the named column as explicitly NULL. Key columns and
// non-nullable columns reject NULL.
func (r *Row) SetNull(name string) error {
	idx := r.schema.ColumnIndex(name)
	if idx < 0 {
		return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
			"unknown column %q", name)
	}
	if !r.schema.Columns[idx].Nullable {
		return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeNullKeyValue,
			"column %q is not nullable", name)
	}
	r.values[idx] = nil
	r.isSet[idx] = true
	return nil
}

// Unset clears any value assigned to the named column.
func (r *Row) Unset(name string) {
	if idx := r.schema.ColumnIndex(name); idx >= 0 {
		r.values[idx] = nil
		r.isSet[idx] = false
	}
}

// IsSet reports whether the named column has been assigned (possibly NULL).
func (r *Row) IsSet(name string) bool {
	idx := r.schema.ColumnIndex(name)
	return idx >= 0 && r.isSet[idx]
}

// Get returns the value of the named column and whether it was set.
func (r *Row) Get(name string) (interface{}, bool) {
	idx := r.schema.ColumnIndex(name)
	if idx < 0 || !r.isSet[idx] {
		return nil, false
	}
	return r.values[idx], true
}

// GetByID returns the value of the column with the given ID and whether it was set.
func (r *Row) GetByID(id ColumnID) (interface{}, bool) {
	idx := r.schema.IndexOfID(id)
	if idx < 0 || !r.isSet[idx] {
		return nil, false
	}
	return r.values[idx], true
}

// IsSetByID reports whether the column with the given ID has been assigned.
func (r *Row) IsSetByID(id ColumnID) bool {
	idx := r.schema.IndexOfID(id)
	return idx >= 0 && r.isSet[idx]
}

// SetColumns returns the names of all assigned columns in schema order.
func (r *Row) SetColumns() []string {
	var names []string
	for i, set := range r.isSet {
		if set {
			names = append(names, r.schema.Columns[i].Name)
		}
	}
	return names
}

// String renders the assigned columns for diagnostics.
func (r *Row) String() string {
	out := "("
	first := true
	for i, set := range r.isSet {
		if !set {
			continue
		}
		if !first {
			out += ", "
		}
		first = false
		col := r.schema.Columns[i]
		switch v := r.values[i].(type) {
		case nil:
			out += fmt.Sprintf("%s %s=NULL", col.Type, col.Name)
		case string:
			out += fmt.Sprintf("%s %s=%q", col.Type, col.Name, v)
		case []byte:
			out += fmt.Sprintf("%s %s=%q", col.Type, col.Name, v)
		default:
			out += fmt.Sprintf("%s %s=%v", col.Type, col.Name, v)
		}
	}
	return out + ")"
}
