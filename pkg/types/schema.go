package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ColumnID is the stable identity of a column. It is assigned when the
// column is created and survives renames, so partition descriptors refer to
// columns by ID rather than by name.
type ColumnID int32

// ColumnSchema defines a single column in a table.
type ColumnSchema struct {
	// ID is assigned by NewTableSchema or by an add-column alteration
	ID ColumnID `json:"id" yaml:"-"`

	// Name is unique within a table
	Name string `json:"name" yaml:"name"`

	// Type is the primitive column type
	Type DataType `json:"type" yaml:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable" yaml:"nullable"`

	// Default is the value written for rows that do not set the column
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

type columnSchemaJSON struct {
	ID       ColumnID        `json:"id"`
	Name     string          `json:"name"`
	Type     DataType        `json:"type"`
	Nullable bool            `json:"nullable"`
	Default  json.RawMessage `json:"default,omitempty"`
}

// MarshalJSON writes the default value so that it survives a round trip with
// its Go type intact. Binary defaults are base64 encoded.
func (c ColumnSchema) MarshalJSON() ([]byte, error) {
	out := columnSchemaJSON{ID: c.ID, Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	if c.Default != nil {
		def := c.Default
		if b, ok := def.([]byte); ok {
			def = base64.StdEncoding.EncodeToString(b)
		}
		raw, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("column %q: failed to marshal default: %w", c.Name, err)
		}
		out.Default = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the default value in the canonical Go type of the column.
func (c *ColumnSchema) UnmarshalJSON(data []byte) error {
	var in columnSchemaJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = ColumnSchema{ID: in.ID, Name: in.Name, Type: in.Type, Nullable: in.Nullable}
	if len(in.Default) == 0 || string(in.Default) == "null" {
		return nil
	}

	if in.Type == Binary {
		var s string
		if err := json.Unmarshal(in.Default, &s); err != nil {
			return fmt.Errorf("column %q: invalid binary default: %w", in.Name, err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("column %q: invalid binary default: %w", in.Name, err)
		}
		c.Default = b
		return nil
	}

	var raw interface{}
	switch in.Type {
	case Int8, Int16, Int32, Int64, Timestamp:
		var n json.Number
		if err := json.Unmarshal(in.Default, &n); err != nil {
			return fmt.Errorf("column %q: invalid default: %w", in.Name, err)
		}
		raw = string(n)
	default:
		if err := json.Unmarshal(in.Default, &raw); err != nil {
			return fmt.Errorf("column %q: invalid default: %w", in.Name, err)
		}
	}
	def, err := CoerceValue(in.Type, raw)
	if err != nil {
		return fmt.Errorf("column %q: %w", in.Name, err)
	}
	c.Default = def
	return nil
}

// TableSchema is an ordered sequence of columns whose first KeyColumns
// columns form the primary key. A TableSchema is never mutated once
// published; alterations produce a new version.
type TableSchema struct {
	// Name is the table name
	Name string `json:"name"`

	// Version increments with every accepted alteration
	Version int `json:"version"`

	// Columns in table order, primary key columns first
	Columns []ColumnSchema `json:"columns"`

	// KeyColumns is the length of the primary key prefix
	KeyColumns int `json:"key_columns"`

	// NextColumnID is the ID the next added column receives
	NextColumnID ColumnID `json:"next_column_id"`
}

// NewTableSchema builds version 1 of a table schema, assigning column IDs in
// declaration order. It does not validate; see partition.ValidateSchema.
func NewTableSchema(name string, columns []ColumnSchema, keyColumns int) *TableSchema {
	cols := make([]ColumnSchema, len(columns))
	copy(cols, columns)
	for i := range cols {
		cols[i].ID = ColumnID(i)
	}
	return &TableSchema{
		Name:         name,
		Version:      1,
		Columns:      cols,
		KeyColumns:   keyColumns,
		NextColumnID: ColumnID(len(cols)),
	}
}

// Clone returns a deep copy of the schema.
func (s *TableSchema) Clone() *TableSchema {
	cp := *s
	cp.Columns = make([]ColumnSchema, len(s.Columns))
	copy(cp.Columns, s.Columns)
	return &cp
}

// ColumnIndex returns the position of the named column, or -1.
func (s *TableSchema) ColumnIndex(name string) int {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// IndexOfID returns the position of the column with the given ID, or -1.
func (s *TableSchema) IndexOfID(id ColumnID) int {
	for i := range s.Columns {
		if s.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

// ColumnByName returns the named column.
func (s *TableSchema) ColumnByName(name string) (ColumnSchema, bool) {
	if idx := s.ColumnIndex(name); idx >= 0 {
		return s.Columns[idx], true
	}
	return ColumnSchema{}, false
}

// ColumnByID returns the column with the given ID.
func (s *TableSchema) ColumnByID(id ColumnID) (ColumnSchema, bool) {
	if idx := s.IndexOfID(id); idx >= 0 {
		return s.Columns[idx], true
	}
	return ColumnSchema{}, false
}

// IsKeyColumn reports whether the column at idx belongs to the primary key.
func (s *TableSchema) IsKeyColumn(idx int) bool {
	return idx >= 0 && idx < s.KeyColumns
}

// KeyColumnIDs returns the primary key column IDs in key order.
func (s *TableSchema) KeyColumnIDs() []ColumnID {
	ids := make([]ColumnID, 0, s.KeyColumns)
	for i := 0; i < s.KeyColumns && i < len(s.Columns); i++ {
		ids = append(ids, s.Columns[i].ID)
	}
	return ids
}

// KeyColumnNames returns the primary key column names in key order.
func (s *TableSchema) KeyColumnNames() []string {
	names := make([]string, 0, s.KeyColumns)
	for i := 0; i < s.KeyColumns && i < len(s.Columns); i++ {
		names = append(names, s.Columns[i].Name)
	}
	return names
}
