package keyenc

import (
	"fmt"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

// EncodeKey concatenates the encodings of values, treating the final value
// as the last column of the key.
func EncodeKey(dataTypes []types.DataType, values []interface{}) ([]byte, error) {
	if len(dataTypes) != len(values) {
		return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
			"key has %d columns but %d values", len(dataTypes), len(values))
	}
	var key []byte
	for i, dt := range dataTypes {
		var err error
		key, err = AppendValue(key, dt, values[i], i == len(dataTypes)-1)
		if err != nil {
			return nil, fmt.Errorf("key column %d: %w", i, err)
		}
	}
	return key, nil
}

// EncodeRowKey encodes the given columns of row in order. Every column must
// be set to a non-NULL value.
func EncodeRowKey(row *types.Row, columns []types.ColumnID) ([]byte, error) {
	return AppendRowKey(nil, row, columns)
}

// AppendRowKey appends the composite encoding of the given columns of row to dst.
func AppendRowKey(dst []byte, row *types.Row, columns []types.ColumnID) ([]byte, error) {
	schema := row.Schema()
	for i, id := range columns {
		col, ok := schema.ColumnByID(id)
		if !ok {
			return nil, tabletserrors.NewInternalError(fmt.Sprintf("column id %d not in schema", id), nil)
		}
		v, set := row.GetByID(id)
		if !set || v == nil {
			return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeNullKeyValue,
				"key column %q has no value", col.Name)
		}
		var err error
		dst, err = AppendValue(dst, col.Type, v, i == len(columns)-1)
		if err != nil {
			return nil, fmt.Errorf("key column %q: %w", col.Name, err)
		}
	}
	return dst, nil
}

// KeyBuilder builds an encoded key column by column, in key order.
// A KeyBuilder is not safe for concurrent use.
type KeyBuilder struct {
	dataTypes []types.DataType
	values    []interface{}
}

// NewKeyBuilder returns a builder for keys over the given column types.
func NewKeyBuilder(dataTypes []types.DataType) *KeyBuilder {
	return &KeyBuilder{
		dataTypes: dataTypes,
		values:    make([]interface{}, 0, len(dataTypes)),
	}
}

// NewPrimaryKeyBuilder returns a builder for the full primary key of schema.
func NewPrimaryKeyBuilder(schema *types.TableSchema) *KeyBuilder {
	dataTypes := make([]types.DataType, schema.KeyColumns)
	for i := 0; i < schema.KeyColumns; i++ {
		dataTypes[i] = schema.Columns[i].Type
	}
	return NewKeyBuilder(dataTypes)
}

// Reset clears all added columns.
func (b *KeyBuilder) Reset() {
	b.values = b.values[:0]
}

// AddColumn appends the value of the next key column.
func (b *KeyBuilder) AddColumn(v interface{}) error {
	if len(b.values) >= len(b.dataTypes) {
		return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
			"key already has all %d columns", len(b.dataTypes))
	}
	canonical, err := types.CheckValue(b.dataTypes[len(b.values)], v)
	if err != nil {
		return err
	}
	b.values = append(b.values, canonical)
	return nil
}

// Build encodes the columns added so far. The last added column is encoded
// as the last column of the key, so a partial key is a valid key prefix
// bound.
func (b *KeyBuilder) Build() ([]byte, error) {
	if len(b.values) == 0 {
		return nil, tabletserrors.NewEncodingError(tabletserrors.CodeNullKeyValue, "no key columns added")
	}
	return EncodeKey(b.dataTypes[:len(b.values)], b.values)
}
