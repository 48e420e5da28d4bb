package partition

import (
	"fmt"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

// ValidateSchema checks a table schema and its partition schema before any
// partitions are materialized.
func ValidateSchema(table *types.TableSchema, ps types.PartitionSchema) error {
	_, err := resolve(table, ps)
	return err
}

// resolve validates the schemas and translates column names into stable
// column IDs.
func resolve(table *types.TableSchema, ps types.PartitionSchema) (Descriptor, error) {
	if err := validateTableSchema(table); err != nil {
		return Descriptor{}, err
	}

	desc := Descriptor{HashVersion: CurrentHashVersion}

	hashed := make(map[string]int)
	combinations := int64(1)
	for i, hc := range ps.HashComponents {
		if hc.NumBuckets < 2 {
			return Descriptor{}, invalidHash("hash component %d: bucket count must be >= 2, got %d", i, hc.NumBuckets)
		}
		combinations *= int64(hc.NumBuckets)
		if combinations > maxHashCombinations {
			return Descriptor{}, invalidHash("more than %d hash bucket combinations", maxHashCombinations)
		}
		if len(hc.Columns) == 0 {
			return Descriptor{}, invalidHash("hash component %d: must reference at least one column", i)
		}
		ids := make([]types.ColumnID, 0, len(hc.Columns))
		for _, name := range hc.Columns {
			idx := table.ColumnIndex(name)
			if idx < 0 {
				return Descriptor{}, invalidHash("hash component %d: unknown column %q", i, name)
			}
			if !table.IsKeyColumn(idx) {
				return Descriptor{}, invalidHash("hash component %d: column %q is not a primary key column", i, name)
			}
			if owner, seen := hashed[name]; seen {
				if owner == i {
					return Descriptor{}, invalidHash("hash component %d: column %q listed twice", i, name)
				}
				return Descriptor{}, tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeOverlappingHashColumns,
					"column %q is used by hash components %d and %d", name, owner, i)
			}
			hashed[name] = i
			ids = append(ids, table.Columns[idx].ID)
		}
		desc.HashComponents = append(desc.HashComponents, HashDescriptor{
			ColumnIDs:  ids,
			NumBuckets: hc.NumBuckets,
			Seed:       hc.Seed,
		})
	}

	if ps.Range != nil {
		names := ps.Range.Columns
		if len(names) == 0 {
			names = table.KeyColumnNames()
		}
		seen := make(map[string]bool)
		for _, name := range names {
			idx := table.ColumnIndex(name)
			if idx < 0 {
				return Descriptor{}, invalidRange("unknown column %q", name)
			}
			if !table.IsKeyColumn(idx) {
				return Descriptor{}, invalidRange("column %q is not a primary key column", name)
			}
			if seen[name] {
				return Descriptor{}, invalidRange("column %q listed twice", name)
			}
			seen[name] = true
			desc.RangeColumnIDs = append(desc.RangeColumnIDs, table.Columns[idx].ID)
		}
	}

	return desc, nil
}

// validateTableSchema checks column definitions and the primary key.
func validateTableSchema(table *types.TableSchema) error {
	if table == nil {
		return invalidSchema("table schema is required")
	}
	if table.Name == "" {
		return invalidSchema("table name cannot be empty")
	}
	if len(table.Columns) == 0 {
		return invalidSchema("table %q must have at least one column", table.Name)
	}
	if table.KeyColumns < 1 || table.KeyColumns > len(table.Columns) {
		return invalidSchema("table %q: primary key must cover 1..%d columns, got %d",
			table.Name, len(table.Columns), table.KeyColumns)
	}

	names := make(map[string]bool)
	ids := make(map[types.ColumnID]bool)
	for i, col := range table.Columns {
		if col.Name == "" {
			return invalidSchema("column %d: name cannot be empty", i)
		}
		if names[col.Name] {
			return invalidSchema("duplicate column name: %s", col.Name)
		}
		names[col.Name] = true
		if ids[col.ID] {
			return invalidSchema("duplicate column id %d", col.ID)
		}
		ids[col.ID] = true
		if col.ID >= table.NextColumnID {
			return invalidSchema("column %q: id %d is not below next column id %d", col.Name, col.ID, table.NextColumnID)
		}
		if !col.Type.IsValid() {
			return invalidSchema("column %q: invalid type %d", col.Name, int(col.Type))
		}

		if table.IsKeyColumn(i) {
			if !col.Type.IsKeyEligible() {
				return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeUnsupportedKeyType,
					"primary key column %q cannot be of type %s", col.Name, col.Type)
			}
			if col.Nullable {
				return invalidSchema("primary key column %q cannot be nullable", col.Name)
			}
		}

		if col.Default != nil {
			if _, err := types.CheckValue(col.Type, col.Default); err != nil {
				return fmt.Errorf("column %q default: %w", col.Name, err)
			}
		}
	}
	return nil
}

func invalidSchema(format string, args ...interface{}) error {
	return tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeInvalidSchema, format, args...)
}

func invalidHash(format string, args ...interface{}) error {
	return tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeInvalidHashComponent, format, args...)
}

func invalidRange(format string, args ...interface{}) error {
	return tabletserrors.Newf(tabletserrors.ErrCategoryValidation, tabletserrors.CodeInvalidRangeComponent, format, args...)
}
