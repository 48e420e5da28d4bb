// Package schema validates and applies schema alterations. Primary keys and
// partitioning are fixed when a table is created; alterations may only
// rename things, add nullable columns and drop non-key columns.
package schema

import (
	"fmt"
	"strings"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

// OpKind identifies an alteration operation.
type OpKind int

const (
	OpRenameTable OpKind = iota + 1
	OpRenameColumn
	OpAddColumn
	OpDropColumn
	OpAlterColumnType
	OpMoveColumn
	OpReorderPrimaryKey
	OpAddSplitRow
	OpAddHashComponent
	OpResizeHashComponent
)

var opKindNames = map[OpKind]string{
	OpRenameTable:         "rename_table",
	OpRenameColumn:        "rename_column",
	OpAddColumn:           "add_column",
	OpDropColumn:          "drop_column",
	OpAlterColumnType:     "alter_column_type",
	OpMoveColumn:          "move_column",
	OpReorderPrimaryKey:   "reorder_primary_key",
	OpAddSplitRow:         "add_split_row",
	OpAddHashComponent:    "add_hash_component",
	OpResizeHashComponent: "resize_hash_component",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is a single alteration request. Only the fields relevant to Kind are read.
type Op struct {
	Kind OpKind

	// Column names the column the operation targets
	Column string

	// NewName is the new table or column name for renames
	NewName string

	// NewColumn is the definition of an added column; its ID is assigned
	NewColumn types.ColumnSchema

	// NewType is the requested type of an altered column
	NewType types.DataType

	// Position is the requested index of a moved column
	Position int

	// KeyOrder is the requested primary key column order
	KeyOrder []string
}

func RenameTable(newName string) Op {
	return Op{Kind: OpRenameTable, NewName: newName}
}

func RenameColumn(column, newName string) Op {
	return Op{Kind: OpRenameColumn, Column: column, NewName: newName}
}

func AddColumn(col types.ColumnSchema) Op {
	return Op{Kind: OpAddColumn, Column: col.Name, NewColumn: col}
}

func DropColumn(column string) Op {
	return Op{Kind: OpDropColumn, Column: column}
}

func AlterColumnType(column string, t types.DataType) Op {
	return Op{Kind: OpAlterColumnType, Column: column, NewType: t}
}

func MoveColumn(column string, position int) Op {
	return Op{Kind: OpMoveColumn, Column: column, Position: position}
}

func ReorderPrimaryKey(columns ...string) Op {
	return Op{Kind: OpReorderPrimaryKey, KeyOrder: columns}
}

// String renders the operation for logs and error messages.
func (op Op) String() string {
	switch op.Kind {
	case OpRenameTable:
		return fmt.Sprintf("%s to %q", op.Kind, op.NewName)
	case OpRenameColumn:
		return fmt.Sprintf("%s %q to %q", op.Kind, op.Column, op.NewName)
	case OpAddColumn:
		return fmt.Sprintf("%s %q %s", op.Kind, op.NewColumn.Name, op.NewColumn.Type)
	case OpAlterColumnType:
		return fmt.Sprintf("%s %q to %s", op.Kind, op.Column, op.NewType)
	case OpMoveColumn:
		return fmt.Sprintf("%s %q to %d", op.Kind, op.Column, op.Position)
	case OpReorderPrimaryKey:
		return fmt.Sprintf("%s (%s)", op.Kind, strings.Join(op.KeyOrder, ", "))
	case OpDropColumn:
		return fmt.Sprintf("%s %q", op.Kind, op.Column)
	default:
		return op.Kind.String()
	}
}

// ValidateAlteration checks op against the current schema and returns the
// next schema version. current is never modified. Every rejected operation
// fails with IllegalAlteration.
func ValidateAlteration(current *types.TableSchema, op Op) (*types.TableSchema, error) {
	next := current.Clone()
	changed, err := apply(next, op)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	next.Version = current.Version + 1
	return next, nil
}

// apply mutates s in place and reports whether anything changed.
func apply(s *types.TableSchema, op Op) (bool, error) {
	switch op.Kind {
	case OpRenameTable:
		if op.NewName == "" {
			return false, illegal(op, "table name cannot be empty")
		}
		if op.NewName == s.Name {
			return false, nil
		}
		s.Name = op.NewName
		return true, nil

	case OpRenameColumn:
		idx, err := lookup(s, op)
		if err != nil {
			return false, err
		}
		if op.NewName == "" {
			return false, illegal(op, "column name cannot be empty")
		}
		if op.NewName == op.Column {
			return false, nil
		}
		if s.ColumnIndex(op.NewName) >= 0 {
			return false, illegal(op, "column %q already exists", op.NewName)
		}
		s.Columns[idx].Name = op.NewName
		return true, nil

	case OpAddColumn:
		col := op.NewColumn
		if col.Name == "" {
			return false, illegal(op, "column name cannot be empty")
		}
		if s.ColumnIndex(col.Name) >= 0 {
			return false, illegal(op, "column %q already exists", col.Name)
		}
		if !col.Type.IsValid() {
			return false, illegal(op, "invalid type %d", int(col.Type))
		}
		if !col.Nullable {
			return false, illegal(op, "added columns must be nullable")
		}
		if col.Default != nil {
			def, err := types.CheckValue(col.Type, col.Default)
			if err != nil {
				return false, tabletserrors.Wrap(tabletserrors.ErrCategoryAlteration, tabletserrors.CodeIllegalAlteration,
					fmt.Sprintf("%s: invalid default", op), err)
			}
			col.Default = def
		}
		col.ID = s.NextColumnID
		s.NextColumnID++
		s.Columns = append(s.Columns, col)
		return true, nil

	case OpDropColumn:
		idx, err := lookup(s, op)
		if err != nil {
			return false, err
		}
		if s.IsKeyColumn(idx) {
			return false, illegal(op, "primary key columns cannot be dropped")
		}
		s.Columns = append(s.Columns[:idx], s.Columns[idx+1:]...)
		return true, nil

	case OpAlterColumnType:
		idx, err := lookup(s, op)
		if err != nil {
			return false, err
		}
		if s.Columns[idx].Type == op.NewType {
			return false, nil
		}
		return false, illegal(op, "column types cannot be changed")

	case OpMoveColumn:
		if _, err := lookup(s, op); err != nil {
			return false, err
		}
		return false, illegal(op, "column positions cannot be changed")

	case OpReorderPrimaryKey:
		return false, illegal(op, "primary key order is fixed at creation")

	case OpAddSplitRow, OpAddHashComponent, OpResizeHashComponent:
		return false, illegal(op, "partitioning is fixed at creation")

	default:
		return false, illegal(op, "unknown alteration")
	}
}

func lookup(s *types.TableSchema, op Op) (int, error) {
	idx := s.ColumnIndex(op.Column)
	if idx < 0 {
		return -1, illegal(op, "column %q does not exist", op.Column)
	}
	return idx, nil
}

func illegal(op Op, format string, args ...interface{}) error {
	return tabletserrors.NewAlterationError(op.String() + ": " + fmt.Sprintf(format, args...))
}

// Alterer collects alteration operations and applies them as one request:
// either every operation is accepted and the schema version advances once,
// or none is.
type Alterer struct {
	ops []Op
}

// NewAlterer returns an empty alterer.
func NewAlterer() *Alterer {
	return &Alterer{}
}

func (a *Alterer) RenameTable(newName string) *Alterer {
	return a.Add(RenameTable(newName))
}

func (a *Alterer) RenameColumn(column, newName string) *Alterer {
	return a.Add(RenameColumn(column, newName))
}

func (a *Alterer) AddColumn(col types.ColumnSchema) *Alterer {
	return a.Add(AddColumn(col))
}

func (a *Alterer) DropColumn(column string) *Alterer {
	return a.Add(DropColumn(column))
}

// Add appends an arbitrary operation.
func (a *Alterer) Add(op Op) *Alterer {
	a.ops = append(a.ops, op)
	return a
}

// Ops returns the collected operations.
func (a *Alterer) Ops() []Op {
	return a.ops
}

// Apply validates the operations in order against current and returns the
// resulting schema. Later operations see the effect of earlier ones.
func (a *Alterer) Apply(current *types.TableSchema) (*types.TableSchema, error) {
	return applyAll(current, a.ops)
}

func applyAll(current *types.TableSchema, ops []Op) (*types.TableSchema, error) {
	if len(ops) == 0 {
		return nil, tabletserrors.NewAlterationError("no alterations requested")
	}
	next := current.Clone()
	changed := false
	for i, op := range ops {
		c, err := apply(next, op)
		if err != nil {
			return nil, fmt.Errorf("alteration %d: %w", i, err)
		}
		changed = changed || c
	}
	if !changed {
		return current, nil
	}
	next.Version = current.Version + 1
	return next, nil
}
