package schema

import (
	"fmt"
	"sync"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/partition"
	"github.com/arkilian/tablets/pkg/types"
)

// State is the lifecycle state of a table.
type State int

const (
	StateActive State = iota + 1
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Table holds the current schema version of a table together with its
// partition map. The partition map is set once and shared by every schema
// version; alterations replace only the schema pointer.
type Table struct {
	mu     sync.RWMutex
	schema *types.TableSchema
	pmap   *partition.Map
	state  State
}

// NewTable returns an active table.
func NewTable(schema *types.TableSchema, pmap *partition.Map) (*Table, error) {
	if schema == nil || pmap == nil {
		return nil, fmt.Errorf("schema: table requires a schema and a partition map")
	}
	return &Table{schema: schema, pmap: pmap, state: StateActive}, nil
}

// Name returns the current table name.
func (t *Table) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema.Name
}

// Schema returns the current schema version. The returned schema is
// immutable; rows built from it stay valid after later alterations.
func (t *Table) Schema() *types.TableSchema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema
}

// PartitionMap returns the partition map of the table.
func (t *Table) PartitionMap() *partition.Map {
	return t.pmap
}

// State returns the lifecycle state.
func (t *Table) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// NewRow returns an empty row bound to the current schema.
func (t *Table) NewRow() *types.Row {
	return types.NewRow(t.Schema())
}

// PartitionOf returns the partition owning row.
func (t *Table) PartitionOf(row *types.Row) (types.Partition, error) {
	return t.pmap.PartitionOf(row)
}

// Plan validates ops against the current schema without applying them.
func (t *Table) Plan(ops ...Op) (*types.TableSchema, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != StateActive {
		return nil, tabletserrors.NewAlterationError(fmt.Sprintf("table %q is dropped", t.schema.Name))
	}
	return applyAll(t.schema, ops)
}

// Alter applies ops atomically and returns the new schema version.
func (t *Table) Alter(ops ...Op) (*types.TableSchema, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return nil, tabletserrors.NewAlterationError(fmt.Sprintf("table %q is dropped", t.schema.Name))
	}
	next, err := applyAll(t.schema, ops)
	if err != nil {
		return nil, err
	}
	t.schema = next
	return next, nil
}

// Drop moves the table to the terminal dropped state.
func (t *Table) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateDropped {
		return tabletserrors.NewAlterationError(fmt.Sprintf("table %q is already dropped", t.schema.Name))
	}
	t.state = StateDropped
	return nil
}
