package partition

import (
	"fmt"
	"strings"

	"github.com/arkilian/tablets/pkg/types"
)

// Router assigns rows of the write path to partitions of a table.
type Router struct {
	pmap *Map
}

// NewRouter creates a router over the given partition map.
func NewRouter(pmap *Map) (*Router, error) {
	if pmap == nil {
		return nil, fmt.Errorf("routing: partition map is required")
	}
	return &Router{pmap: pmap}, nil
}

// RouteRow computes the partition for a single row.
func (r *Router) RouteRow(row *types.Row) (types.Partition, error) {
	p, err := r.pmap.PartitionOf(row)
	if err != nil {
		return types.Partition{}, fmt.Errorf("routing: %w", err)
	}
	return p, nil
}

// RouteRows groups rows by the index of their owning partition. Rows that
// cannot be routed are reported together as ValidationErrors; no groups are
// returned in that case.
func (r *Router) RouteRows(rows []*types.Row) (map[int][]*types.Row, error) {
	groups := make(map[int][]*types.Row)
	var errs ValidationErrors
	for i, row := range rows {
		p, err := r.pmap.PartitionOf(row)
		if err != nil {
			errs = append(errs, &ValidationError{RowIndex: i, Err: err})
			continue
		}
		groups[p.Index] = append(groups[p.Index], row)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return groups, nil
}

// ValidationError reports why a single row of a batch could not be routed.
type ValidationError struct {
	RowIndex int
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %v", e.RowIndex, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}
