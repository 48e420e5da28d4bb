package partition

import (
	"errors"
	"testing"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

func namesMap(t *testing.T) (*types.TableSchema, *Map) {
	t.Helper()
	table := namesTable()
	pmap, err := ComputePartitions(table, types.PartitionSchema{Range: &types.RangeComponent{}},
		nameSplits(t, table, "b", "c"), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to compute partitions: %v", err)
	}
	return table, pmap
}

func TestNewRouter_RequiresMap(t *testing.T) {
	if _, err := NewRouter(nil); err == nil {
		t.Error("expected error for nil map")
	}
}

func TestRouteRows_Groups(t *testing.T) {
	table, pmap := namesMap(t)
	router, err := NewRouter(pmap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := []*types.Row{
		mustRow(t, table, map[string]interface{}{"last_name": "adams", "first_name": "a"}),
		mustRow(t, table, map[string]interface{}{"last_name": "brown", "first_name": "b"}),
		mustRow(t, table, map[string]interface{}{"last_name": "baker", "first_name": "c"}),
		mustRow(t, table, map[string]interface{}{"last_name": "young", "first_name": "d"}),
	}

	groups, err := router.RouteRows(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]int{0: 1, 1: 2, 2: 1}
	if len(groups) != len(want) {
		t.Fatalf("expected %d groups, got %d", len(want), len(groups))
	}
	for idx, n := range want {
		if len(groups[idx]) != n {
			t.Errorf("partition %d: expected %d rows, got %d", idx, n, len(groups[idx]))
		}
	}
}

func TestRouteRows_CollectsErrors(t *testing.T) {
	table, pmap := namesMap(t)
	router, _ := NewRouter(pmap)

	rows := []*types.Row{
		mustRow(t, table, map[string]interface{}{"last_name": "adams", "first_name": "a"}),
		mustRow(t, table, map[string]interface{}{"last_name": "brown"}),
		mustRow(t, table, map[string]interface{}{"first_name": "x"}),
	}

	groups, err := router.RouteRows(rows)
	if groups != nil {
		t.Error("no groups may be returned when a row fails")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(verrs))
	}
	if verrs[0].RowIndex != 1 || verrs[1].RowIndex != 2 {
		t.Errorf("unexpected row indexes %d, %d", verrs[0].RowIndex, verrs[1].RowIndex)
	}
	if !tabletserrors.HasCode(verrs[0], tabletserrors.CodeNullKeyValue) {
		t.Errorf("expected NullKeyValue, got %v", verrs[0].Err)
	}
}

func TestRouteRow(t *testing.T) {
	table, pmap := namesMap(t)
	router, _ := NewRouter(pmap)

	p, err := router.RouteRow(mustRow(t, table, map[string]interface{}{"last_name": "cole", "first_name": "n"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Index != 2 {
		t.Errorf("expected partition 2, got %d", p.Index)
	}
}

func TestValidationErrors(t *testing.T) {
	inner := tabletserrors.NewEncodingError(tabletserrors.CodeNullKeyValue, "missing key")
	errs := ValidationErrors{
		{RowIndex: 0, Err: inner},
		{RowIndex: 3, Err: inner},
	}

	if got := errs[0].Error(); got != "row 0: "+inner.Error() {
		t.Errorf("unexpected message: %s", got)
	}
	if !errors.Is(errs[1], inner) {
		t.Error("ValidationError should unwrap to its cause")
	}
	if ValidationErrors(nil).Error() != "no validation errors" {
		t.Error("empty collection should say so")
	}
	if msg := errs.Error(); len(msg) == 0 || msg[:1] != "2" {
		t.Errorf("expected count prefix, got %q", msg)
	}
}
