package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/arkilian/tablets/internal/storage"
)

// ReconciliationReport contains the results of a catalog-snapshot reconciliation.
type ReconciliationReport struct {
	// StaleTables are active tables whose current version has no snapshot.
	StaleTables []StaleTable
	// OrphanedSnapshots are snapshot objects of tables that are not active.
	OrphanedSnapshots []string
	// TotalTables is the number of active tables checked.
	TotalTables int
	// TotalSnapshots is the number of snapshot objects scanned.
	TotalSnapshots int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// StaleTable is an active table without a snapshot of its current version.
type StaleTable struct {
	Name           string
	CurrentVersion int
	// LatestSnapshot is the highest exported version, 0 if none.
	LatestSnapshot int
}

// HasIssues returns true if the report contains any stale tables or orphaned snapshots.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.StaleTables) > 0 || len(r.OrphanedSnapshots) > 0
}

// Reconcile checks the active tables of the catalog against the snapshots
// under prefix. It detects tables whose current version was never exported
// and snapshots whose table is dropped or unknown.
func Reconcile(ctx context.Context, catalog CatalogReader, store storage.ObjectStorage, prefix string) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		RunAt: time.Now(),
	}

	// Step 1: Get all active tables from the catalog.
	tables, err := catalog.ListTables(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list tables: %w", err)
	}
	report.TotalTables = len(tables)

	// Step 2: Index the exported versions per table.
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}

	exported := make(map[string]map[int]bool) // table -> versions
	var refs []string
	for _, obj := range objects {
		ref, ok := parseSnapshotPath(prefix, obj)
		if !ok {
			continue
		}
		if exported[ref.Table] == nil {
			exported[ref.Table] = make(map[int]bool)
		}
		exported[ref.Table][ref.Version] = true
		refs = append(refs, obj)
	}
	report.TotalSnapshots = len(refs)

	// Step 3: Every active table should have its current version exported.
	active := make(map[string]bool, len(tables))
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		active[t.Name] = true
		versions := exported[t.Name]
		if versions[t.Version] {
			continue
		}
		latest := 0
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		report.StaleTables = append(report.StaleTables, StaleTable{
			Name:           t.Name,
			CurrentVersion: t.Version,
			LatestSnapshot: latest,
		})
	}

	// Step 4: Snapshots of inactive tables are orphans.
	for _, obj := range refs {
		ref, _ := parseSnapshotPath(prefix, obj)
		if !active[ref.Table] {
			report.OrphanedSnapshots = append(report.OrphanedSnapshots, obj)
		}
	}

	return report, nil
}
