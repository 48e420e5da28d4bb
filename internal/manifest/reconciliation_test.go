package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arkilian/tablets/internal/schema"
)

// createFakeObject creates a small file in local storage to simulate an exported snapshot.
func createFakeObject(t *testing.T, storagePath, objectPath string) {
	t.Helper()
	fullPath := filepath.Join(storagePath, objectPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(fullPath, []byte("fake-snapshot-data"), 0644); err != nil {
		t.Fatalf("failed to write fake object: %v", err)
	}
}

func TestReconcile_NoIssues(t *testing.T) {
	catalog := newTestCatalog(t)
	store, _ := newTestStorage(t)
	ctx := context.Background()
	createPeople(t, catalog)

	if _, err := catalog.ExportTable(ctx, store, "snapshots", "people"); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	report, err := Reconcile(ctx, catalog, store, "snapshots")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.HasIssues() {
		t.Errorf("expected no issues, got %d stale, %d orphaned",
			len(report.StaleTables), len(report.OrphanedSnapshots))
	}
	if report.TotalTables != 1 || report.TotalSnapshots != 1 {
		t.Errorf("expected 1/1, got %d/%d", report.TotalTables, report.TotalSnapshots)
	}
}

func TestReconcile_StaleTable(t *testing.T) {
	catalog := newTestCatalog(t)
	store, _ := newTestStorage(t)
	ctx := context.Background()
	createPeople(t, catalog)

	if _, err := catalog.ExportTable(ctx, store, "snapshots", "people"); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if _, err := catalog.AlterTable(ctx, "people", schema.RenameColumn("age", "years")); err != nil {
		t.Fatalf("alter failed: %v", err)
	}

	report, err := Reconcile(ctx, catalog, store, "snapshots")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report.StaleTables) != 1 {
		t.Fatalf("expected 1 stale table, got %d", len(report.StaleTables))
	}
	stale := report.StaleTables[0]
	if stale.Name != "people" || stale.CurrentVersion != 2 || stale.LatestSnapshot != 1 {
		t.Errorf("unexpected stale table %+v", stale)
	}
}

func TestReconcile_OrphanedSnapshot(t *testing.T) {
	catalog := newTestCatalog(t)
	store, storagePath := newTestStorage(t)
	ctx := context.Background()
	createPeople(t, catalog)

	if _, err := catalog.ExportTable(ctx, store, "snapshots", "people"); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	createFakeObject(t, storagePath, "snapshots/gone/v000004.json.sz")
	createFakeObject(t, storagePath, "snapshots/people/README")

	report, err := Reconcile(ctx, catalog, store, "snapshots")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report.OrphanedSnapshots) != 1 {
		t.Fatalf("expected 1 orphaned snapshot, got %d", len(report.OrphanedSnapshots))
	}
	if report.OrphanedSnapshots[0] != "snapshots/gone/v000004.json.sz" {
		t.Errorf("unexpected orphan %s", report.OrphanedSnapshots[0])
	}
	if report.TotalSnapshots != 2 {
		t.Errorf("non-snapshot objects should be ignored, got %d snapshots", report.TotalSnapshots)
	}
}

func TestReconcile_DroppedTable(t *testing.T) {
	catalog := newTestCatalog(t)
	store, _ := newTestStorage(t)
	ctx := context.Background()
	createPeople(t, catalog)

	if _, err := catalog.ExportTable(ctx, store, "snapshots", "people"); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if err := catalog.DropTable(ctx, "people"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	report, err := Reconcile(ctx, catalog, store, "snapshots")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.TotalTables != 0 || len(report.OrphanedSnapshots) != 1 {
		t.Errorf("expected the dropped table's snapshot to be orphaned, got %+v", report)
	}
}

func TestReconcile_Empty(t *testing.T) {
	catalog := newTestCatalog(t)
	store, _ := newTestStorage(t)

	report, err := Reconcile(context.Background(), catalog, store, "snapshots")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.HasIssues() || report.TotalTables != 0 || report.TotalSnapshots != 0 {
		t.Errorf("expected an empty report, got %+v", report)
	}
}
