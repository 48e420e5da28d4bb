package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/schema"
	"github.com/arkilian/tablets/internal/storage"
)

func newTestStorage(t *testing.T) (*storage.LocalStorage, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "storage")
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return store, dir
}

func TestSnapshotPath(t *testing.T) {
	if got := SnapshotPath("snapshots", "people", 3); got != "snapshots/people/v000003.json.sz" {
		t.Errorf("unexpected path %s", got)
	}

	tests := []struct {
		prefix, path string
		want         snapshotRef
		ok           bool
	}{
		{"snapshots", "snapshots/people/v000003.json.sz", snapshotRef{"people", 3}, true},
		{"", "people/v000012.json.sz", snapshotRef{"people", 12}, true},
		{"snapshots/", "snapshots/people/v000001.json.sz", snapshotRef{"people", 1}, true},
		{"snapshots", "other/people/v000001.json.sz", snapshotRef{}, false},
		{"snapshots", "snapshots/people/notes.txt", snapshotRef{}, false},
		{"snapshots", "snapshots/v000001.json.sz", snapshotRef{}, false},
		{"snapshots", "snapshots/people/vx.json.sz", snapshotRef{}, false},
	}
	for _, tt := range tests {
		got, ok := parseSnapshotPath(tt.prefix, tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseSnapshotPath(%q, %q) = %+v, %v; want %+v, %v", tt.prefix, tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExportAndImportTable(t *testing.T) {
	catalog := newTestCatalog(t)
	store, _ := newTestStorage(t)
	ctx := context.Background()
	createPeople(t, catalog)

	objectPath, err := catalog.ExportTable(ctx, store, "snapshots", "people")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if objectPath != "snapshots/people/v000001.json.sz" {
		t.Errorf("unexpected object path %s", objectPath)
	}

	// Exporting an unchanged table is idempotent.
	again, err := catalog.ExportTable(ctx, store, "snapshots", "people")
	if err != nil || again != objectPath {
		t.Errorf("second export: %s, %v", again, err)
	}

	snap, err := ImportSnapshot(ctx, store, objectPath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if snap.Schema.Name != "people" || snap.Schema.Version != 1 || len(snap.Tablets) != 3 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	tbl, err := snap.Table()
	if err != nil {
		t.Fatalf("failed to rebuild table: %v", err)
	}
	if tbl.PartitionMap().NumPartitions() != 3 {
		t.Errorf("expected 3 partitions, got %d", tbl.PartitionMap().NumPartitions())
	}

	if _, err := catalog.AlterTable(ctx, "people", schema.RenameColumn("age", "years")); err != nil {
		t.Fatalf("alter failed: %v", err)
	}
	if _, err := catalog.ExportTable(ctx, store, "snapshots", "people"); err != nil {
		t.Fatalf("export after alter failed: %v", err)
	}
	snapshots, err := ListSnapshots(ctx, store, "snapshots", "people")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snapshots) != 2 || snapshots[1] != "snapshots/people/v000002.json.sz" {
		t.Errorf("unexpected snapshots %v", snapshots)
	}
}

func TestImportSnapshot_Errors(t *testing.T) {
	store, dir := newTestStorage(t)
	ctx := context.Background()

	_, err := ImportSnapshot(ctx, store, "snapshots/missing/v000001.json.sz")
	if !tabletserrors.HasCode(err, tabletserrors.CodeObjectNotFound) {
		t.Errorf("expected ObjectNotFound, got %v", err)
	}

	write := func(name string, data []byte) string {
		full := filepath.Join(dir, "snapshots", "bad", name)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(full, data, 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		return "snapshots/bad/" + name
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not snappy", []byte("plain text")},
		{"not json", snappy.Encode(nil, []byte("{"))},
		{"unknown format", snappy.Encode(nil, []byte(`{"format_version": 9}`))},
		{"no schema", snappy.Encode(nil, []byte(`{"format_version": 1}`))},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objectPath := write("v00000"+string(rune('1'+i))+".json.sz", tt.data)
			_, err := ImportSnapshot(ctx, store, objectPath)
			if !tabletserrors.HasCode(err, tabletserrors.CodeCorruptionDetected) {
				t.Errorf("expected CorruptionDetected, got %v", err)
			}
		})
	}
}

func TestSnapshot_TabletMismatch(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()
	createPeople(t, catalog)

	snap, err := catalog.Snapshot(ctx, "people")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	snap.Tablets = snap.Tablets[:2]
	if _, err := snap.Table(); !tabletserrors.HasCode(err, tabletserrors.CodeCorruptionDetected) {
		t.Errorf("expected CorruptionDetected, got %v", err)
	}
}

func TestRestoreSnapshot(t *testing.T) {
	source := newTestCatalog(t)
	store, _ := newTestStorage(t)
	ctx := context.Background()
	createPeople(t, source)

	objectPath, err := source.ExportTable(ctx, store, "snapshots", "people")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	snap, err := ImportSnapshot(ctx, store, objectPath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	// Restoring into the source catalog conflicts on the name.
	if _, err := source.RestoreSnapshot(ctx, snap); !tabletserrors.HasCode(err, tabletserrors.CodeTableExists) {
		t.Errorf("expected TableExists, got %v", err)
	}

	target := newTestCatalog(t)
	if _, err := target.RestoreSnapshot(ctx, snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	tablets, err := target.ListTablets(ctx, "people")
	if err != nil {
		t.Fatalf("list tablets failed: %v", err)
	}
	for i, tb := range tablets {
		if tb.TabletID != snap.Tablets[i].TabletID {
			t.Errorf("tablet %d: id %s, want %s", i, tb.TabletID, snap.Tablets[i].TabletID)
		}
	}
	if _, err := target.OpenTable(ctx, "people"); err != nil {
		t.Errorf("restored table should open: %v", err)
	}

	// After a drop the source catalog still holds the tablet IDs, so the
	// restored copy gets new ones.
	if err := source.DropTable(ctx, "people"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if _, err := source.RestoreSnapshot(ctx, snap); err != nil {
		t.Fatalf("restore after drop failed: %v", err)
	}
	restored, err := source.ListTablets(ctx, "people")
	if err != nil {
		t.Fatalf("list tablets failed: %v", err)
	}
	if len(restored) != 3 || restored[0].TabletID == snap.Tablets[0].TabletID {
		t.Errorf("expected fresh tablet ids, got %+v", restored)
	}
}
