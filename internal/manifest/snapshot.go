package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/partition"
	"github.com/arkilian/tablets/internal/schema"
	"github.com/arkilian/tablets/internal/storage"
	"github.com/arkilian/tablets/pkg/types"
)

// SnapshotFormatVersion is the format version written into every snapshot.
const SnapshotFormatVersion = 1

// snapshotExt is the object name suffix of snappy-compressed JSON snapshots.
const snapshotExt = ".json.sz"

// Snapshot is the exported descriptor of one table version: its schema,
// partition descriptor and tablets.
type Snapshot struct {
	FormatVersion int                  `json:"format_version"`
	TableID       string               `json:"table_id"`
	Schema        *types.TableSchema   `json:"schema"`
	Descriptor    partition.Descriptor `json:"descriptor"`
	Tablets       []TabletRecord       `json:"tablets"`
	ExportedAt    time.Time            `json:"exported_at"`
}

// Table rebuilds the table from the snapshot and checks the recorded
// tablets against the rebuilt partitions.
func (s *Snapshot) Table() (*schema.Table, error) {
	if s.FormatVersion != SnapshotFormatVersion {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("unknown snapshot format version %d", s.FormatVersion), nil)
	}
	if s.Schema == nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			"snapshot has no schema", nil)
	}
	pmap, err := partition.FromDescriptor(s.Schema, s.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if err := verifyTablets(pmap, s.Tablets); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return schema.NewTable(s.Schema, pmap)
}

// SnapshotPath returns the object path of a table version's snapshot.
func SnapshotPath(prefix, table string, version int) string {
	return path.Join(prefix, table, fmt.Sprintf("v%06d%s", version, snapshotExt))
}

// Snapshot captures the current version of an active table.
func (c *SQLiteCatalog) Snapshot(ctx context.Context, name string) (*Snapshot, error) {
	row, err := lookupTable(ctx, c.readDB, name)
	if err != nil {
		return nil, err
	}
	rec, err := getSchemaVersion(ctx, c.readDB, row.tableID, row.version)
	if err != nil {
		return nil, err
	}
	desc, err := row.descriptor()
	if err != nil {
		return nil, err
	}
	tablets, err := listTablets(ctx, c.readDB, row.tableID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		FormatVersion: SnapshotFormatVersion,
		TableID:       row.tableID,
		Schema:        rec.Schema,
		Descriptor:    desc,
		Tablets:       tablets,
		ExportedAt:    time.Now().UTC(),
	}, nil
}

// ExportTable writes a snapshot of the table's current version to store
// and returns its object path. A version that was already exported is not
// written again.
func (c *SQLiteCatalog) ExportTable(ctx context.Context, store storage.ObjectStorage, prefix, name string) (string, error) {
	snap, err := c.Snapshot(ctx, name)
	if err != nil {
		return "", err
	}

	objectPath := SnapshotPath(prefix, snap.Schema.Name, snap.Schema.Version)
	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to check snapshot %s: %w", objectPath, err)
	}
	if exists {
		log.Printf("[INFO] manifest: snapshot %s already exported", objectPath)
		return objectPath, nil
	}

	if err := writeSnapshot(ctx, store, objectPath, snap); err != nil {
		return "", err
	}
	log.Printf("[INFO] manifest: exported table %q version %d to %s", snap.Schema.Name, snap.Schema.Version, objectPath)
	return objectPath, nil
}

func writeSnapshot(ctx context.Context, store storage.ObjectStorage, objectPath string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("manifest: failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp("", "snapshot-*"+snapshotExt)
	if err != nil {
		return fmt.Errorf("manifest: failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(snappy.Encode(nil, raw)); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: failed to write snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifest: failed to close snapshot file: %w", err)
	}

	if err := store.Upload(ctx, tmp.Name(), objectPath); err != nil {
		return fmt.Errorf("manifest: failed to upload snapshot %s: %w", objectPath, err)
	}
	return nil
}

// ImportSnapshot downloads and decodes a snapshot, then verifies that its
// descriptor rebuilds into partitions matching its tablets.
func ImportSnapshot(ctx context.Context, store storage.ObjectStorage, objectPath string) (*Snapshot, error) {
	tmp, err := os.CreateTemp("", "snapshot-*"+snapshotExt)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to create snapshot file: %w", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := store.Download(ctx, objectPath, tmp.Name()); err != nil {
		return nil, fmt.Errorf("manifest: failed to download snapshot %s: %w", objectPath, err)
	}

	compressed, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to read snapshot file: %w", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("snapshot %s: failed to decompress", objectPath), err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("snapshot %s: failed to decode", objectPath), err)
	}
	if _, err := snap.Table(); err != nil {
		return nil, fmt.Errorf("manifest: snapshot %s: %w", objectPath, err)
	}
	return &snap, nil
}

// RestoreSnapshot records the table of a snapshot under a new table ID.
// The snapshot's tablet IDs are kept unless the source table is still
// recorded in this catalog. Schema history is not restored: the snapshot
// version becomes the first recorded version.
func (c *SQLiteCatalog) RestoreSnapshot(ctx context.Context, snap *Snapshot) (*schema.Table, error) {
	table, err := snap.Table()
	if err != nil {
		return nil, err
	}
	descJSON, err := json.Marshal(snap.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to marshal partition descriptor: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	name := snap.Schema.Name
	if _, err := lookupTable(ctx, tx, name); err == nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeTableExists,
			fmt.Sprintf("table %q already exists", name), nil)
	} else if !tabletserrors.HasCode(err, tabletserrors.CodeTableNotFound) {
		return nil, err
	}

	var taken int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tables WHERE table_id = ?", snap.TableID).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to check table id: %w", err)
	}
	tableID := uuid.New().String()
	now := time.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tables (table_id, name, state, current_version, descriptor_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tableID, name, StateActive, snap.Schema.Version, string(descJSON), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to insert table: %w", err)
	}
	if err := insertSchemaVersion(ctx, tx, tableID, snap.Schema, now); err != nil {
		return nil, err
	}

	tablets := snap.Tablets
	if taken > 0 {
		// Tablet IDs are still held by the source table.
		tablets = make([]TabletRecord, len(snap.Tablets))
		for i, t := range snap.Tablets {
			t.TabletID = uuid.New().String()
			tablets[i] = t
		}
	}
	if err := insertTablets(ctx, tx, tableID, tablets); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	log.Printf("[INFO] manifest: restored table %q version %d (%s)", name, snap.Schema.Version, tableID)
	return table, nil
}

// ListSnapshots returns the snapshot object paths of a table, oldest first.
func ListSnapshots(ctx context.Context, store storage.ObjectStorage, prefix, table string) ([]string, error) {
	objects, err := store.ListObjects(ctx, path.Join(prefix, table)+"/")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list snapshots of %q: %w", table, err)
	}
	var snapshots []string
	for _, obj := range objects {
		if _, ok := parseSnapshotPath(prefix, obj); ok {
			snapshots = append(snapshots, obj)
		}
	}
	sort.Strings(snapshots)
	return snapshots, nil
}

// snapshotRef identifies the table version a snapshot object holds.
type snapshotRef struct {
	Table   string
	Version int
}

// parseSnapshotPath splits <prefix>/<table>/vNNNNNN.json.sz.
func parseSnapshotPath(prefix, objectPath string) (snapshotRef, bool) {
	rel := objectPath
	if prefix != "" {
		p := strings.TrimSuffix(prefix, "/") + "/"
		if !strings.HasPrefix(objectPath, p) {
			return snapshotRef{}, false
		}
		rel = objectPath[len(p):]
	}
	table, file := path.Split(rel)
	table = strings.TrimSuffix(table, "/")
	if table == "" || !strings.HasPrefix(file, "v") || !strings.HasSuffix(file, snapshotExt) {
		return snapshotRef{}, false
	}
	var version int
	if _, err := fmt.Sscanf(strings.TrimSuffix(file, snapshotExt), "v%d", &version); err != nil {
		return snapshotRef{}, false
	}
	return snapshotRef{Table: table, Version: version}, true
}
