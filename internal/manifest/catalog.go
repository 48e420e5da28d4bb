package manifest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/internal/partition"
	"github.com/arkilian/tablets/internal/schema"
	"github.com/arkilian/tablets/pkg/types"
)

// Table states as stored in the tables table.
const (
	StateActive  = "ACTIVE"
	StateDropped = "DROPPED"
)

// Catalog is the metadata authority for tables. Creation and alteration
// are serialized by the catalog; opened tables are read without locking.
type Catalog interface {
	CatalogReader

	// CreateTable validates the schemas, computes the partitions and records
	// the table with one tablet per partition. Nothing is recorded on failure.
	CreateTable(ctx context.Context, table *types.TableSchema, ps types.PartitionSchema, splitRows []*types.Row) (*schema.Table, error)

	// OpenTable loads the current schema version and partition map of an active table.
	OpenTable(ctx context.Context, name string) (*schema.Table, error)

	// AlterTable applies alteration operations atomically and returns the new schema.
	AlterTable(ctx context.Context, name string, ops ...schema.Op) (*types.TableSchema, error)

	// DropTable marks a table as dropped.
	DropTable(ctx context.Context, name string) error

	// Close closes the catalog database connection.
	Close() error
}

// TableInfo is the catalog record of a table.
type TableInfo struct {
	TableID    string
	Name       string
	State      string
	Version    int
	NumTablets int
	CreatedAt  time.Time
	DroppedAt  *time.Time
}

// TabletRecord is the catalog record of one tablet.
type TabletRecord struct {
	TabletID       string    `json:"tablet_id"`
	PartitionIndex int       `json:"partition_index"`
	HashBuckets    []int32   `json:"hash_buckets,omitempty"`
	LowerKey       []byte    `json:"lower_key,omitempty"`
	UpperKey       []byte    `json:"upper_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Options configures a catalog.
type Options struct {
	// Partitioning limits applied by CreateTable
	Partitioning partition.Options

	// BusyTimeout is how long a connection waits for the database lock
	BusyTimeout time.Duration
}

// DefaultOptions returns the default catalog options.
func DefaultOptions() Options {
	return Options{
		Partitioning: partition.DefaultOptions(),
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	opts   Options
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewCatalog opens or creates the catalog database at dbPath.
func NewCatalog(dbPath string, opts Options) (*SQLiteCatalog, error) {
	busy := opts.BusyTimeout.Milliseconds()
	if busy <= 0 {
		busy = 5000
	}

	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", dbPath, busy))
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{
		db:     db,
		dbPath: dbPath,
		opts:   opts,
	}

	// The schema must exist before the read-only pool connects.
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&mode=ro", dbPath, busy))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	// Close read connection first, then write connection
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// CreateTable validates the schemas, computes the partitions and records
// the table, its first schema version and one tablet per partition in a
// single transaction.
func (c *SQLiteCatalog) CreateTable(ctx context.Context, table *types.TableSchema, ps types.PartitionSchema, splitRows []*types.Row) (*schema.Table, error) {
	pmap, err := partition.ComputePartitions(table, ps, splitRows, c.opts.Partitioning)
	if err != nil {
		return nil, fmt.Errorf("manifest: create table: %w", err)
	}

	descJSON, err := json.Marshal(pmap.Descriptor())
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

	if _, err := lookupTable(ctx, tx, table.Name); err == nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeTableExists,
			fmt.Sprintf("table %q already exists", table.Name), nil)
	} else if !tabletserrors.HasCode(err, tabletserrors.CodeTableNotFound) {
		return nil, err
	}

	tableID := uuid.New().String()
	now := time.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tables (table_id, name, state, current_version, descriptor_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tableID, table.Name, StateActive, table.Version, string(descJSON), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to insert table: %w", err)
	}

	if err := insertSchemaVersion(ctx, tx, tableID, table, now); err != nil {
		return nil, err
	}

	if err := insertTablets(ctx, tx, tableID, tabletsFor(pmap, now)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	log.Printf("[INFO] manifest: created table %q (%s) with %d tablets", table.Name, tableID, pmap.NumPartitions())
	return schema.NewTable(table, pmap)
}

// tabletsFor assigns a new tablet ID to every partition of pmap.
func tabletsFor(pmap *partition.Map, now time.Time) []TabletRecord {
	parts := pmap.Partitions()
	tablets := make([]TabletRecord, len(parts))
	for i, p := range parts {
		tablets[i] = TabletRecord{
			TabletID:       uuid.New().String(),
			PartitionIndex: p.Index,
			HashBuckets:    p.HashBuckets,
			LowerKey:       p.Lower,
			UpperKey:       p.Upper,
			CreatedAt:      now,
		}
	}
	return tablets
}

func insertTablets(ctx context.Context, tx *sql.Tx, tableID string, tablets []TabletRecord) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tablets (tablet_id, table_id, partition_index, hash_buckets, lower_key, upper_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: failed to prepare tablet insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tablets {
		buckets, err := json.Marshal(t.HashBuckets)
		if err != nil {
			return fmt.Errorf("manifest: failed to marshal hash buckets: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			t.TabletID, tableID, t.PartitionIndex, string(buckets), t.LowerKey, t.UpperKey, t.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("manifest: failed to insert tablet %d: %w", t.PartitionIndex, err)
		}
	}
	return nil
}

// tableRow is the raw tables row of an active table.
type tableRow struct {
	tableID        string
	name           string
	version        int
	descriptorJSON string
	createdAt      int64
}

func lookupTable(ctx context.Context, q querier, name string) (*tableRow, error) {
	var r tableRow
	err := q.QueryRowContext(ctx,
		`SELECT table_id, name, current_version, descriptor_json, created_at
		 FROM tables WHERE name = ? AND state = ?`,
		name, StateActive,
	).Scan(&r.tableID, &r.name, &r.version, &r.descriptorJSON, &r.createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tabletserrors.NewManifestError(tabletserrors.CodeTableNotFound,
				fmt.Sprintf("table %q not found", name), nil)
		}
		return nil, fmt.Errorf("manifest: failed to look up table %q: %w", name, err)
	}
	return &r, nil
}

func (r *tableRow) descriptor() (partition.Descriptor, error) {
	var desc partition.Descriptor
	if err := json.Unmarshal([]byte(r.descriptorJSON), &desc); err != nil {
		return partition.Descriptor{}, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("table %q: unreadable partition descriptor", r.name), err)
	}
	return desc, nil
}

// OpenTable rebuilds the partition map of a table from its descriptor and
// checks it against the recorded tablets.
func (c *SQLiteCatalog) OpenTable(ctx context.Context, name string) (*schema.Table, error) {
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
	pmap, err := partition.FromDescriptor(rec.Schema, desc)
	if err != nil {
		return nil, fmt.Errorf("manifest: table %q: %w", name, err)
	}

	tablets, err := listTablets(ctx, c.readDB, row.tableID)
	if err != nil {
		return nil, err
	}
	if err := verifyTablets(pmap, tablets); err != nil {
		return nil, fmt.Errorf("manifest: table %q: %w", name, err)
	}

	return schema.NewTable(rec.Schema, pmap)
}

// verifyTablets checks that the recorded tablets match the partitions
// rebuilt from the descriptor one to one.
func verifyTablets(pmap *partition.Map, tablets []TabletRecord) error {
	parts := pmap.Partitions()
	if len(tablets) != len(parts) {
		return tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("descriptor defines %d partitions but %d tablets are recorded", len(parts), len(tablets)), nil)
	}
	for i, t := range tablets {
		p := parts[i]
		if t.PartitionIndex != p.Index || !bytes.Equal(t.LowerKey, p.Lower) || !bytes.Equal(t.UpperKey, p.Upper) {
			return tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
				fmt.Sprintf("tablet %s does not match partition %d", t.TabletID, p.Index), nil)
		}
	}
	return nil
}

// AlterTable applies ops to the current schema version of a table. The
// version check in the update fails with a retryable WriteConflict if the
// table changed underneath the request.
func (c *SQLiteCatalog) AlterTable(ctx context.Context, name string, ops ...schema.Op) (*types.TableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row, err := lookupTable(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	rec, err := getSchemaVersion(ctx, tx, row.tableID, row.version)
	if err != nil {
		return nil, err
	}

	alterer := schema.NewAlterer()
	for _, op := range ops {
		alterer.Add(op)
	}
	next, err := alterer.Apply(rec.Schema)
	if err != nil {
		return nil, fmt.Errorf("manifest: alter table %q: %w", name, err)
	}
	if next == rec.Schema {
		return next, nil
	}

	if next.Name != row.name {
		if _, err := lookupTable(ctx, tx, next.Name); err == nil {
			return nil, tabletserrors.NewManifestError(tabletserrors.CodeTableExists,
				fmt.Sprintf("cannot rename %q: table %q already exists", name, next.Name), nil)
		} else if !tabletserrors.HasCode(err, tabletserrors.CodeTableNotFound) {
			return nil, err
		}
	}

	if err := insertSchemaVersion(ctx, tx, row.tableID, next, time.Now()); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE tables SET name = ?, current_version = ? WHERE table_id = ? AND current_version = ?",
		next.Name, next.Version, row.tableID, row.version,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to update table: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeWriteConflict,
			fmt.Sprintf("table %q changed during alteration", name), nil)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	log.Printf("[INFO] manifest: altered table %q to version %d (%d ops)", next.Name, next.Version, len(ops))
	return next, nil
}

// DropTable moves a table to the terminal dropped state. Its tablets and
// schema history are kept.
func (c *SQLiteCatalog) DropTable(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, err := lookupTable(ctx, c.db, name)
	if err != nil {
		return err
	}

	res, err := c.db.ExecContext(ctx,
		"UPDATE tables SET state = ?, dropped_at = ? WHERE table_id = ? AND state = ?",
		StateDropped, time.Now().Unix(), row.tableID, StateActive,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to drop table %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return tabletserrors.NewManifestError(tabletserrors.CodeWriteConflict,
			fmt.Sprintf("table %q changed during drop", name), nil)
	}

	log.Printf("[INFO] manifest: dropped table %q (%s)", name, row.tableID)
	return nil
}

const tableInfoQuery = `
	SELECT t.table_id, t.name, t.state, t.current_version, t.created_at, t.dropped_at,
		(SELECT COUNT(*) FROM tablets WHERE tablets.table_id = t.table_id)
	FROM tables t`

// ListTables returns the tables ordered by name.
func (c *SQLiteCatalog) ListTables(ctx context.Context, includeDropped bool) ([]TableInfo, error) {
	query := tableInfoQuery
	var args []interface{}
	if !includeDropped {
		query += " WHERE t.state = ?"
		args = append(args, StateActive)
	}
	query += " ORDER BY t.name ASC, t.created_at ASC"

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		info, err := scanTableInfo(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to iterate tables: %w", err)
	}
	return tables, nil
}

// GetTableInfo returns the catalog record of an active table.
func (c *SQLiteCatalog) GetTableInfo(ctx context.Context, name string) (*TableInfo, error) {
	rows, err := c.readDB.QueryContext(ctx, tableInfoQuery+" WHERE t.name = ? AND t.state = ?", name, StateActive)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to get table %q: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("manifest: failed to get table %q: %w", name, err)
		}
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeTableNotFound,
			fmt.Sprintf("table %q not found", name), nil)
	}
	return scanTableInfo(rows)
}

func scanTableInfo(rows *sql.Rows) (*TableInfo, error) {
	var info TableInfo
	var createdAt int64
	var droppedAt sql.NullInt64
	if err := rows.Scan(&info.TableID, &info.Name, &info.State, &info.Version, &createdAt, &droppedAt, &info.NumTablets); err != nil {
		return nil, fmt.Errorf("manifest: failed to scan table row: %w", err)
	}
	info.CreatedAt = time.Unix(createdAt, 0)
	if droppedAt.Valid {
		t := time.Unix(droppedAt.Int64, 0)
		info.DroppedAt = &t
	}
	return &info, nil
}

// ListTablets returns the tablets of an active table in partition order.
func (c *SQLiteCatalog) ListTablets(ctx context.Context, name string) ([]TabletRecord, error) {
	row, err := lookupTable(ctx, c.readDB, name)
	if err != nil {
		return nil, err
	}
	return listTablets(ctx, c.readDB, row.tableID)
}

func listTablets(ctx context.Context, q querier, tableID string) ([]TabletRecord, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+tabletColumns+" FROM tablets WHERE table_id = ? ORDER BY partition_index ASC",
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list tablets: %w", err)
	}
	defer rows.Close()

	var tablets []TabletRecord
	for rows.Next() {
		t, err := scanTablet(rows)
		if err != nil {
			return nil, err
		}
		tablets = append(tablets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to iterate tablets: %w", err)
	}
	return tablets, nil
}

func scanTablet(rows *sql.Rows) (*TabletRecord, error) {
	var t TabletRecord
	var buckets string
	var createdAt int64
	if err := rows.Scan(&t.TabletID, &t.PartitionIndex, &buckets, &t.LowerKey, &t.UpperKey, &createdAt); err != nil {
		return nil, fmt.Errorf("manifest: failed to scan tablet row: %w", err)
	}
	if err := json.Unmarshal([]byte(buckets), &t.HashBuckets); err != nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("tablet %s: unreadable hash buckets", t.TabletID), err)
	}
	if len(t.LowerKey) == 0 {
		t.LowerKey = nil
	}
	if len(t.UpperKey) == 0 {
		t.UpperKey = nil
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// TableID resolves the ID of an active table.
func (c *SQLiteCatalog) TableID(ctx context.Context, name string) (string, error) {
	row, err := lookupTable(ctx, c.readDB, name)
	if err != nil {
		return "", err
	}
	return row.tableID, nil
}
