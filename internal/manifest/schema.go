// Package manifest provides the metadata catalog that records tables, their
// schema versions and the tablets created for each partition.
package manifest

// Schema contains the SQL schema definitions for the manifest catalog (manifest.db).
// The catalog is the metadata authority for table creation and alteration:
// every accepted change is committed here before it becomes visible.

// CreateTablesTableSQL creates the tables table. A table row carries the
// partition descriptor, which never changes after creation, and the number
// of the current schema version.
const CreateTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    table_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    state TEXT NOT NULL,
    current_version INTEGER NOT NULL,
    descriptor_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    dropped_at INTEGER
)`

// CreateTablesIndexesSQL creates indexes on the tables table. Names are only
// unique among active tables, so a dropped table's name can be reused.
var CreateTablesIndexesSQL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tables_active_name ON tables(name)
		WHERE state = 'ACTIVE'`,
}

// CreateSchemaVersionsTableSQL creates the schema versions table.
// Every accepted alteration appends a row; rows are never updated.
const CreateSchemaVersionsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    table_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    schema_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (table_id, version),
    FOREIGN KEY (table_id) REFERENCES tables(table_id)
)`

// CreateTabletsTableSQL creates the tablets table, one row per partition.
const CreateTabletsTableSQL = `
CREATE TABLE IF NOT EXISTS tablets (
    tablet_id TEXT PRIMARY KEY,
    table_id TEXT NOT NULL,
    partition_index INTEGER NOT NULL,
    hash_buckets TEXT NOT NULL,
    lower_key BLOB,
    upper_key BLOB,
    created_at INTEGER NOT NULL,
    UNIQUE (table_id, partition_index),
    FOREIGN KEY (table_id) REFERENCES tables(table_id)
)`

// AllSchemaSQL returns all SQL statements needed to initialize the manifest catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateTablesTableSQL,
		CreateSchemaVersionsTableSQL,
		CreateTabletsTableSQL,
	}
	statements = append(statements, CreateTablesIndexesSQL...)
	return statements
}
