package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SchemaVersionManager reads the schema history of tables. Versions are
// written by the catalog as part of table creation and alteration.
type SchemaVersionManager struct {
	db *sql.DB
}

// NewSchemaVersionManager creates a new schema version manager using the catalog's database.
func NewSchemaVersionManager(catalog *SQLiteCatalog) *SchemaVersionManager {
	return &SchemaVersionManager{db: catalog.readDB}
}

// SchemaVersionRecord represents a stored schema version.
type SchemaVersionRecord struct {
	Version   int
	Schema    *types.TableSchema
	CreatedAt time.Time
}

// GetCurrentVersion returns the latest schema version number of a table.
// Returns 0 if the table has no registered versions.
func (m *SchemaVersionManager) GetCurrentVersion(ctx context.Context, tableID string) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_versions WHERE table_id = ?",
		tableID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("schema_version: failed to get current version: %w", err)
	}
	return version, nil
}

// GetSchemaVersion retrieves a specific schema version record.
func (m *SchemaVersionManager) GetSchemaVersion(ctx context.Context, tableID string, version int) (*SchemaVersionRecord, error) {
	return getSchemaVersion(ctx, m.db, tableID, version)
}

// ListVersions returns all schema versions of a table ordered by version number.
func (m *SchemaVersionManager) ListVersions(ctx context.Context, tableID string) ([]SchemaVersionRecord, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT version, schema_json, created_at FROM schema_versions WHERE table_id = ? ORDER BY version ASC",
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("schema_version: failed to list versions: %w", err)
	}
	defer rows.Close()

	var records []SchemaVersionRecord
	for rows.Next() {
		var version int
		var schemaJSON string
		var createdAtUnix int64
		if err := rows.Scan(&version, &schemaJSON, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("schema_version: failed to scan version row: %w", err)
		}
		schema, err := decodeSchema(schemaJSON, version)
		if err != nil {
			return nil, err
		}
		records = append(records, SchemaVersionRecord{
			Version:   version,
			Schema:    schema,
			CreatedAt: time.Unix(createdAtUnix, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema_version: failed to iterate versions: %w", err)
	}
	return records, nil
}

func getSchemaVersion(ctx context.Context, q querier, tableID string, version int) (*SchemaVersionRecord, error) {
	var schemaJSON string
	var createdAtUnix int64

	err := q.QueryRowContext(ctx,
		"SELECT schema_json, created_at FROM schema_versions WHERE table_id = ? AND version = ?",
		tableID, version,
	).Scan(&schemaJSON, &createdAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
				fmt.Sprintf("schema version %d of table %s is missing", version, tableID), nil)
		}
		return nil, fmt.Errorf("schema_version: failed to get version %d: %w", version, err)
	}

	schema, err := decodeSchema(schemaJSON, version)
	if err != nil {
		return nil, err
	}
	return &SchemaVersionRecord{
		Version:   version,
		Schema:    schema,
		CreatedAt: time.Unix(createdAtUnix, 0),
	}, nil
}

func insertSchemaVersion(ctx context.Context, q querier, tableID string, schema *types.TableSchema, now time.Time) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("schema_version: failed to marshal schema: %w", err)
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO schema_versions (table_id, version, schema_json, created_at) VALUES (?, ?, ?, ?)",
		tableID, schema.Version, string(schemaJSON), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("schema_version: failed to insert version %d: %w", schema.Version, err)
	}
	return nil
}

func decodeSchema(schemaJSON string, version int) (*types.TableSchema, error) {
	var schema types.TableSchema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("failed to unmarshal schema version %d", version), err)
	}
	if schema.Version != version {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("schema row %d holds version %d", version, schema.Version), nil)
	}
	return &schema, nil
}
