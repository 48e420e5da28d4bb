package manifest

import (
	"context"
	"fmt"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

// TabletPruner selects tablets by their recorded partition key bounds.
// SQLite compares BLOBs bytewise, which is the partition key order, so the
// selection runs against the tablets table directly.
type TabletPruner struct {
	catalog *SQLiteCatalog
}

// NewTabletPruner creates a new tablet pruner.
func NewTabletPruner(catalog *SQLiteCatalog) *TabletPruner {
	return &TabletPruner{catalog: catalog}
}

const tabletColumns = `tablet_id, partition_index, hash_buckets, lower_key, upper_key, created_at`

// Unbounded sides are stored as NULL or as an empty blob.
const (
	lowerBelow  = `(lower_key IS NULL OR length(lower_key) = 0 OR lower_key < ?)`
	lowerAtMost = `(lower_key IS NULL OR length(lower_key) = 0 OR lower_key <= ?)`
	upperAbove  = `(upper_key IS NULL OR length(upper_key) = 0 OR upper_key > ?)`
)

// TabletsForKeyRange returns the tablets of a table that overlap the
// partition key range [lower, upper). A nil bound is unbounded.
func (p *TabletPruner) TabletsForKeyRange(ctx context.Context, name string, lower, upper []byte) ([]TabletRecord, error) {
	row, err := lookupTable(ctx, p.catalog.readDB, name)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + tabletColumns + " FROM tablets WHERE table_id = ?"
	args := []interface{}{row.tableID}
	if lower != nil {
		query += " AND " + upperAbove
		args = append(args, lower)
	}
	if upper != nil {
		query += " AND " + lowerBelow
		args = append(args, upper)
	}
	query += " ORDER BY partition_index ASC"

	return p.executeQuery(ctx, query, args...)
}

// TabletForKey returns the tablet whose bounds contain the partition key.
func (p *TabletPruner) TabletForKey(ctx context.Context, name string, key []byte) (*TabletRecord, error) {
	row, err := lookupTable(ctx, p.catalog.readDB, name)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + tabletColumns + " FROM tablets WHERE table_id = ? AND " + lowerAtMost + " AND " + upperAbove
	tablets, err := p.executeQuery(ctx, query, row.tableID, key, key)
	if err != nil {
		return nil, err
	}
	if len(tablets) != 1 {
		return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
			fmt.Sprintf("table %q: %d tablets contain key %x", name, len(tablets), key), nil)
	}
	return &tablets[0], nil
}

// TabletForRow encodes the row's partition key with the table's current
// partition map and returns the tablet that stores it.
func (p *TabletPruner) TabletForRow(ctx context.Context, name string, r *types.Row) (*TabletRecord, error) {
	table, err := p.catalog.OpenTable(ctx, name)
	if err != nil {
		return nil, err
	}
	key, err := table.PartitionMap().PartitionKey(r)
	if err != nil {
		return nil, err
	}
	return p.TabletForKey(ctx, name, key)
}

// TabletsForScan returns the tablets a scan between two range-column
// bounds must visit. See partition.Map.PartitionsForScan for the bounds.
func (p *TabletPruner) TabletsForScan(ctx context.Context, name string, lower, upper *types.Row) ([]TabletRecord, error) {
	table, err := p.catalog.OpenTable(ctx, name)
	if err != nil {
		return nil, err
	}
	parts, err := table.PartitionMap().PartitionsForScan(lower, upper)
	if err != nil {
		return nil, err
	}

	tablets, err := p.catalog.ListTablets(ctx, name)
	if err != nil {
		return nil, err
	}
	result := make([]TabletRecord, 0, len(parts))
	for _, part := range parts {
		if part.Index >= len(tablets) {
			return nil, tabletserrors.NewManifestError(tabletserrors.CodeCorruptionDetected,
				fmt.Sprintf("table %q: no tablet for partition %d", name, part.Index), nil)
		}
		result = append(result, tablets[part.Index])
	}
	return result, nil
}

// executeQuery runs a tablet query and scans the results.
func (p *TabletPruner) executeQuery(ctx context.Context, query string, args ...interface{}) ([]TabletRecord, error) {
	rows, err := p.catalog.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pruner: query failed: %w", err)
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
		return nil, fmt.Errorf("pruner: failed to iterate tablets: %w", err)
	}
	return tablets, nil
}
