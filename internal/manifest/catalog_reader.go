package manifest

import "context"

// CatalogReader is the read-only interface used by tooling that inspects
// tables without changing them, such as snapshot reconciliation.
type CatalogReader interface {
	// ListTables returns all tables, optionally including dropped ones.
	ListTables(ctx context.Context, includeDropped bool) ([]TableInfo, error)

	// GetTableInfo returns the catalog record of an active table.
	GetTableInfo(ctx context.Context, name string) (*TableInfo, error)

	// ListTablets returns the tablets of an active table in partition order.
	ListTablets(ctx context.Context, name string) ([]TabletRecord, error)
}
