package domain

import "context"

// ReconcilerPort is the public port exposed by the module
type ReconcilerPort interface {
	Reconcile(ctx context.Context, req Request) (Report, error)
}

// StoreRepo is the columnar surface the engine scans and repairs
type StoreRepo interface {
	// Tables lists logical table names present in the store
	Tables(ctx context.Context) ([]string, error)

	// CountRows counts physical rows, optionally scoped to one tenant
	CountRows(ctx context.Context, table, tenant string) (uint64, error)

	// DuplicateGroups finds exact-duplicate groups, members ordered by the
	// retention tie-break, at most limit groups
	DuplicateGroups(ctx context.Context, table, tenant string, limit int) ([]Group, error)

	// ViolationGroups finds groups whose members disagree on is_current,
	// members ordered by the retention tie-break, at most limit groups
	ViolationGroups(ctx context.Context, table, tenant string, limit int) ([]Group, error)

	// DeleteRows removes rows by internal row id
	DeleteRows(ctx context.Context, table string, rowIDs []string) error
}
