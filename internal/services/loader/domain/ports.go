package domain

import (
	"context"
	"time"

	"strata/internal/core/scd2"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	// Process runs one batch for a tenant table end to end
	Process(ctx context.Context, tenant, table string, descs []BatchDescriptor, recs []BusinessRecord) (ProcessResult, error)

	// ProcessAll fans a set of table batches across the worker pool
	ProcessAll(ctx context.Context, batches []TableBatch) ([]ProcessResult, error)

	// Watermarks lists committed watermarks, optionally scoped to one tenant
	Watermarks(ctx context.Context, tenant string) ([]Watermark, error)
}

// LedgerRepo is the relational side: watermarks and run bookkeeping
type LedgerRepo interface {
	// GetWatermark reads the committed mark; ok=false when never committed
	GetWatermark(ctx context.Context, tenant, table string) (mark time.Time, ok bool, err error)

	// AdvanceWatermark moves the mark forward, never backward
	AdvanceWatermark(ctx context.Context, tenant, table string, mark time.Time) error

	// ListWatermarks returns marks for a tenant, or all tenants when empty
	ListWatermarks(ctx context.Context, tenant string) ([]Watermark, error)

	// StartRun opens a bookkeeping row for one execution
	StartRun(ctx context.Context, runID, tenant, table string) error

	// FinishRun closes the bookkeeping row
	FinishRun(ctx context.Context, runID string, fin RunFinish) error
}

// TableRepo is the columnar side: staging areas and the live versioned table
type TableRepo interface {
	// EnsureTable creates the live versioned table when missing
	EnsureTable(ctx context.Context, table string) error

	// CreateStaging creates the uniquely named staging table.
	// A name collision is a defect signal and maps to a staging collision error.
	CreateStaging(ctx context.Context, stagingTable string) error

	// LoadStaging writes the raw batch into the staging table
	LoadStaging(ctx context.Context, stagingTable, tenant string, recs []BusinessRecord) error

	// ReadStaging reads the materialized batch back for classification
	ReadStaging(ctx context.Context, stagingTable string) ([]BusinessRecord, error)

	// DropStaging discards the staging table, idempotent
	DropStaging(ctx context.Context, stagingTable string) error

	// CurrentRows returns the live current rows for a tenant table
	CurrentRows(ctx context.Context, tenant, table string) ([]scd2.CurrentRow, error)

	// CommitPlan publishes the plan in one indivisible write
	CommitPlan(ctx context.Context, tenant, table string, plan scd2.MergePlan) (inserted, closed int, err error)
}
