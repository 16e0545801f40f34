// Package repo provides storage access for the loader: postgres for the
// watermark ledger and run bookkeeping, clickhouse for staging and the live
// versioned tables
package repo

import (
	"context"
	"time"

	"strata/internal/modkit/repokit"
	"strata/internal/platform/store"
	"strata/internal/services/loader/domain"
)

type (
	// PG is a Postgres binder for domain.LedgerRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.LedgerRepo
func NewPG() repokit.Binder[domain.LedgerRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.LedgerRepo { return &queries{q: q} }

// GetWatermark reads the committed mark for a tenant table
func (r *queries) GetWatermark(ctx context.Context, tenant, table string) (time.Time, bool, error) {
	rows, err := r.q.Query(ctx, `
		SELECT watermark FROM watermarks
		WHERE tenant_id = $1 AND table_name = $2
	`, tenant, table)
	if err != nil {
		return time.Time{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return time.Time{}, false, rows.Err()
	}
	var mark time.Time
	if err := rows.Scan(&mark); err != nil {
		return time.Time{}, false, err
	}
	return mark.UTC(), true, rows.Err()
}

// AdvanceWatermark moves the mark forward only. A concurrent worker that
// committed a newer mark first wins and this write becomes a no-op.
func (r *queries) AdvanceWatermark(ctx context.Context, tenant, table string, mark time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO watermarks (tenant_id, table_name, watermark, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, table_name) DO UPDATE
		SET watermark = excluded.watermark, updated_at = now()
		WHERE watermarks.watermark < excluded.watermark
	`, tenant, table, mark.UTC())
	return err
}

// ListWatermarks returns marks for one tenant, or every tenant when empty
func (r *queries) ListWatermarks(ctx context.Context, tenant string) ([]domain.Watermark, error) {
	return store.Many(ctx, r.q, scanWatermark, `
		SELECT tenant_id, table_name, watermark, updated_at
		FROM watermarks
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY tenant_id, table_name
	`, tenant)
}

func scanWatermark(row store.Row) (domain.Watermark, error) {
	var w domain.Watermark
	if err := row.Scan(&w.TenantID, &w.TableName, &w.Mark, &w.UpdatedAt); err != nil {
		return domain.Watermark{}, err
	}
	w.Mark = w.Mark.UTC()
	return w, nil
}

// StartRun opens the bookkeeping row for one execution (idempotent)
func (r *queries) StartRun(ctx context.Context, runID, tenant, table string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO load_runs (run_id, tenant_id, table_name, started_at, status)
		VALUES ($1, $2, $3, now(), 'running')
		ON CONFLICT (run_id) DO UPDATE
		SET started_at = now(), status = 'running', error = null, finished_at = null
	`, runID, tenant, table)
	return err
}

// FinishRun closes the bookkeeping row (idempotent)
func (r *queries) FinishRun(ctx context.Context, runID string, fin domain.RunFinish) error {
	_, err := r.q.Exec(ctx, `
		UPDATE load_runs SET
			finished_at = now(),
			status = $2,
			inserted = $3,
			closed = $4,
			unchanged = $5,
			excluded = $6,
			stage_ms = $7,
			commit_ms = $8,
			elapsed_ms = $9,
			error = NULLIF($10,'')
		WHERE run_id = $1
	`,
		runID, fin.Status, fin.Inserted, fin.Closed, fin.Unchanged, fin.Excluded,
		fin.StageMS, fin.CommitMS, fin.ElapsedMS, fin.ErrText,
	)
	return err
}
