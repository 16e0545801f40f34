package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"strata/internal/core/scd2"
	perr "strata/internal/platform/errors"
	"strata/internal/platform/store"
	"strata/internal/services/loader/domain"
)

// CH implements domain.TableRepo on the columnar seam
type CH struct {
	ch store.Columnar
}

// NewCH wraps a columnar client as a domain.TableRepo
func NewCH(ch store.Columnar) *CH {
	if ch == nil {
		panic("loader repo requires a non nil columnar client")
	}
	return &CH{ch: ch}
}

// LiveTable maps a logical table name to its versioned live table
func LiveTable(table string) string { return "scd2_" + table }

const ddlLive = `
CREATE TABLE IF NOT EXISTS %s (
	tenant_id            String,
	entity_id            String,
	record_hash          FixedString(64),
	source_last_modified DateTime64(6, 'UTC'),
	effective_date       DateTime64(6, 'UTC'),
	expiry_date          DateTime64(6, 'UTC'),
	is_current           UInt8,
	payload              String,
	row_id               UUID,
	row_version          UInt64,
	created_at           DateTime64(6, 'UTC') DEFAULT now64(6),
	updated_at           DateTime64(6, 'UTC') DEFAULT now64(6)
)
ENGINE = ReplacingMergeTree(row_version)
ORDER BY (tenant_id, entity_id, effective_date)
`

// staging tables are created without IF NOT EXISTS on purpose: a name
// collision must surface as an error, it means the uniqueness guarantee broke
const ddlStaging = `
CREATE TABLE %s (
	tenant_id            String,
	entity_id            String,
	source_last_modified DateTime64(6, 'UTC'),
	payload              String
)
ENGINE = MergeTree
ORDER BY entity_id
`

var liveCols = []string{
	"tenant_id", "entity_id", "record_hash", "source_last_modified",
	"effective_date", "expiry_date", "is_current", "payload",
	"row_id", "row_version",
}

// EnsureTable creates the live versioned table when missing
func (r *CH) EnsureTable(ctx context.Context, table string) error {
	if err := r.ch.Exec(ctx, fmt.Sprintf(ddlLive, LiveTable(table))); err != nil {
		return perr.FromClickhouse(err, "ensure live table")
	}
	return nil
}

// CreateStaging creates the uniquely named staging table
func (r *CH) CreateStaging(ctx context.Context, stagingTable string) error {
	if err := r.ch.Exec(ctx, fmt.Sprintf(ddlStaging, stagingTable)); err != nil {
		if perr.IsCHTableExists(err) {
			return perr.StagingCollisionf("staging table %s already exists", stagingTable)
		}
		return perr.FromClickhouse(err, "create staging table")
	}
	return nil
}

// LoadStaging writes the raw batch into the staging table
func (r *CH) LoadStaging(ctx context.Context, stagingTable, tenant string, recs []domain.BusinessRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		payload, err := json.Marshal(rec.Fields)
		if err != nil {
			return perr.Schemaf("marshal payload for %s: %v", rec.EntityID, err)
		}
		rows = append(rows, []any{tenant, rec.EntityID, rec.SourceLastModified.UTC(), string(payload)})
	}
	cols := []string{"tenant_id", "entity_id", "source_last_modified", "payload"}
	if err := r.ch.Insert(ctx, stagingTable, cols, rows); err != nil {
		return perr.FromClickhouse(err, "load staging")
	}
	return nil
}

// ReadStaging reads the materialized batch back for classification
func (r *CH) ReadStaging(ctx context.Context, stagingTable string) ([]domain.BusinessRecord, error) {
	rows, err := r.ch.Query(ctx, fmt.Sprintf(`
		SELECT entity_id, source_last_modified, payload
		FROM %s
		ORDER BY entity_id, source_last_modified
	`, stagingTable))
	if err != nil {
		return nil, perr.FromClickhouse(err, "read staging")
	}
	defer rows.Close()

	var out []domain.BusinessRecord
	for rows.Next() {
		var rec domain.BusinessRecord
		var payload string
		if err := rows.Scan(&rec.EntityID, &rec.SourceLastModified, &payload); err != nil {
			return nil, perr.FromClickhouse(err, "scan staging row")
		}
		if err := json.Unmarshal([]byte(payload), &rec.Fields); err != nil {
			return nil, perr.Schemaf("unmarshal staged payload for %s: %v", rec.EntityID, err)
		}
		rec.SourceLastModified = rec.SourceLastModified.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DropStaging discards the staging table, idempotent
func (r *CH) DropStaging(ctx context.Context, stagingTable string) error {
	if err := r.ch.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, stagingTable)); err != nil {
		return perr.FromClickhouse(err, "drop staging table")
	}
	return nil
}

// CurrentRows returns the live current rows for a tenant table.
// FINAL collapses superseded row versions so closed rewrites never leak out.
func (r *CH) CurrentRows(ctx context.Context, tenant, table string) ([]scd2.CurrentRow, error) {
	rows, err := r.ch.Query(ctx, fmt.Sprintf(`
		SELECT entity_id, record_hash, source_last_modified, effective_date,
		       toString(row_id), row_version, payload
		FROM %s FINAL
		WHERE tenant_id = ? AND is_current = 1
	`, LiveTable(table)), tenant)
	if err != nil {
		return nil, perr.FromClickhouse(err, "read current rows")
	}
	defer rows.Close()

	var out []scd2.CurrentRow
	for rows.Next() {
		var cur scd2.CurrentRow
		var payload string
		if err := rows.Scan(
			&cur.EntityID, &cur.RecordHash, &cur.SourceLastModified,
			&cur.EffectiveDate, &cur.RowID, &cur.RowVersion, &payload,
		); err != nil {
			return nil, perr.FromClickhouse(err, "scan current row")
		}
		if err := json.Unmarshal([]byte(payload), &cur.Fields); err != nil {
			return nil, perr.Schemaf("unmarshal current payload for %s: %v", cur.EntityID, err)
		}
		cur.SourceLastModified = cur.SourceLastModified.UTC()
		cur.EffectiveDate = cur.EffectiveDate.UTC()
		out = append(out, cur)
	}
	return out, rows.Err()
}

// CommitPlan publishes closures and insertions in one batch. A single batch
// lands as one part, so readers observe the whole plan or none of it. A close
// is a higher-version rewrite of the superseded row, collapsed by the engine.
func (r *CH) CommitPlan(ctx context.Context, tenant, table string, plan scd2.MergePlan) (int, int, error) {
	if plan.Empty() {
		return 0, 0, nil
	}

	rows := make([][]any, 0, len(plan.Closes)+len(plan.Inserts))

	for _, cl := range plan.Closes {
		payload, err := json.Marshal(cl.Row.Fields)
		if err != nil {
			return 0, 0, perr.Schemaf("marshal closed payload for %s: %v", cl.Row.EntityID, err)
		}
		rows = append(rows, []any{
			tenant, cl.Row.EntityID, cl.Row.RecordHash, cl.Row.SourceLastModified.UTC(),
			cl.Row.EffectiveDate.UTC(), cl.ExpiryDate.UTC(), uint8(0), string(payload),
			cl.Row.RowID, cl.Row.RowVersion + 1,
		})
	}

	for _, ins := range plan.Inserts {
		payload, err := json.Marshal(ins.Fields)
		if err != nil {
			return 0, 0, perr.Schemaf("marshal payload for %s: %v", ins.EntityID, err)
		}
		rowID := ins.RowID
		if rowID == "" {
			rowID = uuid.NewString()
		}
		rows = append(rows, []any{
			tenant, ins.EntityID, ins.RecordHash, ins.SourceLastModified.UTC(),
			ins.EffectiveDate.UTC(), ins.ExpiryDate.UTC(), uint8(1), string(payload),
			rowID, ins.RowVersion,
		})
	}

	if err := r.ch.Insert(ctx, LiveTable(table), liveCols, rows); err != nil {
		if perr.Retryable(err) {
			return 0, 0, perr.FromClickhouse(err, "commit plan")
		}
		return 0, 0, perr.Commitf("commit plan for %s/%s: %v", tenant, table, err)
	}
	return len(plan.Inserts), len(plan.Closes), nil
}

var _ domain.TableRepo = (*CH)(nil)
