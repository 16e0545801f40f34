// Package repo provides clickhouse access for the reconciliation engine
package repo

import (
	"context"
	"fmt"
	"strings"

	perr "strata/internal/platform/errors"
	"strata/internal/platform/store"
	"strata/internal/services/reconcile/domain"
)

// live tables share the loader's naming scheme
const livePrefix = "scd2_"

// CH implements domain.StoreRepo on the columnar seam
type CH struct {
	ch store.Columnar
}

// NewCH wraps a columnar client as a domain.StoreRepo
func NewCH(ch store.Columnar) *CH {
	if ch == nil {
		panic("reconcile repo requires a non nil columnar client")
	}
	return &CH{ch: ch}
}

// Tables lists logical table names present in the store
func (r *CH) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.ch.Query(ctx, `
		SELECT name FROM system.tables
		WHERE database = currentDatabase() AND name LIKE 'scd2_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, perr.FromClickhouse(err, "list tables")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, perr.FromClickhouse(err, "scan table name")
		}
		out = append(out, strings.TrimPrefix(name, livePrefix))
	}
	return out, rows.Err()
}

// CountRows counts physical rows, optionally scoped to one tenant
func (r *CH) CountRows(ctx context.Context, table, tenant string) (uint64, error) {
	rows, err := r.ch.Query(ctx, fmt.Sprintf(`
		SELECT count() FROM %s WHERE (? = '' OR tenant_id = ?)
	`, livePrefix+table), tenant, tenant)
	if err != nil {
		return 0, perr.FromClickhouse(err, "count rows")
	}
	defer rows.Close()
	var n uint64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, perr.FromClickhouse(err, "scan count")
		}
	}
	return n, rows.Err()
}

// DuplicateGroups finds groups of exact duplicates: same tenant, entity,
// source timestamp and currency flag. FINAL collapses version rewrites first
// so self-healing engine merges are never reported as corruption.
func (r *CH) DuplicateGroups(ctx context.Context, table, tenant string, limit int) ([]domain.Group, error) {
	t := livePrefix + table
	sql := fmt.Sprintf(`
		SELECT tenant_id, entity_id, source_last_modified, is_current,
		       effective_date, toString(row_id)
		FROM %s FINAL
		WHERE (tenant_id, entity_id, source_last_modified, is_current) IN (
			SELECT tenant_id, entity_id, source_last_modified, is_current
			FROM %s FINAL
			WHERE (? = '' OR tenant_id = ?)
			GROUP BY tenant_id, entity_id, source_last_modified, is_current
			HAVING count() > 1
			ORDER BY tenant_id, entity_id, source_last_modified, is_current
			LIMIT ?
		)
		ORDER BY tenant_id, entity_id, source_last_modified, is_current,
		         effective_date, row_id
	`, t, t)
	return r.scanGroups(ctx, sql, tenant, tenant, limit)
}

// ViolationGroups finds groups whose members disagree on is_current
func (r *CH) ViolationGroups(ctx context.Context, table, tenant string, limit int) ([]domain.Group, error) {
	t := livePrefix + table
	sql := fmt.Sprintf(`
		SELECT tenant_id, entity_id, source_last_modified, is_current,
		       effective_date, toString(row_id)
		FROM %s FINAL
		WHERE (tenant_id, entity_id, source_last_modified) IN (
			SELECT tenant_id, entity_id, source_last_modified
			FROM %s FINAL
			WHERE (? = '' OR tenant_id = ?)
			GROUP BY tenant_id, entity_id, source_last_modified
			HAVING uniqExact(is_current) > 1
			ORDER BY tenant_id, entity_id, source_last_modified
			LIMIT ?
		)
		ORDER BY tenant_id, entity_id, source_last_modified,
		         effective_date, row_id
	`, t, t)
	return r.scanGroups(ctx, sql, tenant, tenant, limit)
}

func (r *CH) scanGroups(ctx context.Context, sql string, args ...any) ([]domain.Group, error) {
	rows, err := r.ch.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromClickhouse(err, "scan groups")
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var key domain.GroupKey
		var m domain.Member
		var cur uint8
		if err := rows.Scan(
			&key.TenantID, &key.EntityID, &key.SourceLastModified,
			&cur, &m.EffectiveDate, &m.RowID,
		); err != nil {
			return nil, perr.FromClickhouse(err, "scan group member")
		}
		key.SourceLastModified = key.SourceLastModified.UTC()
		m.EffectiveDate = m.EffectiveDate.UTC()
		m.IsCurrent = cur == 1

		// rows arrive ordered, append to the open group or start a new one
		if n := len(out); n > 0 && out[n-1].Key == key {
			out[n-1].Members = append(out[n-1].Members, m)
			continue
		}
		out = append(out, domain.Group{Key: key, Members: []domain.Member{m}})
	}
	return out, rows.Err()
}

// DeleteRows removes rows by internal row id. The mutation is synchronous so
// the after-count in the report reflects the repair.
func (r *CH) DeleteRows(ctx context.Context, table string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`
		ALTER TABLE %s DELETE WHERE row_id IN (?)
		SETTINGS mutations_sync = 2
	`, livePrefix+table)
	if err := r.ch.Exec(ctx, sql, rowIDs); err != nil {
		return perr.FromClickhouse(err, "delete rows")
	}
	return nil
}

var _ domain.StoreRepo = (*CH)(nil)
