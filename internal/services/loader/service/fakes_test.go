package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"strata/internal/core/scd2"
	"strata/internal/modkit/repokit"
	perr "strata/internal/platform/errors"
	"strata/internal/platform/store"
	"strata/internal/services/loader/domain"
)

// fakeTx satisfies repokit.TxRunner without a database; the ledger binder
// under test ignores the queryer entirely
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) store.Row             { return nil }
func (f fakeTx) Tx(ctx context.Context, fn func(q store.RowQuerier) error) error {
	return fn(f)
}

// fakeLedger is an in-memory watermark and run ledger
type fakeLedger struct {
	mu    sync.Mutex
	marks map[string]time.Time // tenant|table -> mark
	runs  map[string]domain.RunFinish
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{marks: map[string]time.Time{}, runs: map[string]domain.RunFinish{}}
}

func (l *fakeLedger) binder() repokit.Binder[domain.LedgerRepo] {
	return repokit.BindFunc[domain.LedgerRepo](func(repokit.Queryer) domain.LedgerRepo { return l })
}

func wmKey(tenant, table string) string { return tenant + "|" + table }

func (l *fakeLedger) GetWatermark(_ context.Context, tenant, table string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.marks[wmKey(tenant, table)]
	return m, ok, nil
}

func (l *fakeLedger) AdvanceWatermark(_ context.Context, tenant, table string, mark time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := wmKey(tenant, table)
	if cur, ok := l.marks[k]; !ok || cur.Before(mark) {
		l.marks[k] = mark
	}
	return nil
}

func (l *fakeLedger) ListWatermarks(_ context.Context, tenant string) ([]domain.Watermark, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Watermark
	for k, m := range l.marks {
		tn, tb, _ := strings.Cut(k, "|")
		if tenant != "" && tn != tenant {
			continue
		}
		out = append(out, domain.Watermark{TenantID: tn, TableName: tb, Mark: m})
	}
	return out, nil
}

func (l *fakeLedger) StartRun(_ context.Context, runID, _, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[runID] = domain.RunFinish{Status: "running"}
	return nil
}

func (l *fakeLedger) FinishRun(_ context.Context, runID string, fin domain.RunFinish) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[runID] = fin
	return nil
}

func (l *fakeLedger) mark(tenant, table string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.marks[wmKey(tenant, table)]
}

// liveKey mirrors the live table's ordering key: concurrent commits of the
// same logical row collapse to the highest version, like ReplacingMergeTree
type liveKey struct {
	tenant    string
	entity    string
	effective time.Time
}

type liveRow struct {
	hash       string
	sourceMod  time.Time
	expiry     time.Time
	isCurrent  bool
	rowID      string
	rowVersion uint64
	fields     map[string]any
}

// fakeTables is an in-memory domain.TableRepo with injectable failures
type fakeTables struct {
	mu      sync.Mutex
	staged  map[string][]domain.BusinessRecord
	live    map[string]map[liveKey]liveRow // tenant|table -> rows
	ensured map[string]int

	createCalls int
	commitCalls int

	createErr func(call int) error // nil fn or nil result means success
	commitErr func(call int) error
}

func newFakeTables() *fakeTables {
	return &fakeTables{
		staged:  map[string][]domain.BusinessRecord{},
		live:    map[string]map[liveKey]liveRow{},
		ensured: map[string]int{},
	}
}

func (f *fakeTables) EnsureTable(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured[table]++
	return nil
}

func (f *fakeTables) CreateStaging(_ context.Context, stagingTable string) error {
	f.mu.Lock()
	f.createCalls++
	call := f.createCalls
	errFn := f.createErr
	f.mu.Unlock()
	if errFn != nil {
		if err := errFn(call); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.staged[stagingTable]; exists {
		return perr.StagingCollisionf("staging table %s already exists", stagingTable)
	}
	f.staged[stagingTable] = nil
	return nil
}

func (f *fakeTables) LoadStaging(_ context.Context, stagingTable, _ string, recs []domain.BusinessRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[stagingTable] = append(f.staged[stagingTable], recs...)
	return nil
}

func (f *fakeTables) ReadStaging(_ context.Context, stagingTable string) ([]domain.BusinessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BusinessRecord, len(f.staged[stagingTable]))
	copy(out, f.staged[stagingTable])
	return out, nil
}

func (f *fakeTables) DropStaging(_ context.Context, stagingTable string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.staged, stagingTable)
	return nil
}

func (f *fakeTables) CurrentRows(_ context.Context, tenant, table string) ([]scd2.CurrentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []scd2.CurrentRow
	for k, r := range f.live[wmKey(tenant, table)] {
		if !r.isCurrent {
			continue
		}
		out = append(out, scd2.CurrentRow{
			EntityID:           k.entity,
			RecordHash:         r.hash,
			SourceLastModified: r.sourceMod,
			EffectiveDate:      k.effective,
			RowID:              r.rowID,
			RowVersion:         r.rowVersion,
			Fields:             r.fields,
		})
	}
	return out, nil
}

func (f *fakeTables) CommitPlan(_ context.Context, tenant, table string, plan scd2.MergePlan) (int, int, error) {
	f.mu.Lock()
	f.commitCalls++
	call := f.commitCalls
	errFn := f.commitErr
	f.mu.Unlock()
	if errFn != nil {
		if err := errFn(call); err != nil {
			return 0, 0, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	tbl := f.live[wmKey(tenant, table)]
	if tbl == nil {
		tbl = map[liveKey]liveRow{}
		f.live[wmKey(tenant, table)] = tbl
	}

	// the whole plan lands at once, highest version per key wins
	apply := func(k liveKey, r liveRow) {
		if cur, ok := tbl[k]; ok && cur.rowVersion >= r.rowVersion {
			return
		}
		tbl[k] = r
	}

	for _, cl := range plan.Closes {
		apply(liveKey{tenant, cl.Row.EntityID, cl.Row.EffectiveDate}, liveRow{
			hash:       cl.Row.RecordHash,
			sourceMod:  cl.Row.SourceLastModified,
			expiry:     cl.ExpiryDate,
			isCurrent:  false,
			rowID:      cl.Row.RowID,
			rowVersion: cl.Row.RowVersion + 1,
			fields:     cl.Row.Fields,
		})
	}
	for i, ins := range plan.Inserts {
		rowID := ins.RowID
		if rowID == "" {
			rowID = fmt.Sprintf("row-%d-%d", call, i)
		}
		apply(liveKey{tenant, ins.EntityID, ins.EffectiveDate}, liveRow{
			hash:       ins.RecordHash,
			sourceMod:  ins.SourceLastModified,
			expiry:     ins.ExpiryDate,
			isCurrent:  true,
			rowID:      rowID,
			rowVersion: ins.RowVersion,
			fields:     ins.Fields,
		})
	}
	return len(plan.Inserts), len(plan.Closes), nil
}

// rows returns a copy of the live rows for inspection
func (f *fakeTables) rows(tenant, table string) map[liveKey]liveRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[liveKey]liveRow, len(f.live[wmKey(tenant, table)]))
	for k, v := range f.live[wmKey(tenant, table)] {
		out[k] = v
	}
	return out
}

// currents counts is_current rows per entity
func (f *fakeTables) currents(tenant, table string) map[string]int {
	out := map[string]int{}
	for k, r := range f.rows(tenant, table) {
		if r.isCurrent {
			out[k.entity]++
		}
	}
	return out
}
