package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	perr "strata/internal/platform/errors"
	"strata/internal/services/reconcile/domain"
)

var (
	t1 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
)

// fakeRow is one physical row in the fake store
type fakeRow struct {
	tenant    string
	entity    string
	sourceMod time.Time
	effective time.Time
	isCurrent bool
	rowID     string
}

// fakeStore is an in-memory domain.StoreRepo
type fakeStore struct {
	mu     sync.Mutex
	tables map[string][]fakeRow
}

func newFakeStore() *fakeStore { return &fakeStore{tables: map[string][]fakeRow{}} }

func (f *fakeStore) add(table string, rows ...fakeRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
}

func (f *fakeStore) Tables(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for t := range f.tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) CountRows(_ context.Context, table, tenant string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n uint64
	for _, r := range f.tables[table] {
		if tenant == "" || r.tenant == tenant {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DuplicateGroups(_ context.Context, table, tenant string, limit int) ([]domain.Group, error) {
	type key struct {
		tenant  string
		entity  string
		src     time.Time
		current bool
	}
	return f.groups(table, tenant, limit, func(r fakeRow) any {
		return key{r.tenant, r.entity, r.sourceMod, r.isCurrent}
	}, func(members []fakeRow) bool { return len(members) > 1 })
}

func (f *fakeStore) ViolationGroups(_ context.Context, table, tenant string, limit int) ([]domain.Group, error) {
	type key struct {
		tenant string
		entity string
		src    time.Time
	}
	return f.groups(table, tenant, limit, func(r fakeRow) any {
		return key{r.tenant, r.entity, r.sourceMod}
	}, func(members []fakeRow) bool {
		var cur, closed bool
		for _, m := range members {
			if m.isCurrent {
				cur = true
			} else {
				closed = true
			}
		}
		return cur && closed
	})
}

func (f *fakeStore) groups(
	table, tenant string, limit int,
	keyFn func(fakeRow) any, offending func([]fakeRow) bool,
) ([]domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byKey := map[any][]fakeRow{}
	var order []any
	for _, r := range f.tables[table] {
		if tenant != "" && r.tenant != tenant {
			continue
		}
		k := keyFn(r)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], r)
	}

	var out []domain.Group
	for _, k := range order {
		members := byKey[k]
		if !offending(members) {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if !members[i].effective.Equal(members[j].effective) {
				return members[i].effective.Before(members[j].effective)
			}
			return members[i].rowID < members[j].rowID
		})
		g := domain.Group{Key: domain.GroupKey{
			TenantID:           members[0].tenant,
			EntityID:           members[0].entity,
			SourceLastModified: members[0].sourceMod,
		}}
		for _, m := range members {
			g.Members = append(g.Members, domain.Member{
				RowID: m.rowID, EffectiveDate: m.effective, IsCurrent: m.isCurrent,
			})
		}
		out = append(out, g)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRows(_ context.Context, table string, rowIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doomed := map[string]struct{}{}
	for _, id := range rowIDs {
		doomed[id] = struct{}{}
	}
	var kept []fakeRow
	for _, r := range f.tables[table] {
		if _, gone := doomed[r.rowID]; !gone {
			kept = append(kept, r)
		}
	}
	f.tables[table] = kept
	return nil
}

func TestReconcile_DryRunByDefaultNeverDeletes(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("tickets",
		fakeRow{"acme", "e1", t1, t1, true, "r1"},
		fakeRow{"acme", "e1", t1, t1, true, "r2"}, // exact duplicate
	)
	svc := New(store, Config{})

	rep, err := svc.Reconcile(context.Background(), domain.Request{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.DuplicateGroups != 1 {
		t.Fatalf("duplicate groups = %d, want 1", rep.DuplicateGroups)
	}
	if rep.RowsRemoved != 0 {
		t.Fatalf("dry run removed %d rows", rep.RowsRemoved)
	}
	if n, _ := store.CountRows(context.Background(), "tickets", ""); n != 2 {
		t.Fatalf("dry run mutated the store: %d rows left", n)
	}
	if rep.RowsBefore != 2 || rep.RowsAfter != 2 {
		t.Fatalf("report counts = %d -> %d, want 2 -> 2", rep.RowsBefore, rep.RowsAfter)
	}
}

func TestReconcile_WrongTokenRejectedBeforeAnyDeletion(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("tickets",
		fakeRow{"acme", "e1", t1, t1, true, "r1"},
		fakeRow{"acme", "e1", t1, t1, true, "r2"},
	)
	svc := New(store, Config{})

	for _, token := range []string{"", "reconcile", "reconcile acme/ticket", "RECONCILE --ALL", "yes"} {
		_, err := svc.Reconcile(context.Background(), domain.Request{
			DryRun: false, ConfirmationToken: token,
		})
		if !perr.IsCode(err, perr.ErrorCodeConfirmation) {
			t.Fatalf("token %q error = %v, want confirmation rejection", token, err)
		}
	}
	if n, _ := store.CountRows(context.Background(), "tickets", ""); n != 2 {
		t.Fatalf("rejected run still deleted rows")
	}
}

func TestReconcile_ExactDuplicatePassRetainsOne(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	// retention tie-break: earliest effective date, then lowest row id
	store.add("tickets",
		fakeRow{"acme", "e1", t1, t2, true, "r9"},
		fakeRow{"acme", "e1", t1, t1, true, "r5"}, // earliest effective, kept
		fakeRow{"acme", "e1", t1, t1, true, "r7"},
	)
	svc := New(store, Config{})

	rep, err := svc.Reconcile(context.Background(), domain.Request{
		TenantID: "acme", TableName: "tickets",
		ConfirmationToken: "reconcile acme/tickets",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.RowsRemoved != 2 {
		t.Fatalf("removed = %d, want 2", rep.RowsRemoved)
	}

	left := store.tables["tickets"]
	if len(left) != 1 || left[0].rowID != "r5" {
		t.Fatalf("retained %+v, want r5", left)
	}
	if rep.RowsBefore != 3 || rep.RowsAfter != 1 {
		t.Fatalf("report counts = %d -> %d, want 3 -> 1", rep.RowsBefore, rep.RowsAfter)
	}
}

func TestReconcile_ViolationPassRemovesConflictingClosed(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("tickets",
		fakeRow{"acme", "e1", t1, t1, true, "r1"},
		fakeRow{"acme", "e1", t1, t1, false, "r2"}, // race leftover
		fakeRow{"acme", "e2", t1, t1, false, "r3"}, // legitimately closed, no conflict
	)
	svc := New(store, Config{})

	rep, err := svc.Reconcile(context.Background(), domain.Request{
		TableName:         "tickets",
		ConfirmationToken: "reconcile */tickets",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.ViolationGroups != 1 {
		t.Fatalf("violation groups = %d, want 1", rep.ViolationGroups)
	}
	if rep.RowsRemoved != 1 {
		t.Fatalf("removed = %d, want 1", rep.RowsRemoved)
	}

	var ids []string
	for _, r := range store.tables["tickets"] {
		ids = append(ids, r.rowID)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r3" {
		t.Fatalf("left %v, want [r1 r3]", ids)
	}
}

func TestReconcile_NoExactDuplicatesAfterDestructiveRun(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("tickets",
		fakeRow{"acme", "e1", t1, t1, true, "r1"},
		fakeRow{"acme", "e1", t1, t1, true, "r2"},
		fakeRow{"acme", "e2", t2, t2, true, "r3"},
		fakeRow{"acme", "e2", t2, t2, true, "r4"},
		fakeRow{"acme", "e2", t2, t2, true, "r5"},
	)
	svc := New(store, Config{})

	if _, err := svc.Reconcile(context.Background(), domain.Request{
		ConfirmationToken: "reconcile --all",
	}); err != nil {
		t.Fatal(err)
	}

	// every (tenant, entity, source ts, is_current) group collapsed to one
	type dupKey struct {
		entity  string
		src     time.Time
		current bool
	}
	seen := map[dupKey]int{}
	for _, r := range store.tables["tickets"] {
		seen[dupKey{r.entity, r.sourceMod, r.isCurrent}]++
	}
	for k, n := range seen {
		if n > 1 {
			t.Fatalf("group %+v still has %d rows", k, n)
		}
	}
}

func TestReconcile_ScopesToTenant(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("tickets",
		fakeRow{"acme", "e1", t1, t1, true, "r1"},
		fakeRow{"acme", "e1", t1, t1, true, "r2"},
		fakeRow{"globex", "e1", t1, t1, true, "r3"},
		fakeRow{"globex", "e1", t1, t1, true, "r4"},
	)
	svc := New(store, Config{})

	rep, err := svc.Reconcile(context.Background(), domain.Request{
		TenantID:          "acme",
		ConfirmationToken: "reconcile acme/*",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.RowsRemoved != 1 {
		t.Fatalf("removed = %d, want 1", rep.RowsRemoved)
	}
	// the other tenant's duplicates are untouched
	var globex int
	for _, r := range store.tables["tickets"] {
		if r.tenant == "globex" {
			globex++
		}
	}
	if globex != 2 {
		t.Fatalf("globex rows = %d, want 2 untouched", globex)
	}
}

func TestReconcile_BatchLimitBoundsGroups(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	for _, e := range []string{"e1", "e2", "e3", "e4"} {
		store.add("tickets",
			fakeRow{"acme", e, t1, t1, true, e + "-a"},
			fakeRow{"acme", e, t1, t1, true, e + "-b"},
		)
	}
	svc := New(store, Config{})

	rep, err := svc.Reconcile(context.Background(), domain.Request{
		DryRun: true, BatchLimit: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.DuplicateGroups != 2 {
		t.Fatalf("duplicate groups = %d, want the batch limit of 2", rep.DuplicateGroups)
	}
}

func TestExpectedToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tenant, table, want string
	}{
		{"", "", "reconcile --all"},
		{"acme", "tickets", "reconcile acme/tickets"},
		{"acme", "", "reconcile acme/*"},
		{"", "tickets", "reconcile */tickets"},
	}
	for _, c := range cases {
		if got := domain.ExpectedToken(c.tenant, c.table); got != c.want {
			t.Errorf("ExpectedToken(%q, %q) = %q, want %q", c.tenant, c.table, got, c.want)
		}
	}
}
