// Package service implements the reconciliation engine: the out-of-band
// repair path for duplicate and invariant-violating rows left behind by races
// that predate the gate or slipped through it. Dry-run is the default;
// deletion requires the exact confirmation token for the requested scope.
package service

import (
	"context"

	perr "strata/internal/platform/errors"
	"strata/internal/platform/logger"
	"strata/internal/services/reconcile/domain"
)

// Config holds configuration options for the reconciliation engine
type Config struct {
	// BatchLimit caps groups per pass per table when the request gives none
	BatchLimit int

	// SampleLimit caps sample groups carried in the report
	SampleLimit int
}

// Service implements domain.ReconcilerPort
type Service struct {
	Store domain.StoreRepo
	Cfg   Config
}

// New constructs the reconciliation service
func New(store domain.StoreRepo, cfg Config) *Service {
	if store == nil {
		panic("reconcile.Service requires a non nil StoreRepo")
	}
	return &Service{Store: store, Cfg: cfg}
}

// Reconcile runs the exact-duplicate and invariant-violation passes over the
// requested scope. Token validation happens before any store mutation so a
// bad token can never produce a partial repair.
func (s *Service) Reconcile(ctx context.Context, req domain.Request) (domain.Report, error) {
	if !req.DryRun {
		want := domain.ExpectedToken(req.TenantID, req.TableName)
		if req.ConfirmationToken != want {
			return domain.Report{}, perr.Confirmationf(
				"destructive reconcile requires the exact confirmation token %q", want)
		}
	}

	limit := req.BatchLimit
	if limit <= 0 {
		limit = s.Cfg.BatchLimit
	}
	if limit <= 0 {
		limit = 500
	}
	sampleLimit := s.Cfg.SampleLimit
	if sampleLimit <= 0 {
		sampleLimit = 5
	}

	tables, err := s.resolveTables(ctx, req.TableName)
	if err != nil {
		return domain.Report{}, err
	}

	report := domain.Report{DryRun: req.DryRun}
	log := logger.C(ctx)

	for _, table := range tables {
		tr := domain.TableReport{TableName: table}

		before, err := s.Store.CountRows(ctx, table, req.TenantID)
		if err != nil {
			return report, err
		}
		tr.RowsBefore = before

		dups, err := s.Store.DuplicateGroups(ctx, table, req.TenantID, limit)
		if err != nil {
			return report, err
		}
		viols, err := s.Store.ViolationGroups(ctx, table, req.TenantID, limit)
		if err != nil {
			return report, err
		}
		tr.DuplicateGroups = len(dups)
		tr.ViolationGroups = len(viols)

		doomed := make([]string, 0, len(dups)+len(viols))
		for _, g := range dups {
			doomed = append(doomed, retainFirst(g)...)
		}
		for _, g := range viols {
			doomed = append(doomed, retainCurrent(g)...)
		}

		for _, g := range dups {
			if len(report.Samples) < sampleLimit {
				report.Samples = append(report.Samples, g)
			}
		}
		for _, g := range viols {
			if len(report.Samples) < sampleLimit {
				report.Samples = append(report.Samples, g)
			}
		}

		if req.DryRun {
			tr.RowsAfter = before
		} else if len(doomed) > 0 {
			if err := s.Store.DeleteRows(ctx, table, doomed); err != nil {
				return report, err
			}
			tr.RowsRemoved = len(doomed)
			after, err := s.Store.CountRows(ctx, table, req.TenantID)
			if err != nil {
				return report, err
			}
			tr.RowsAfter = after
		} else {
			tr.RowsAfter = before
		}

		log.Info().
			Str("table_name", table).
			Bool("dry_run", req.DryRun).
			Int("duplicate_groups", tr.DuplicateGroups).
			Int("violation_groups", tr.ViolationGroups).
			Int("rows_removed", tr.RowsRemoved).
			Uint64("rows_before", tr.RowsBefore).
			Uint64("rows_after", tr.RowsAfter).
			Msg("reconcile pass finished")

		report.Tables = append(report.Tables, tr)
		report.DuplicateGroups += tr.DuplicateGroups
		report.ViolationGroups += tr.ViolationGroups
		report.RowsRemoved += tr.RowsRemoved
		report.RowsBefore += tr.RowsBefore
		report.RowsAfter += tr.RowsAfter
	}

	return report, nil
}

func (s *Service) resolveTables(ctx context.Context, table string) ([]string, error) {
	if table != "" {
		return []string{table}, nil
	}
	tables, err := s.Store.Tables(ctx)
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// retainFirst keeps the first member under the tie-break ordering (earliest
// effective date, then lowest row id) and dooms the rest
func retainFirst(g domain.Group) []string {
	if len(g.Members) <= 1 {
		return nil
	}
	keep := 0
	for i := 1; i < len(g.Members); i++ {
		if less(g.Members[i], g.Members[keep]) {
			keep = i
		}
	}
	out := make([]string, 0, len(g.Members)-1)
	for i, m := range g.Members {
		if i != keep {
			out = append(out, m.RowID)
		}
	}
	return out
}

// retainCurrent keeps the is_current members and dooms the conflicting
// closed members the race left behind
func retainCurrent(g domain.Group) []string {
	var out []string
	for _, m := range g.Members {
		if !m.IsCurrent {
			out = append(out, m.RowID)
		}
	}
	// a group that is all closed rows is not this pass's business
	if len(out) == len(g.Members) {
		return nil
	}
	return out
}

func less(a, b domain.Member) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.Before(b.EffectiveDate)
	}
	return a.RowID < b.RowID
}
