// Package service implements the load engine: gate, stage, classify, merge,
// commit, advance. Correctness under concurrent workers comes from the
// watermark gate, collision-free staging names and the single-batch publish,
// with reconciliation as the out-of-band repair path. No locks are taken
// unless the optional advisory lease is enabled.
package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"strata/internal/core/scd2"
	"strata/internal/modkit/repokit"
	perr "strata/internal/platform/errors"
	"strata/internal/platform/logger"
	"strata/internal/platform/store"
	"strata/internal/services/loader/domain"
	"strata/internal/services/loader/guardrails"
	"strata/internal/services/loader/staging"
)

// Config holds configuration options for the loader service
type Config struct {
	// Concurrency across table batches; <=0 -> 1
	Workers int

	// Retry policy for transient store errors at the stage/commit boundary
	MaxRetries int           // attempts; <=0 -> 1
	RetryBase  time.Duration // base backoff; <=0 -> 500ms

	// Timeouts applied via guardrails
	BatchTimeout  time.Duration
	StageTimeout  time.Duration
	CommitTimeout time.Duration
	DBTimeout     time.Duration

	// Optional advisory lease per tenant table
	EnableLeases bool

	// RequiredFields must be present and non-null in every record's payload
	RequiredFields []string

	// ExcludedSampleLimit caps how many excluded entity ids each run logs
	ExcludedSampleLimit int
}

// Service implements domain.RunnerPort
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.LedgerRepo]
	Tables domain.TableRepo
	Cfg    Config

	// Lease(ctx, tenant, table, do) claims an advisory lease and runs do
	Lease func(ctx context.Context, tenant, table string, do func(context.Context) error) error

	// Now is a seam for staging identifiers; nil means time.Now
	Now func() time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New constructs the loader service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.LedgerRepo],
	tables domain.TableRepo,
	cfg Config,
	lease func(context.Context, string, string, func(context.Context) error) error,
) *Service {
	if db == nil {
		panic("loader.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("loader.Service requires a non nil Ledger binder")
	}
	if tables == nil {
		panic("loader.Service requires a non nil TableRepo")
	}
	return &Service{DB: db, Binder: binder, Tables: tables, Cfg: cfg, Lease: lease}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Process implements domain.RunnerPort
func (s *Service) Process(
	ctx context.Context, tenant, table string,
	descs []domain.BatchDescriptor, recs []domain.BusinessRecord,
) (domain.ProcessResult, error) {
	if !staging.ValidName(tenant) {
		return failed("invalid tenant name"), perr.InvalidArgf("invalid tenant name %q", tenant)
	}
	if !staging.ValidName(table) {
		return failed("invalid table name"), perr.InvalidArgf("invalid table name %q", table)
	}
	if len(descs) == 0 {
		return failed("no batch descriptors"), perr.InvalidArgf("no batch descriptors")
	}

	if s.Lease != nil && s.Cfg.EnableLeases {
		var res domain.ProcessResult
		err := s.Lease(ctx, tenant, table, func(ctx context.Context) error {
			var e error
			res, e = s.processGated(ctx, tenant, table, descs, recs)
			return e
		})
		if errors.Is(err, guardrails.ErrLeaseHeld) {
			// another worker owns the pair right now, its commit will move the mark
			return domain.ProcessResult{Outcome: domain.OutcomeSkipped}, nil
		}
		return res, err
	}
	return s.processGated(ctx, tenant, table, descs, recs)
}

func (s *Service) processGated(
	ctx context.Context, tenant, table string,
	descs []domain.BatchDescriptor, recs []domain.BusinessRecord,
) (domain.ProcessResult, error) {
	tos := guardrails.Timeouts{
		Batch:  s.Cfg.BatchTimeout,
		Stage:  s.Cfg.StageTimeout,
		Commit: s.Cfg.CommitTimeout,
		DB:     s.Cfg.DBTimeout,
	}
	ctx, cancel := guardrails.WithBatch(ctx, tos)
	defer cancel()
	ctx = store.WithTenant(ctx, tenant)

	// gate first, read-only: nothing newer than the mark means nothing to do
	mark, _, err := s.readWatermark(ctx, tos, tenant, table)
	if err != nil {
		return failed(err.Error()), err
	}
	gate := domain.DecideGate(mark, descs)
	if !gate.Process {
		logger.C(ctx).Debug().
			Str("tenant_id", tenant).Str("table_name", table).
			Time("watermark", mark).
			Msg("gate skip, all descriptors at or below the mark")
		return domain.ProcessResult{Outcome: domain.OutcomeSkipped}, nil
	}

	runID := uuid.NewString()
	ctx = logger.WithBatch(ctx, runID, tenant, table)
	ctx = store.WithRequestID(ctx, runID)
	logger.C(ctx).Debug().
		Int("descriptors", len(descs)).Int("newer", len(gate.Newer)).
		Time("watermark", mark).
		Msg("gate pass")
	// the full record set is staged even when only some descriptors are newer:
	// records from already-published descriptors classify as unchanged and
	// drop out of the plan, so re-staging them costs a hash, not a write
	return s.runBatch(ctx, tos, runID, tenant, table, gate.Newer, recs)
}

func (s *Service) runBatch(
	ctx context.Context, tos guardrails.Timeouts, runID, tenant, table string,
	newer []domain.BatchDescriptor, recs []domain.BusinessRecord,
) (res domain.ProcessResult, retErr error) {
	log := logger.C(ctx)
	startWall := time.Now()
	var stageMS, commitMS int
	var fin domain.RunFinish

	// run ledger start, best-effort
	{
		dbCtx, dbCancel := guardrails.ForDB(ctx, tos)
		_ = s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).StartRun(dbCtx, runID, tenant, table)
		})
		dbCancel()
	}

	defer func() {
		fin.ElapsedMS = int(time.Since(startWall).Milliseconds())
		fin.StageMS = stageMS
		fin.CommitMS = commitMS
		fin.Status = map[bool]string{true: "error", false: "ok"}[retErr != nil]
		if retErr != nil && fin.ErrText == "" {
			fin.ErrText = retErr.Error()
		}
		dbCtx, dbCancel := guardrails.ForDB(ctx, tos)
		_ = s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).FinishRun(dbCtx, runID, fin)
		})
		dbCancel()
	}()

	if err := s.Tables.EnsureTable(ctx, table); err != nil {
		return failed(err.Error()), err
	}

	// stage under a unique name; a collision is fatal, never retried
	stagingTable := staging.TableName(table, staging.NewID(s.now()))
	t0 := time.Now()
	stageCtx, stageCancel := guardrails.ForStage(ctx, tos)
	err := s.withRetry(stageCtx, func(c context.Context) error {
		if err := s.Tables.CreateStaging(c, stagingTable); err != nil {
			return err
		}
		return s.Tables.LoadStaging(c, stagingTable, tenant, recs)
	}, func(err error) bool {
		// a collision means the uniqueness guarantee broke somewhere, bail out
		return !perr.IsCode(err, perr.ErrorCodeStagingCollision)
	})
	stageCancel()
	stageMS = int(time.Since(t0).Milliseconds())
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeStagingCollision) {
			log.Error().Str("staging_table", stagingTable).Err(err).
				Msg("staging name collision, defect signal")
		}
		_ = s.Tables.DropStaging(ctx, stagingTable)
		return failed(err.Error()), err
	}
	defer func() {
		if derr := s.Tables.DropStaging(ctx, stagingTable); derr != nil {
			log.Warn().Str("staging_table", stagingTable).Err(derr).Msg("drop staging failed")
		}
	}()

	staged, err := s.Tables.ReadStaging(ctx, stagingTable)
	if err != nil {
		return failed(err.Error()), err
	}

	// per-row schema validation: excluded rows are counted and sampled, the
	// batch proceeds without them
	valid, excluded, samples := s.validateRows(staged)
	fin.Excluded = excluded
	if excluded > 0 {
		log.Warn().Int("excluded", excluded).Strs("sample_entities", samples).
			Msg("rows excluded by schema validation")
	}

	live, err := s.Tables.CurrentRows(ctx, tenant, table)
	if err != nil {
		return failed(err.Error()), err
	}

	cl := scd2.Classify(scd2.Dedup(valid), live)
	fin.Unchanged = cl.Unchanged
	plan := scd2.BuildPlan(cl)

	var inserted, closed int
	if !plan.Empty() {
		t1 := time.Now()
		commitCtx, commitCancel := guardrails.ForCommit(ctx, tos)
		err = s.withRetry(commitCtx, func(c context.Context) error {
			var cerr error
			inserted, closed, cerr = s.Tables.CommitPlan(c, tenant, table, plan)
			return cerr
		}, nil)
		commitCancel()
		commitMS = int(time.Since(t1).Milliseconds())
		if err != nil {
			// staging dropped by the deferred cleanup, watermark untouched,
			// the whole batch is safe to retry later
			return failed(err.Error()), err
		}
	}
	fin.Inserted = inserted
	fin.Closed = closed

	// advance the mark only after the publish is visible, to the newest
	// descriptor the gate let through
	newMark := maxModified(newer)
	{
		dbCtx, dbCancel := guardrails.ForDB(ctx, tos)
		err = s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).AdvanceWatermark(dbCtx, tenant, table, newMark)
		})
		dbCancel()
		if err != nil {
			// committed but not recorded: the next run re-derives from hashes
			// and lands on an empty plan, so surfacing the error is safe
			return failed(err.Error()), err
		}
	}

	log.Info().
		Int("inserted", inserted).Int("closed", closed).
		Int("unchanged", cl.Unchanged).Int("excluded", excluded).
		Time("watermark", newMark).
		Msg("batch committed")

	return domain.ProcessResult{
		Outcome:      domain.OutcomeCommitted,
		RowsInserted: inserted,
		RowsClosed:   closed,
		RowsExcluded: excluded,
	}, nil
}

// validateRows splits staged rows into mergeable candidates and exclusions
func (s *Service) validateRows(recs []domain.BusinessRecord) ([]scd2.Candidate, int, []string) {
	limit := s.Cfg.ExcludedSampleLimit
	if limit <= 0 {
		limit = 10
	}

	var cands []scd2.Candidate
	var excluded int
	var samples []string

	for _, rec := range recs {
		if err := validate.Struct(rec); err != nil {
			excluded++
			if len(samples) < limit {
				samples = append(samples, rec.EntityID)
			}
			continue
		}
		if missing := missingRequired(rec.Fields, s.Cfg.RequiredFields); missing != "" {
			excluded++
			if len(samples) < limit {
				samples = append(samples, rec.EntityID+" (missing "+missing+")")
			}
			continue
		}
		cands = append(cands, scd2.Candidate{
			EntityID:           rec.EntityID,
			SourceLastModified: rec.SourceLastModified,
			Fields:             rec.Fields,
		})
	}
	return cands, excluded, samples
}

func missingRequired(fields map[string]any, required []string) string {
	for _, f := range required {
		v, ok := fields[f]
		if !ok || v == nil {
			return f
		}
	}
	return ""
}

// ProcessAll fans table batches across a bounded worker pool
func (s *Service) ProcessAll(ctx context.Context, batches []domain.TableBatch) ([]domain.ProcessResult, error) {
	w := max(s.Cfg.Workers, 1)
	results := make([]domain.ProcessResult, len(batches))
	var fails int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, w)
	var next int64 = -1

	worker := func() {
		defer func() { <-sem; wg.Done() }()
		for {
			i := int(atomic.AddInt64(&next, 1))
			if i >= len(batches) {
				return
			}
			b := batches[i]
			res, err := s.Process(ctx, b.TenantID, b.TableName, b.Descriptors, b.Records)
			results[i] = res
			if err != nil {
				logger.C(ctx).Error().
					Str("tenant_id", b.TenantID).Str("table_name", b.TableName).
					Err(err).Msg("batch failed")
				atomic.AddInt64(&fails, 1)
			}
		}
	}

	for range w {
		select {
		case <-ctx.Done():
			wg.Wait()
			return results, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go worker()
	}
	wg.Wait()

	if fails > 0 {
		return results, errors.New("some batches failed")
	}
	return results, nil
}

// Watermarks implements domain.RunnerPort
func (s *Service) Watermarks(ctx context.Context, tenant string) ([]domain.Watermark, error) {
	var out []domain.Watermark
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		ws, e := s.Binder.Bind(q).ListWatermarks(ctx, tenant)
		if e != nil {
			return e
		}
		out = ws
		return nil
	})
	return out, err
}

func (s *Service) readWatermark(
	ctx context.Context, tos guardrails.Timeouts, tenant, table string,
) (time.Time, bool, error) {
	dbCtx, dbCancel := guardrails.ForDB(ctx, tos)
	defer dbCancel()
	var mark time.Time
	var ok bool
	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		m, found, e := s.Binder.Bind(q).GetWatermark(dbCtx, tenant, table)
		if e != nil {
			return e
		}
		mark, ok = m, found
		return nil
	})
	return mark, ok, err
}

// withRetry runs fn with bounded exponential backoff and jitter on transient
// errors. retryOK can veto a retry even when the error classifies as
// transient; nil means classification alone decides.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context) error, retryOK func(error) bool) error {
	attempts := max(s.Cfg.MaxRetries, 1)
	base := s.Cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	var last error
	for i := range attempts {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if !perr.Retryable(err) {
			return last
		}
		if retryOK != nil && !retryOK(err) {
			return last
		}
		if i == attempts-1 {
			break
		}

		d := min(base<<i, 30*time.Second)
		j := d/2 + time.Duration(rand.Int63n(int64(d/2)))
		if se := sleepCtx(ctx, j); se != nil {
			return se
		}
	}
	return last
}

func maxModified(descs []domain.BatchDescriptor) time.Time {
	var m time.Time
	for _, d := range descs {
		if d.ModifiedAt.After(m) {
			m = d.ModifiedAt
		}
	}
	return m.UTC()
}

func failed(reason string) domain.ProcessResult {
	return domain.ProcessResult{Outcome: domain.OutcomeFailed, Reason: reason}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
