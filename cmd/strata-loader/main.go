package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"strconv"

	"strata/internal/modkit"
	"strata/internal/modkit/module"
	"strata/internal/platform/config"
	"strata/internal/platform/logger"
	"strata/internal/platform/store"

	loaderdom "strata/internal/services/loader/domain"
	loadermod "strata/internal/services/loader/module"
)

// batchFile is the on-disk shape of one staged batch
type batchFile struct {
	TenantID  string                      `json:"tenant_id"`
	TableName string                      `json:"table_name"`
	Batches   []loaderdom.BatchDescriptor `json:"batches"`
	Records   []loaderdom.BusinessRecord  `json:"records"`
}

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()
	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
		CH: store.CHConfig{
			Enabled:    true,
			URL:        chCfg.MustString("DBURL"),
			ClientName: "strata",
			ClientRole: "loader",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var (
		fWorkers    = flag.Int("workers", 0, "override worker concurrency for multi-batch runs")
		fRetries    = flag.Int("retries", -1, "override transient retry attempts")
		fLeases     = flag.Bool("leases", false, "claim an advisory lease per tenant table before loading")
		fWatermarks = flag.String("watermarks", "", "list watermarks for the given tenant (or * for all) and exit")
	)
	flag.Parse()

	if *fWorkers > 0 {
		mustSetEnv("STRATA_LOADER_WORKERS", strconv.Itoa(*fWorkers))
	}
	if *fRetries >= 0 {
		mustSetEnv("STRATA_LOADER_RETRIES", strconv.Itoa(*fRetries))
	}
	if *fLeases {
		mustSetEnv("STRATA_LOADER_LEASES", "1")
	}

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	ld := loadermod.New(deps)
	module.Register(ld.Name(), ld.Ports())
	runner := module.MustPortsOf[loaderdom.RunnerPort](ld)

	ctx := context.Background()

	if *fWatermarks != "" {
		tenant := *fWatermarks
		if tenant == "*" {
			tenant = ""
		}
		marks, err := runner.Watermarks(ctx, tenant)
		if err != nil {
			l.Fatal().Err(err).Msg("listing watermarks failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(marks); err != nil {
			l.Fatal().Err(err).Msg("encoding watermarks failed")
		}
		return
	}

	paths := flag.Args()
	if len(paths) == 0 {
		l.Fatal().Msg("no batch files given; pass one or more JSON batch files (or - for stdin)")
	}

	batches := make([]loaderdom.TableBatch, 0, len(paths))
	for _, p := range paths {
		bf, err := readBatchFile(p)
		if err != nil {
			l.Fatal().Err(err).Str("path", p).Msg("reading batch file failed")
		}
		batches = append(batches, loaderdom.TableBatch{
			TenantID:    bf.TenantID,
			TableName:   bf.TableName,
			Descriptors: bf.Batches,
			Records:     bf.Records,
		})
	}

	if len(batches) == 1 {
		b := batches[0]
		res, err := runner.Process(ctx, b.TenantID, b.TableName, b.Descriptors, b.Records)
		if err != nil {
			l.Fatal().Err(err).Str("tenant", b.TenantID).Str("table", b.TableName).Msg("load failed")
		}
		report(l, b, res)
		return
	}

	results, err := runner.ProcessAll(ctx, batches)
	if err != nil {
		l.Fatal().Err(err).Msg("one or more loads failed")
	}
	for i, res := range results {
		report(l, batches[i], res)
	}
}

func readBatchFile(path string) (batchFile, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return batchFile{}, err
	}
	var bf batchFile
	if err := json.Unmarshal(raw, &bf); err != nil {
		return batchFile{}, err
	}
	return bf, nil
}

func report(l *logger.Logger, b loaderdom.TableBatch, res loaderdom.ProcessResult) {
	l.Info().
		Str("tenant", b.TenantID).
		Str("table", b.TableName).
		Str("outcome", res.Outcome.String()).
		Int("inserted", res.RowsInserted).
		Int("closed", res.RowsClosed).
		Int("excluded", res.RowsExcluded).
		Str("reason", res.Reason).
		Msg("load finished")
}
