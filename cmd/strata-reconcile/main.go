package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"strata/internal/modkit"
	"strata/internal/modkit/module"
	"strata/internal/platform/config"
	"strata/internal/platform/logger"
	"strata/internal/platform/store"

	recdom "strata/internal/services/reconcile/domain"
	recmod "strata/internal/services/reconcile/module"
)

func main() {
	root := config.New()
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()
	st, err := store.Open(context.Background(), store.Config{
		CH: store.CHConfig{
			Enabled:    true,
			URL:        chCfg.MustString("DBURL"),
			ClientName: "strata",
			ClientRole: "reconcile",
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
		fTenant  = flag.String("tenant", "", "tenant scope, empty for all tenants")
		fTable   = flag.String("table", "", "table scope, empty for all tables")
		fExecute = flag.Bool("execute", false, "actually delete; default is a dry run report")
		fConfirm = flag.String("confirm", "", "confirmation token, required with -execute")
		fLimit   = flag.Int("limit", 0, "max offending groups handled per table per pass")
	)
	flag.Parse()

	if *fExecute && *fConfirm == "" {
		wanted := recdom.ExpectedToken(*fTenant, *fTable)
		l.Fatal().Str("wanted", wanted).Msg("-execute requires -confirm with the exact confirmation token")
	}

	deps := modkit.Deps{
		Cfg: root,
		CH:  st.CH,
		Log: *l,
	}

	rm := recmod.New(deps)
	module.Register(rm.Name(), rm.Ports())
	reconciler := module.MustPortsOf[recdom.ReconcilerPort](rm)

	report, err := reconciler.Reconcile(context.Background(), recdom.Request{
		TenantID:          *fTenant,
		TableName:         *fTable,
		DryRun:            !*fExecute,
		ConfirmationToken: *fConfirm,
		BatchLimit:        *fLimit,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("reconcile failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		l.Fatal().Err(err).Msg("encoding report failed")
	}
}
