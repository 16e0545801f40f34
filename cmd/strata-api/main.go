package main

import (
	"context"

	"strata/internal/platform/config"
	"strata/internal/platform/logger"
	phttp "strata/internal/platform/net/http"
	"strata/internal/platform/store"

	"strata/internal/services/api"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("STRATA_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()

	st, err := store.Open(
		context.Background(),
		store.Config{
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
				ClientRole: "api",
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// http server (reads STRATA_API_PORT)
	srv := phttp.NewServer(apiCfg)

	api.Mount(srv.Router(), api.Options{
		Config: root,
		Store:  st,
		Logger: l,
	})

	if err := srv.Run(context.Background()); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
