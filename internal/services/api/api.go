// Package api composes the HTTP surface for the engine: health and readiness,
// watermark inspection, and dry-run reconciliation reports
package api

import (
	"strings"
	"time"

	"strata/internal/modkit"
	"strata/internal/modkit/httpkit"
	"strata/internal/modkit/module"
	"strata/internal/platform/config"
	"strata/internal/platform/logger"
	phttp "strata/internal/platform/net/http"
	"strata/internal/platform/net/middleware"
	"strata/internal/platform/store"

	opsmod "strata/internal/services/api/ops/module"
	loaderdom "strata/internal/services/loader/domain"
	loadermod "strata/internal/services/loader/module"
	recdom "strata/internal/services/reconcile/domain"
	reconcilemod "strata/internal/services/reconcile/module"
)

// Options are the API options
type Options struct {
	Config config.Conf
	Store  *store.Store
	Logger *logger.Logger
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	deps := modkit.Deps{
		Log: *opt.Logger,
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}

	// worker modules first so their ports can feed the ops surface
	ldr := loadermod.New(deps)
	rec := reconcilemod.New(deps)
	module.Register(ldr.Name(), ldr.Ports())
	module.Register(rec.Name(), rec.Ports())

	ops := opsmod.New(
		deps,
		module.MustPortsOf[loaderdom.RunnerPort](ldr),
		module.MustPortsOf[recdom.ReconcilerPort](rec),
	)

	stack := append(
		middleware.Defaults(),
		middleware.Heartbeat("/ping"),
		middleware.RecoverJSON,
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 2 * time.Second}),
	)
	apiCfg := opt.Config.Prefix("STRATA_API_")
	if origins := apiCfg.MayString("CORS_ORIGINS", ""); origins != "" {
		stack = append(stack, middleware.CORS(middleware.CORSOptions{
			AllowedOrigins: strings.Split(origins, ","),
		}))
	}
	httpkit.MountUnder(r, "/", stack, func(api httpkit.Router) {
		ops.MountRoutes(api)
	})
}
