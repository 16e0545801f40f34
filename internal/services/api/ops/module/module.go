// Package module provides the ops module implementation
package module

import (
	"time"

	"strata/internal/modkit"
	phttp "strata/internal/platform/net/http"

	ophttp "strata/internal/services/api/ops/http"
	loaderdom "strata/internal/services/loader/domain"
	recdom "strata/internal/services/reconcile/domain"
)

// Module implements the ops module. It owns no state of its own and exposes
// health, watermark and dry-run reconcile endpoints over the wired ports.
type Module struct {
	deps     modkit.Deps
	httpDeps ophttp.Deps
}

// New wires the ops module over the loader and reconciler ports
func New(deps modkit.Deps, loader loaderdom.RunnerPort, rec recdom.ReconcilerPort) *Module {
	name := deps.Cfg.MayString("SERVICE_NAME", "strata-api")
	return &Module{
		deps: deps,
		httpDeps: ophttp.Deps{
			ServiceName: name,
			StartedAt:   time.Now(),
			PG:          deps.PG,
			CH:          deps.CH,
			Loader:      loader,
			Reconciler:  rec,
		},
	}
}

// Name returns the module name
func (m *Module) Name() string { return "ops" }

// Ports returns the module ports (none)
func (m *Module) Ports() any { return nil }

// Prefix returns the module mount prefix
func (m *Module) Prefix() string { return "" }

// MountRoutes mounts the ops routes at the router root
func (m *Module) MountRoutes(r phttp.Router) { ophttp.Register(r, m.httpDeps) }
