// Package module provides the reconcile module implementation
package module

import (
	"strata/internal/modkit"
	phttp "strata/internal/platform/net/http"
	"strata/internal/services/reconcile/domain"
	"strata/internal/services/reconcile/repo"
	"strata/internal/services/reconcile/service"
)

// Ports defines the reconcile module ports
type Ports struct {
	Reconciler domain.ReconcilerPort
}

// Module implements the reconcile module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New wires the repo and service using config from deps.Cfg
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	svc := service.New(repo.NewCH(deps.CH), service.Config{
		BatchLimit:  opts.BatchLimit,
		SampleLimit: opts.SampleLimit,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Reconciler: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "reconcile" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as reconcile has no routes of its own
func (m *Module) MountRoutes(_ phttp.Router) {}
