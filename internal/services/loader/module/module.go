// Package module provides the loader module implementation
package module

import (
	"strata/internal/modkit"
	"strata/internal/modkit/repokit"
	phttp "strata/internal/platform/net/http"

	"strata/internal/services/loader/domain"
	"strata/internal/services/loader/guardrails"
	"strata/internal/services/loader/repo"
	"strata/internal/services/loader/service"
)

// Ports defines the loader module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the loader module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New wires repos and the service using config from deps.Cfg.
// It does not mount any routes.
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	ledgerBinder := repo.NewPG()
	tables := repo.NewCH(deps.CH)
	leaseFn := guardrails.MakeAdvisoryLease(deps, opts.LeaseTTL)

	svc := service.New(
		repokit.TxRunner(deps.PG), ledgerBinder, tables,
		service.Config{
			Workers:        opts.Workers,
			MaxRetries:     opts.MaxRetries,
			RetryBase:      opts.RetryBase,
			BatchTimeout:   opts.BatchTimeout,
			StageTimeout:   opts.StageTimeout,
			CommitTimeout:  opts.CommitTimeout,
			DBTimeout:      opts.DBTimeout,
			EnableLeases:   opts.EnableLeases,
			RequiredFields: opts.RequiredFields,
		},
		leaseFn,
	)

	m := &Module{deps: deps}
	m.ports = Ports{Runner: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "loader" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as the loader has no routes
func (m *Module) MountRoutes(_ phttp.Router) {}
