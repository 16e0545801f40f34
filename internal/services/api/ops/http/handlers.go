// Package http provides the operational endpoints: health, watermarks and
// dry-run reconciliation reports
package http

import (
	stdctx "context"
	"net/http"
	"time"

	"strata/internal/modkit/httpkit"
	loaderdom "strata/internal/services/loader/domain"
	recdom "strata/internal/services/reconcile/domain"
)

// Pinger is satisfied by adapters that expose Ping
type Pinger interface {
	Ping(stdctx.Context) error
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	PG          any
	CH          any

	Loader     loaderdom.RunnerPort
	Reconciler recdom.ReconcilerPort
}

type handlers struct {
	deps Deps
}

// Register mounts the operational routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d}

	httpkit.Get(r, "/healthz", h.health)
	httpkit.Get(r, "/readyz", h.ready)
	httpkit.Get(r, "/v1/watermarks", h.watermarks)
	httpkit.PostJSON(r, "/v1/reconcile", h.reconcile)
}

// HealthResponse is the health payload
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Started string `json:"started"`
	Now     string `json:"now"`
}

// ReadyCheck describes a single dependency check
type ReadyCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok fail skipped unknown
	Error  string `json:"error,omitempty"`
}

// ReadyResponse summarizes readiness
type ReadyResponse struct {
	Status string       `json:"status"` // ok degraded
	Checks []ReadyCheck `json:"checks"`
	Now    string       `json:"now"`
}

// ReconcileRequest is the dry-run report request. Destructive execution is
// CLI-only, so there is no confirmation token field here on purpose.
type ReconcileRequest struct {
	TenantID   string `json:"tenant_id,omitempty" validate:"omitempty,ident_name"`
	TableName  string `json:"table_name,omitempty" validate:"omitempty,ident_name"`
	BatchLimit int    `json:"batch_limit,omitempty" validate:"omitempty,min=1,max=10000"`
}

func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Now:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *handlers) ready(_ *http.Request) (any, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 2*time.Second)
	defer cancel()

	check := func(name string, c any) ReadyCheck {
		if c == nil {
			return ReadyCheck{Name: name, Status: "skipped"}
		}
		if p, ok := c.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return ReadyCheck{Name: name, Status: "fail", Error: err.Error()}
			}
			return ReadyCheck{Name: name, Status: "ok"}
		}
		return ReadyCheck{Name: name, Status: "unknown"}
	}

	checks := []ReadyCheck{check("pg", h.deps.PG), check("ch", h.deps.CH)}
	status := "ok"
	for _, c := range checks {
		if c.Status == "fail" {
			status = "degraded"
		}
	}
	return ReadyResponse{
		Status: status,
		Checks: checks,
		Now:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *handlers) watermarks(r *http.Request) (any, error) {
	tenant := r.URL.Query().Get("tenant")
	return h.deps.Loader.Watermarks(r.Context(), tenant)
}

func (h *handlers) reconcile(r *http.Request, in ReconcileRequest) (any, error) {
	return h.deps.Reconciler.Reconcile(r.Context(), recdom.Request{
		TenantID:   in.TenantID,
		TableName:  in.TableName,
		DryRun:     true,
		BatchLimit: in.BatchLimit,
	})
}
