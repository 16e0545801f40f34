package guardrails

import (
	"context"
	"errors"
	"time"

	"strata/internal/modkit"
	"strata/internal/platform/store"
)

// ErrLeaseHeld signals another worker owns the tenant table right now.
var ErrLeaseHeld = errors.New("loader: tenant table lease already held")

// MakeAdvisoryLease returns a function that claims a short lived lease on a
// (tenant, table) pair before running do. The watermark gate, unique staging
// and atomic publish carry correctness on their own; the lease only trims the
// residual window where two workers both pass a stale gate. A held lease is a
// clean skip, never an error. Claims expire on their own so a crashed holder
// cannot wedge the pair.
func MakeAdvisoryLease(
	deps modkit.Deps,
	ttl time.Duration,
) func(ctx context.Context, tenant, table string, do func(context.Context) error) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return func(ctx context.Context, tenant, table string, do func(context.Context) error) error {
		var claimed bool
		err := deps.PG.Tx(ctx, func(q store.RowQuerier) error {
			rows, err := q.Query(ctx, `
				insert into load_leases (tenant_id, table_name, held_until)
				values ($1, $2, now() + $3)
				on conflict (tenant_id, table_name) do update
				set held_until = excluded.held_until
				where load_leases.held_until < now()
				returning true
			`, tenant, table, ttl)
			if err != nil {
				return err
			}
			defer rows.Close()
			if rows.Next() {
				claimed = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !claimed {
			return ErrLeaseHeld
		}
		return do(ctx)
	}
}
