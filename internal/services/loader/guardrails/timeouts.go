// Package guardrails holds cross cutting safety helpers for the loader
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for one batch of work.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Batch is the overall time budget for one Process invocation
	Batch time.Duration

	// Stage caps the staging write step
	Stage time.Duration

	// Commit caps the atomic publish step
	Commit time.Duration

	// DB caps watermark and run ledger writes
	DB time.Duration
}

// WithBatch returns a context limited by the batch budget without extending any parent deadline
func WithBatch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Batch)
}

// ForStage returns a sub context for the staging phase
func ForStage(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Stage)
}

// ForCommit returns a sub context for the publish phase
func ForCommit(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Commit)
}

// ForDB returns a sub context for ledger writes
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// Never extends the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
