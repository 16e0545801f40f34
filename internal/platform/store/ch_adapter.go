package store

import (
	"context"
	"errors"

	"strata/internal/platform/store/ch"
)

// newCHAdapter wraps an existing *ch.CH and returns the store.Columnar seam
func newCHAdapter(c *ch.CH) Columnar {
	return &columnarAdapter{inner: c}
}

// columnarAdapter adapts *ch.CH to the store.Columnar interface
type columnarAdapter struct {
	inner *ch.CH
}

var _ Columnar = (*columnarAdapter)(nil)

func (a *columnarAdapter) Insert(ctx context.Context, table string, cols []string, rows [][]any) error {
	return a.inner.Insert(ctx, table, cols, rows)
}

func (a *columnarAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	r, err := a.inner.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &chRowsAdapter{r: r}, nil
}

func (a *columnarAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	return a.inner.Exec(ctx, sql, args...)
}

func (a *columnarAdapter) Close() error { return a.inner.Close() }

// Ping verifies connectivity with ClickHouse
func (a *columnarAdapter) Ping(ctx context.Context) error {
	if a == nil || a.inner == nil {
		return errors.New("store: nil clickhouse adapter")
	}
	return a.inner.Ping(ctx)
}

// chRowsAdapter wraps ch.Rows as store.Rows
type chRowsAdapter struct {
	r ch.Rows
}

func (r *chRowsAdapter) Next() bool             { return r.r.Next() }
func (r *chRowsAdapter) Scan(dest ...any) error { return r.r.Scan(dest...) }
func (r *chRowsAdapter) Err() error             { return r.r.Err() }
func (r *chRowsAdapter) Close()                 { _ = r.r.Close() }
func (r *chRowsAdapter) Columns() []string      { return r.r.Columns() }
