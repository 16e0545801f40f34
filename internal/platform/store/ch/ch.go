// Package ch provides a clickhouse client over the native protocol
package ch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures clickhouse connectivity
type Config struct {
	URL string

	// ClientName/ClientRole are surfaced in system.query_log via client info
	ClientName string
	ClientRole string

	DialTimeout time.Duration
}

// Rows is the minimal result set iteration surface repos depend on
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
	Columns() []string
}

// CH is the clickhouse client
type CH struct {
	conn driver.Conn
}

// openConn is a seam for tests
var openConn = clickhouse.Open

// Open parses the DSN and connects
func Open(ctx context.Context, cfg Config) (*CH, error) {
	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	opts.ClientInfo = BuildClientInfo(cfg.ClientRole, cfg.ClientName)

	conn, err := openConn(opts)
	if err != nil {
		return nil, err
	}
	return &CH{conn: conn}, nil
}

// Insert writes rows into table via a single prepared batch.
// One batch send produces one part, so the write is all-or-nothing
// relative to readers
func (c *CH) Insert(ctx context.Context, table string, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(cols, ", "))
	batch, err := c.conn.PrepareBatch(ctx, stmt)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}

// Query runs a query and returns ch.Rows
func (c *CH) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rs, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return driverRows{r: rs}, nil
}

// Exec runs DDL or a mutation statement
func (c *CH) Exec(ctx context.Context, sql string, args ...any) error {
	return c.conn.Exec(ctx, sql, args...)
}

// Ping verifies connectivity
func (c *CH) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// Close closes the connection pool
func (c *CH) Close() error { return c.conn.Close() }

// driverRows adapts driver.Rows to the ch.Rows surface
type driverRows struct{ r driver.Rows }

func (d driverRows) Next() bool            { return d.r.Next() }
func (d driverRows) Scan(dst ...any) error { return d.r.Scan(dst...) }
func (d driverRows) Err() error            { return d.r.Err() }
func (d driverRows) Close() error          { return d.r.Close() }
func (d driverRows) Columns() []string     { return d.r.Columns() }
