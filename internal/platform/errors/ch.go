package errors

// ClickHouse-specific helpers mirroring pg.go: classify driver exceptions into
// project ErrorCodes and decide retryability at the staging/commit boundary

import (
	"context"
	stderrs "errors"
	"net"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Server exception codes we care about (ClickHouse ErrorCodes.cpp numbering)
const (
	chErrTimeoutExceeded          = 159
	chErrTooManySimultaneousConns = 202
	chErrSocketTimeout            = 209
	chErrNetworkError             = 210
	chErrTableAlreadyExists       = 57
	chErrUnknownTable             = 60
	chErrMemoryLimitExceeded      = 241
	chErrTooManyParts             = 252
	chErrReadonly                 = 164
)

// ExtractCHException returns (*clickhouse.Exception, true) if the root cause is
// a server-side ClickHouse exception
func ExtractCHException(err error) (*clickhouse.Exception, bool) {
	var ex *clickhouse.Exception
	if stderrs.As(Root(err), &ex) {
		return ex, true
	}
	return nil, false
}

// IsCHTableExists reports whether the error is a "table already exists" server
// exception. The staging loader treats this as a collision defect signal
func IsCHTableExists(err error) bool {
	ex, ok := ExtractCHException(err)
	return ok && ex.Code == chErrTableAlreadyExists
}

// IsCHUnknownTable reports whether the error names a missing table
func IsCHUnknownTable(err error) bool {
	ex, ok := ExtractCHException(err)
	return ok && ex.Code == chErrUnknownTable
}

// CHErrorCode maps a ClickHouse error to an ErrorCode with an ok flag
func CHErrorCode(err error) (ErrorCode, bool) {
	ex, ok := ExtractCHException(err)
	if !ok {
		return ErrorCodeUnknown, false
	}
	switch ex.Code {
	case chErrTableAlreadyExists:
		return ErrorCodeStagingCollision, true
	case chErrUnknownTable:
		return ErrorCodeNotFound, true
	case chErrTimeoutExceeded, chErrSocketTimeout, chErrNetworkError,
		chErrTooManySimultaneousConns, chErrMemoryLimitExceeded, chErrTooManyParts, chErrReadonly:
		return ErrorCodeUnavailable, true
	}
	return ErrorCodeDB, true
}

// FromClickhouse wraps a ClickHouse error with a mapped ErrorCode and message.
// If err is nil, returns nil
func FromClickhouse(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := CHErrorCode(err); ok {
		return Wrap(err, code, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// IsCHRetryable reports whether a ClickHouse error represents transient
// throttling or connectivity trouble. Logical errors (bad SQL, type mismatch,
// missing table) are never retryable
func IsCHRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}

	root := Root(err)

	var ex *clickhouse.Exception
	if stderrs.As(root, &ex) {
		switch int(ex.Code) {
		case chErrTimeoutExceeded, chErrSocketTimeout, chErrNetworkError,
			chErrTooManySimultaneousConns, chErrMemoryLimitExceeded, chErrTooManyParts, chErrReadonly:
			return true
		default:
			return false
		}
	}

	var nerr net.Error
	if stderrs.As(root, &nerr) {
		return true
	}

	s := strings.ToLower(root.Error())
	switch {
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "i/o timeout"),
		strings.Contains(s, "acquire conn timeout"):
		return true
	default:
		return false
	}
}
