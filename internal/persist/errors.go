package persist

import (
	"context"
	"errors"
	"net"

	"github.com/dvloznov/promotion-consumer/internal/metrics"
	"github.com/jackc/pgx/v5/pgconn"
)

// DatabaseConnectionError means the store could not be reached or timed out.
type DatabaseConnectionError struct {
	Err error
}

func (e *DatabaseConnectionError) Error() string {
	return "database connection error: " + e.Err.Error()
}

func (e *DatabaseConnectionError) Unwrap() error { return e.Err }

// DatabaseOperationError is any other persistence failure.
type DatabaseOperationError struct {
	Err error
}

func (e *DatabaseOperationError) Error() string {
	return "database operation error: " + e.Err.Error()
}

func (e *DatabaseOperationError) Unwrap() error { return e.Err }

// classify wraps err as a connectivity or an operation failure.
func classify(err error) error {
	if isConnectionError(err) {
		return &DatabaseConnectionError{Err: err}
	}
	return &DatabaseOperationError{Err: err}
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ErrorCode maps a persistence error to its metrics error code.
func ErrorCode(err error) string {
	var connErr *DatabaseConnectionError
	if errors.As(err, &connErr) {
		return metrics.CodeDBConnection
	}
	return metrics.CodePersistence
}
