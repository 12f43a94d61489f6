package fetch

import (
	"errors"
	"fmt"

	"github.com/dvloznov/promotion-consumer/internal/metrics"
)

// ErrQueryJobNotFound is returned when submitting the query yields no job.
var ErrQueryJobNotFound = errors.New("query job not found")

// QueryErrorKind says at which stage a fetch failed.
type QueryErrorKind string

const (
	KindSubmit       QueryErrorKind = "submit"
	KindJobNotFound  QueryErrorKind = "job-not-found"
	KindJobExecution QueryErrorKind = "job-execution"
	KindPageRead     QueryErrorKind = "page-read"
	KindMapping      QueryErrorKind = "mapping"
)

// QueryError is any failure of the warehouse query or of decoding its rows.
// All of them are fatal to a run.
type QueryError struct {
	Kind  QueryErrorKind
	JobID string
	Page  int
	Err   error
}

func (e *QueryError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("fetch: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch: %s (job %s, page %d): %v", e.Kind, e.JobID, e.Page, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Code maps the error to its metrics error code.
func (e *QueryError) Code() string {
	switch e.Kind {
	case KindJobNotFound:
		return metrics.CodeGcpQueryJobCreate
	case KindMapping:
		return metrics.CodeGcpMapping
	default:
		return metrics.CodeGcpQuery
	}
}
