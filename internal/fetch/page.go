package fetch

import (
	bq "github.com/dvloznov/promotion-consumer/internal/bigquery"
	"github.com/dvloznov/promotion-consumer/internal/domain"
)

// PageRequest asks for one page of the promotion query. The zero value, as
// returned by FirstPage, submits the query.
type PageRequest struct {
	job    bq.QueryJob
	cursor string
	number int
}

// FirstPage requests page 1 of a new query.
func FirstPage() PageRequest {
	return PageRequest{number: 1}
}

// NextPage requests the page that follows prev, on the same query job.
func NextPage(prev *PageResponse) PageRequest {
	return PageRequest{job: prev.Job, cursor: prev.NextCursor, number: prev.Number + 1}
}

// IsFirst reports whether the request will submit a new query.
func (r PageRequest) IsFirst() bool { return r.job == nil }

// Number is the 1-based page number.
func (r PageRequest) Number() int {
	if r.number == 0 {
		return 1
	}
	return r.number
}

// PageResponse is one decoded page.
type PageResponse struct {
	Job        bq.QueryJob
	Number     int
	Details    []domain.TransactionDetail
	NextCursor string
}

// HasNext reports whether another page follows.
func (p *PageResponse) HasNext() bool { return p.NextCursor != "" }
