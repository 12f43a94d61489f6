package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/promotion-consumer/internal/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// DateTimeLayout is the wire format of the DATETIME query parameters.
const DateTimeLayout = "2006-01-02 15:04:05.000000"

const promotionQueryTemplate = "SELECT ARRAY_AGG(STRUCT(" +
	"first_reported_tmstp, business_origin, item_transaction_line_id, discount, " +
	"reversal_flag, tran_type_code, line_item_activity_type_code, store_num)) AS details, " +
	"business_date, global_tran_id " +
	"FROM `%s` " +
	"WHERE business_origin IN UNNEST(@businessOrigin) " +
	"AND first_reported_tmstp >= @startDate " +
	"AND first_reported_tmstp < @endDate " +
	"GROUP BY global_tran_id, business_date"

// PromotionQuerySQL renders the promotion fetch query against table.
func PromotionQuerySQL(table TableRef) string {
	return fmt.Sprintf(promotionQueryTemplate, table.FullyQualified())
}

// ToQueryDateTime converts t to a UTC DATETIME with microsecond precision.
func ToQueryDateTime(t time.Time) civil.DateTime {
	return civil.DateTimeOf(t.UTC().Truncate(time.Microsecond))
}

// PromotionQueryParameters builds the named parameters of the promotion query.
func PromotionQueryParameters(pq PromotionQuery) []bigquery.QueryParameter {
	origins := make([]string, len(pq.Origins))
	copy(origins, pq.Origins)
	return []bigquery.QueryParameter{
		{Name: "businessOrigin", Value: origins},
		{Name: "startDate", Value: ToQueryDateTime(pq.Start)},
		{Name: "endDate", Value: ToQueryDateTime(pq.End)},
	}
}

// SubmitPromotionQueryWithClient starts the promotion query under a fresh
// random job id and returns the job without waiting for it.
func SubmitPromotionQueryWithClient(ctx context.Context, client *bigquery.Client, table TableRef, location string, pq PromotionQuery) (*bigquery.Job, error) {
	q := client.Query(PromotionQuerySQL(table))
	q.Parameters = PromotionQueryParameters(pq)
	q.JobID = uuid.NewString()
	q.Location = location

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("SubmitPromotionQuery: running query: %w", err)
	}
	if job == nil {
		return nil, bq.ErrNoJob
	}
	return job, nil
}

// WaitForJob blocks until job is done and returns the job's own error, if any.
func WaitForJob(ctx context.Context, job *bigquery.Job) error {
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("WaitForJob: waiting for job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("WaitForJob: job %s failed: %w", job.ID(), err)
	}
	return nil
}

// ReadPromotionPage reads a single page of at most pageSize rows from a
// completed job, starting at cursor. It returns the rows and the cursor of
// the next page ("" when the result set is exhausted).
func ReadPromotionPage(ctx context.Context, job *bigquery.Job, pageSize int, cursor string) ([]*PromotionTransactionRow, string, error) {
	it, err := job.Read(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("ReadPromotionPage: reading job %s: %w", job.ID(), err)
	}
	it.PageInfo().MaxSize = pageSize
	it.PageInfo().Token = cursor

	var rows []*PromotionTransactionRow
	for {
		var row PromotionTransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("ReadPromotionPage: decoding row %d: %w", len(rows), err)
		}
		rows = append(rows, &row)

		// Stop at the page boundary; the next Next call would fetch another page.
		if it.PageInfo().Remaining() == 0 {
			break
		}
	}

	return rows, it.PageInfo().Token, nil
}
