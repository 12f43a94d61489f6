package bigquery

import (
	"context"
	"errors"
	"math/big"
	"time"

	"cloud.google.com/go/civil"
)

// ErrNoJob is returned when the warehouse accepted a query but handed back no job.
var ErrNoJob = errors.New("bigquery: query returned no job")

// PromotionQuery parameterizes the promotion fetch query. The window is
// half-open: Start inclusive, End exclusive.
type PromotionQuery struct {
	Origins []string
	Start   time.Time
	End     time.Time
}

// PromotionRepository submits the promotion query to the warehouse.
type PromotionRepository interface {
	// SubmitPromotionQuery starts the query job and returns its handle
	// without waiting for it to finish.
	SubmitPromotionQuery(ctx context.Context, q PromotionQuery) (QueryJob, error)
}

// QueryJob is a submitted query whose results are read one page at a time.
type QueryJob interface {
	// ID returns the warehouse job id.
	ID() string

	// Wait blocks until the job completes and returns its execution error, if any.
	Wait(ctx context.Context) error

	// ReadPage reads up to pageSize rows starting at cursor ("" for the
	// first page) and returns the cursor of the following page, or "" when
	// there is none.
	ReadPage(ctx context.Context, pageSize int, cursor string) ([]*PromotionTransactionRow, string, error)
}

// PromotionTransactionRow is one row of the promotion query: a transaction
// with its promotion line items aggregated into details.
type PromotionTransactionRow struct {
	Details      []PromotionDetailRow `bigquery:"details"`        // REPEATED RECORD
	BusinessDate civil.Date           `bigquery:"business_date"`  // DATE
	GlobalTranID string               `bigquery:"global_tran_id"` // STRING
}

// PromotionDetailRow is one element of PromotionTransactionRow.Details.
type PromotionDetailRow struct {
	FirstReportedTmstp       civil.DateTime `bigquery:"first_reported_tmstp"`         // DATETIME
	BusinessOrigin           string         `bigquery:"business_origin"`              // STRING
	ItemTransactionLineID    string         `bigquery:"item_transaction_line_id"`     // STRING
	Discount                 *big.Rat       `bigquery:"discount"`                     // NUMERIC
	ReversalFlag             string         `bigquery:"reversal_flag"`                // STRING, Y/N
	TranTypeCode             string         `bigquery:"tran_type_code"`               // STRING
	LineItemActivityTypeCode string         `bigquery:"line_item_activity_type_code"` // STRING
	StoreNum                 string         `bigquery:"store_num"`                    // STRING
}
