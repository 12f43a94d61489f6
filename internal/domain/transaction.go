package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionDetail is one promotion-bearing transaction as reported by the
// warehouse. It is transient: it only lives between a page fetch and the
// persistence of that page.
type TransactionDetail struct {
	GlobalTransactionID string     // global_tran_id, the natural key
	BusinessDate        civil.Date // business_date
	LineItems           []LineItemDetail
}

// LineItemDetail is one promotion-eligible line within a transaction.
type LineItemDetail struct {
	FirstReportedDate civil.Date      // first_reported_tmstp, date part only
	BusinessOrigin    BusinessOrigin  // business_origin
	LineItemID        string          // item_transaction_line_id
	DiscountAmount    decimal.Decimal // discount, always non-negative
	IsReversed        bool            // reversal_flag == "Y"
	TransactionCode   TransactionCode // tran_type_code
	ActivityCode      ActivityCode    // line_item_activity_type_code
	Store             string          // store_num
}
