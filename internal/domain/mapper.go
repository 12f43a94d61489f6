package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const (
	// SourceSystemType identifies rows loaded by this service. Together with
	// the source transaction id it forms the natural key.
	SourceSystemType = "GCP"

	sourceReferenceType     = "PROMO"
	sourceReferenceLineType = "PROMO"

	reversalYes = "Y"
	reversalNo  = "N"
)

// ErrNoLineItems is returned when a detail has nothing to read
// transaction-level attributes from.
var ErrNoLineItems = errors.New("transaction detail has no line items")

// MapToTransactions builds one entity graph per detail. now supplies the
// processing date and the audit timestamps.
func MapToTransactions(details []TransactionDetail, now time.Time) ([]*Transaction, error) {
	txs := make([]*Transaction, 0, len(details))
	for i := range details {
		tx, err := MapToTransaction(&details[i], now)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// MapToTransaction builds the full graph for a single detail: one
// TransactionLine and one PromotionTransactionLine per line item.
func MapToTransaction(d *TransactionDetail, now time.Time) (*Transaction, error) {
	if len(d.LineItems) == 0 {
		return nil, fmt.Errorf("MapToTransaction %s: %w", d.GlobalTransactionID, ErrNoLineItems)
	}
	first := d.LineItems[0]

	reversal := reversalNo
	if first.IsReversed {
		reversal = reversalYes
	}

	tx := &Transaction{
		SourceReferenceTransactionID: d.GlobalTransactionID,
		SourceReferenceSystemType:    SourceSystemType,
		SourceReferenceType:          sourceReferenceType,
		SourceProcessedDate:          first.FirstReportedDate,
		TransactionDate:              civil.DateOf(now),
		BusinessDate:                 d.BusinessDate,
		TransactionType:              string(first.TransactionCode),
		TransactionReversalCode:      reversal,
		CreatedAt:                    now,
		LastUpdatedAt:                now,
		Lines:                        make([]TransactionLine, 0, len(d.LineItems)),
	}

	for _, item := range d.LineItems {
		tx.Lines = append(tx.Lines, TransactionLine{
			SourceReferenceLineID:   item.LineItemID,
			SourceReferenceLineType: sourceReferenceLineType,
			TransactionLineType:     string(item.ActivityCode),
			StoreOfIntent:           FormatStoreNumber(item.Store),
			Promotions: []PromotionTransactionLine{{
				PromoAmount:         item.DiscountAmount,
				PromoBusinessOrigin: string(item.BusinessOrigin),
			}},
		})
	}

	return tx, nil
}

// FormatStoreNumber left-pads a numeric store number to four digits.
// Non-numeric or already long values are returned unchanged.
func FormatStoreNumber(store string) string {
	if store == "" || len(store) >= 4 {
		return store
	}
	for _, r := range store {
		if r < '0' || r > '9' {
			return store
		}
	}
	return strings.Repeat("0", 4-len(store)) + store
}
