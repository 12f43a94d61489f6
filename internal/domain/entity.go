package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is the root of the persisted entity graph. It owns its lines
// by value; the graph is built in memory and written as one unit.
//
// IDs are zero until the store assigns them during insert.
type Transaction struct {
	ID                           int64
	SourceReferenceTransactionID string
	SourceReferenceSystemType    string
	SourceReferenceType          string
	SourceProcessedDate          civil.Date
	// TransactionDate is the processing date. The source does not report a
	// real transaction timestamp yet.
	TransactionDate         civil.Date
	BusinessDate            civil.Date
	TransactionType         string
	TransactionReversalCode string
	PartnerRelationshipType *string
	CreatedAt               time.Time
	LastUpdatedAt           time.Time

	Lines []TransactionLine
}

// TransactionLine is one line under a Transaction.
type TransactionLine struct {
	ID                      int64
	TransactionID           int64
	SourceReferenceLineID   string
	SourceReferenceLineType string
	TransactionLineType     string
	RingingStore            *string
	StoreOfIntent           string

	// Promotions holds exactly one entry today; the schema allows many.
	Promotions []PromotionTransactionLine
}

// PromotionTransactionLine is the leaf promotion fact of a line.
type PromotionTransactionLine struct {
	ID                  int64
	TransactionLineID   int64
	PromoType           *string
	PromoAmount         decimal.Decimal
	PromoBusinessOrigin string
}

// LineCount returns the number of lines in the graph.
func (t *Transaction) LineCount() int {
	return len(t.Lines)
}

// PromotionCount returns the number of promotion lines across all lines.
func (t *Transaction) PromotionCount() int {
	n := 0
	for i := range t.Lines {
		n += len(t.Lines[i].Promotions)
	}
	return n
}
