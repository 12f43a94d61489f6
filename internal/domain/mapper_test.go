package domain

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineItem(id string, amount string) LineItemDetail {
	return LineItemDetail{
		FirstReportedDate: civil.Date{Year: 2025, Month: time.October, Day: 21},
		BusinessOrigin:    BusinessOriginLoyaltyPromo,
		LineItemID:        id,
		DiscountAmount:    decimal.RequireFromString(amount),
		TransactionCode:   TransactionCodeSale,
		ActivityCode:      ActivityCodeSale,
		Store:             "12",
	}
}

func TestMapToTransaction(t *testing.T) {
	now := time.Date(2025, time.October, 22, 8, 30, 0, 0, time.UTC)
	first := lineItem("L1", "5.25")
	first.IsReversed = true
	first.TransactionCode = TransactionCodeReturn
	second := lineItem("L2", "1.00")
	second.ActivityCode = ActivityCodeReturn
	second.BusinessOrigin = BusinessOriginMarketingPromo
	second.Store = "1234"

	detail := TransactionDetail{
		GlobalTransactionID: "GT-1",
		BusinessDate:        civil.Date{Year: 2025, Month: time.October, Day: 20},
		LineItems:           []LineItemDetail{first, second},
	}

	tx, err := MapToTransaction(&detail, now)
	require.NoError(t, err)

	assert.Equal(t, "GT-1", tx.SourceReferenceTransactionID)
	assert.Equal(t, SourceSystemType, tx.SourceReferenceSystemType)
	assert.Equal(t, "PROMO", tx.SourceReferenceType)
	assert.Equal(t, first.FirstReportedDate, tx.SourceProcessedDate)
	assert.Equal(t, civil.DateOf(now), tx.TransactionDate)
	assert.Equal(t, detail.BusinessDate, tx.BusinessDate)
	assert.Equal(t, "RETN", tx.TransactionType)
	assert.Equal(t, "Y", tx.TransactionReversalCode)
	assert.Nil(t, tx.PartnerRelationshipType)
	assert.Equal(t, now, tx.CreatedAt)

	require.Equal(t, 2, tx.LineCount())
	require.Equal(t, 2, tx.PromotionCount())

	l1 := tx.Lines[0]
	assert.Equal(t, "L1", l1.SourceReferenceLineID)
	assert.Equal(t, "PROMO", l1.SourceReferenceLineType)
	assert.Equal(t, "SALE", l1.TransactionLineType)
	assert.Equal(t, "0012", l1.StoreOfIntent)
	assert.Nil(t, l1.RingingStore)
	require.Len(t, l1.Promotions, 1)
	assert.True(t, decimal.RequireFromString("5.25").Equal(l1.Promotions[0].PromoAmount))
	assert.Equal(t, "LOYALTY_PROMO", l1.Promotions[0].PromoBusinessOrigin)
	assert.Nil(t, l1.Promotions[0].PromoType)

	l2 := tx.Lines[1]
	assert.Equal(t, "RETN", l2.TransactionLineType)
	assert.Equal(t, "1234", l2.StoreOfIntent)
	assert.Equal(t, "MARKETING_PROMO", l2.Promotions[0].PromoBusinessOrigin)
}

func TestMapToTransaction_NoLineItems(t *testing.T) {
	_, err := MapToTransaction(&TransactionDetail{GlobalTransactionID: "GT-2"}, time.Now())
	assert.ErrorIs(t, err, ErrNoLineItems)
}

func TestMapToTransactions_GraphCompleteness(t *testing.T) {
	details := []TransactionDetail{
		{GlobalTransactionID: "A", LineItems: []LineItemDetail{lineItem("a1", "1"), lineItem("a2", "2")}},
		{GlobalTransactionID: "C", LineItems: []LineItemDetail{lineItem("c1", "1"), lineItem("c2", "2"), lineItem("c3", "3")}},
	}

	txs, err := MapToTransactions(details, time.Now())
	require.NoError(t, err)
	require.Len(t, txs, 2)

	for i, tx := range txs {
		n := len(details[i].LineItems)
		assert.Equal(t, n, tx.LineCount())
		assert.Equal(t, n, tx.PromotionCount())
		for j, line := range tx.Lines {
			assert.Equal(t, details[i].LineItems[j].LineItemID, line.SourceReferenceLineID)
			assert.Len(t, line.Promotions, 1)
		}
	}
}

func TestFormatStoreNumber(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"1":     "0001",
		"123":   "0123",
		"1234":  "1234",
		"12345": "12345",
		"ABC":   "ABC",
		"1A":    "1A",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatStoreNumber(in), "input %q", in)
	}
}
