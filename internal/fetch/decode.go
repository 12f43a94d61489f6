package fetch

import (
	"errors"
	"fmt"
	"strings"

	bq "github.com/dvloznov/promotion-consumer/internal/bigquery"
	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/shopspring/decimal"
)

const reversedFlag = "Y"

// DecodeRow converts one warehouse row into a TransactionDetail. Any invalid
// field fails the whole row.
func DecodeRow(row *bq.PromotionTransactionRow) (domain.TransactionDetail, error) {
	id := strings.TrimSpace(row.GlobalTranID)
	if id == "" {
		return domain.TransactionDetail{}, errors.New("missing global_tran_id")
	}
	if len(row.Details) == 0 {
		return domain.TransactionDetail{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNoLineItems)
	}

	items := make([]domain.LineItemDetail, 0, len(row.Details))
	for i := range row.Details {
		item, err := decodeLineItem(&row.Details[i])
		if err != nil {
			return domain.TransactionDetail{}, fmt.Errorf("transaction %s, detail %d: %w", id, i, err)
		}
		items = append(items, item)
	}

	return domain.TransactionDetail{
		GlobalTransactionID: id,
		BusinessDate:        row.BusinessDate,
		LineItems:           items,
	}, nil
}

func decodeLineItem(d *bq.PromotionDetailRow) (domain.LineItemDetail, error) {
	origin, err := domain.ParseBusinessOrigin(d.BusinessOrigin)
	if err != nil {
		return domain.LineItemDetail{}, err
	}
	code, err := domain.ParseTransactionCode(d.TranTypeCode)
	if err != nil {
		return domain.LineItemDetail{}, err
	}
	activity, err := domain.ParseActivityCode(d.LineItemActivityTypeCode)
	if err != nil {
		return domain.LineItemDetail{}, err
	}
	if d.Discount == nil {
		return domain.LineItemDetail{}, errors.New("missing discount")
	}
	// NUMERIC has a scale of 9, so this conversion is exact.
	discount, err := decimal.NewFromString(d.Discount.FloatString(9))
	if err != nil {
		return domain.LineItemDetail{}, fmt.Errorf("parsing discount: %w", err)
	}

	return domain.LineItemDetail{
		FirstReportedDate: d.FirstReportedTmstp.Date,
		BusinessOrigin:    origin,
		LineItemID:        d.ItemTransactionLineID,
		DiscountAmount:    discount.Abs(),
		IsReversed:        d.ReversalFlag == reversedFlag,
		TransactionCode:   code,
		ActivityCode:      activity,
		Store:             d.StoreNum,
	}, nil
}
