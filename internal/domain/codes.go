package domain

import (
	"fmt"
	"strings"
)

// BusinessOrigin is the promotion group a line item was reported under.
type BusinessOrigin string

const (
	BusinessOriginLoyaltyPromo   BusinessOrigin = "LOYALTY_PROMO"
	BusinessOriginMarketingPromo BusinessOrigin = "MARKETING_PROMO"
)

// PromotionOrigins is the allow-list of origins fetched from the warehouse.
var PromotionOrigins = []BusinessOrigin{BusinessOriginLoyaltyPromo, BusinessOriginMarketingPromo}

// ParseBusinessOrigin matches the exact origin name as reported by the source.
func ParseBusinessOrigin(s string) (BusinessOrigin, error) {
	switch o := BusinessOrigin(s); o {
	case BusinessOriginLoyaltyPromo, BusinessOriginMarketingPromo:
		return o, nil
	}
	return "", fmt.Errorf("invalid business origin %q", s)
}

// TransactionCode is the transaction type. The value is the code persisted
// as TRANSACTION_TYPE.
type TransactionCode string

const (
	TransactionCodeSale     TransactionCode = "SALE"
	TransactionCodeReturn   TransactionCode = "RETN"
	TransactionCodeVoid     TransactionCode = "VOID"
	TransactionCodeExchange TransactionCode = "EXCH"
)

var transactionCodes = []TransactionCode{
	TransactionCodeSale,
	TransactionCodeReturn,
	TransactionCodeVoid,
	TransactionCodeExchange,
}

// ParseTransactionCode matches a source tran_type_code token against the
// known codes, ignoring case and surrounding whitespace.
func ParseTransactionCode(s string) (TransactionCode, error) {
	token := strings.TrimSpace(s)
	for _, c := range transactionCodes {
		if strings.EqualFold(string(c), token) {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid transaction code %q", s)
}

// ActivityCode is the line item activity. The value is the code persisted
// as TRANSACTION_LINE_TYPE.
type ActivityCode string

const (
	ActivityCodeSale   ActivityCode = "SALE"
	ActivityCodeReturn ActivityCode = "RETN"
)

// ParseActivityCode normalizes the several spellings the source uses.
//
//	S, SALE          -> SALE
//	R, RETURN, RETN  -> RETURN
func ParseActivityCode(s string) (ActivityCode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S", "SALE":
		return ActivityCodeSale, nil
	case "R", "RETURN", "RETN":
		return ActivityCodeReturn, nil
	}
	return "", fmt.Errorf("invalid transaction activity code %q", s)
}

// String returns the enum name rather than the persisted code.
func (a ActivityCode) String() string {
	if a == ActivityCodeReturn {
		return "RETURN"
	}
	return string(a)
}
