package shared

import "github.com/shopspring/decimal"

var (
	// MoneyEpsilon is the tolerance for currency comparisons.
	MoneyEpsilon = decimal.RequireFromString("0.01")
	// QuantityEpsilon is the tolerance for stock and billed quantities.
	QuantityEpsilon = decimal.RequireFromString("0.0001")
)

// QuantityScale is the number of decimals NUMERIC(18,4) quantity columns keep.
const QuantityScale = 4

// FitsQuantityScale reports whether v carries at most QuantityScale decimals.
func FitsQuantityScale(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(QuantityScale))
}

// WithinEpsilon reports |a-b| <= eps.
func WithinEpsilon(a, b, eps decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(eps)
}

// Balanced reports |debit-credit| < MoneyEpsilon. A difference of exactly one
// cent is unbalanced.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThan(MoneyEpsilon)
}

// ExceedsBy reports a > b + eps.
func ExceedsBy(a, b, eps decimal.Decimal) bool {
	return a.GreaterThan(b.Add(eps))
}

// RoundMoney rounds half away from zero to two decimals.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// PaymentStatus classifies paid-to-date against a document total.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentOverpaid PaymentStatus = "OVERPAID"
)

// SettlementStatus derives the payment status for paid against total.
func SettlementStatus(total, paid decimal.Decimal) PaymentStatus {
	remaining := total.Sub(paid)
	switch {
	case paid.Sub(total).GreaterThan(MoneyEpsilon):
		return PaymentOverpaid
	case remaining.LessThanOrEqual(MoneyEpsilon):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}
