package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolvePrice computes the sellable price of product in currency at now.
func ResolvePrice(product Product, currency string, now time.Time) (ResolvedPrice, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	var (
		base  decimal.Decimal
		found bool
	)
	for _, p := range product.Prices {
		if strings.EqualFold(strings.TrimSpace(p.Currency), currency) {
			base, found = p.Amount, true
			break
		}
	}
	if !found {
		return ResolvedPrice{}, ErrUnsupportedCurrency
	}

	resolved := ResolvedPrice{
		Currency:       currency,
		BasePrice:      base,
		EffectivePrice: base,
	}
	if !IsDiscountActive(product.Discount, now) {
		return resolved, nil
	}

	var effective decimal.Decimal
	switch product.Discount.Type {
	case DiscountTypePercentage:
		factor := decimal.NewFromInt(1).Sub(product.Discount.Value.Div(hundred))
		effective = base.Mul(factor).Round(0)
	case DiscountTypeFixedAmount:
		effective = base.Sub(product.Discount.Value).Round(0)
	default:
		return resolved, nil
	}

	if effective.IsNegative() {
		effective = decimal.Zero
	}
	if effective.GreaterThan(base) {
		effective = base
	}
	resolved.EffectivePrice = effective
	resolved.DiscountApplied = true
	return resolved, nil
}

// IsDiscountActive reports whether d applies at now. An end date without a
// time of day covers the whole of that day.
func IsDiscountActive(d *Discount, now time.Time) bool {
	if d == nil || !d.IsActive {
		return false
	}
	if d.StartDate.After(now) {
		return false
	}
	if d.EndDate == nil {
		return true
	}
	return !effectiveEnd(*d.EndDate).Before(now)
}

func effectiveEnd(end time.Time) time.Time {
	h, m, s := end.Clock()
	if h == 0 && m == 0 && s == 0 && end.Nanosecond() == 0 {
		return end.Add(24*time.Hour - time.Millisecond)
	}
	return end
}
