// Package money converts decimal major-unit amounts to and from the integer
// minor units payment gateways expect on the wire.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrPrecisionLoss       = errors.New("amount_precision_loss")
)

// exponents lists ISO 4217 minor unit exponents for the currencies the storefront settles in.
var exponents = map[string]int32{
	"GHS": 2,
	"NGN": 2,
	"KES": 2,
	"ZAR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"XOF": 0,
	"XAF": 0,
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) (int32, error) {
	exp, ok := exponents[NormalizeCurrency(currency)]
	if !ok {
		return 0, ErrUnsupportedCurrency
	}
	return exp, nil
}

// Supported reports whether currency can be settled through a gateway.
func Supported(currency string) bool {
	_, err := Exponent(currency)
	return err == nil
}

// ToMinor converts a major-unit amount into integer minor units. Amounts with
// more fractional digits than the currency allows are rejected.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, ErrInvalidAmount
	}
	scaled := amount.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrPrecisionLoss
	}
	return scaled.IntPart(), nil
}

// FromMinor converts integer minor units back into a major-unit amount.
func FromMinor(minor int64, currency string) (decimal.Decimal, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -exp), nil
}

// Round rounds amount to the currency's precision.
func Round(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Round(exp), nil
}
