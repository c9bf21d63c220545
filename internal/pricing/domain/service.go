package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CartLine is one client-held cart entry. Prices are never taken from the client.
type CartLine struct {
	ProductID string
	VariantID string
	Quantity  int
	Options   map[string]string
}

type QuoteRequest struct {
	Currency string
	Items    []CartLine
}

type QuotedLine struct {
	ProductID       snowflake.ID
	VariantID       *snowflake.ID
	ProductName     string
	VariantName     string
	Options         map[string]string
	BasePrice       decimal.Decimal
	UnitPrice       decimal.Decimal
	Quantity        int
	LineTotal       decimal.Decimal
	DiscountApplied bool
}

// Quote is a server-side re-pricing of a cart.
type Quote struct {
	Currency     string
	Lines        []QuotedLine
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

type Service interface {
	QuoteCart(ctx context.Context, req QuoteRequest) (*Quote, error)
}

var (
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrEmptyCart           = errors.New("empty_cart")
	ErrTooManyLines        = errors.New("too_many_lines")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidProduct      = errors.New("invalid_product")
	ErrProductUnavailable  = errors.New("product_unavailable")
	ErrVariantUnavailable  = errors.New("variant_unavailable")
)
