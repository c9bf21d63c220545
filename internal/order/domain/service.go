package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

type CustomerInfo struct {
	Name     string
	Email    string
	Phone    string
	WhatsApp string
	Address  string
	City     string
	Region   string
	Country  string
	Notes    string
}

// LineItem is a cart line already priced by the server.
type LineItem struct {
	ProductID   snowflake.ID
	VariantID   *snowflake.ID
	ProductName string
	VariantName string
	Options     map[string]string
	UnitPrice   decimal.Decimal
	Quantity    int
}

type PaymentDraft struct {
	Provider  string
	Reference string
}

type CreateOrderRequest struct {
	Customer     CustomerInfo
	Currency     string
	ExchangeRate decimal.Decimal
	Items        []LineItem
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Payment      PaymentDraft
}

// PlacedOrder is everything written by CreateOrder.
type PlacedOrder struct {
	Order   Order
	Items   []Item
	Payment paymentdomain.Payment
}

type OrderDetail struct {
	Order   Order
	Items   []Item
	Events  []Event
	Payment *paymentdomain.Payment
}

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*PlacedOrder, error)
	UpdateOrderStatus(ctx context.Context, orderID snowflake.ID, to Status, note string) (*Order, error)
	UpdateOrderStatusByNumber(ctx context.Context, orderNumber string, to Status, note string) (*Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*OrderDetail, error)
}

var (
	ErrInvalidCustomerName     = errors.New("invalid_customer_name")
	ErrInvalidPhone            = errors.New("invalid_phone")
	ErrInvalidCurrency         = errors.New("invalid_currency")
	ErrInvalidExchangeRate     = errors.New("invalid_exchange_rate")
	ErrEmptyOrder              = errors.New("empty_order")
	ErrInvalidItem             = errors.New("invalid_item")
	ErrInvalidTotal            = errors.New("invalid_total")
	ErrInvalidReference        = errors.New("invalid_reference")
	ErrOrderNumberExhausted    = errors.New("order_number_exhausted")
	ErrOrderNumberConflict     = errors.New("order_number_conflict")
	ErrDuplicateReference      = errors.New("duplicate_payment_reference")
	ErrNotFound                = errors.New("order_not_found")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrStatusConflict          = errors.New("status_conflict")
)
