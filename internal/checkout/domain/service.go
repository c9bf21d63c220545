package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
)

// InitializeRequest is a checkout submission: contact details plus the
// client-held cart. Prices are resolved on the server.
type InitializeRequest struct {
	Name         string
	Email        string
	Phone        string
	WhatsApp     string
	Address      string
	City         string
	Region       string
	Country      string
	Notes        string
	Currency     string
	ExchangeRate decimal.Decimal
	Items        []pricingdomain.CartLine
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	OrderNumber      string
}

type Service interface {
	InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
}

var (
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidAddress = errors.New("invalid_address")
)
