package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/smallbiznis/storefront/internal/checkout/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Clock    clock.Clock
	Pricing  pricingdomain.Service
	Orders   orderdomain.Service
	Payments paymentdomain.Repository
	Gateway  paymentdomain.Gateway
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	callbackURL string
	pricing     pricingdomain.Service
	orders      orderdomain.Service
	payments    paymentdomain.Repository
	gateway     paymentdomain.Gateway
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		clock:       p.Clock,
		callbackURL: strings.TrimSpace(p.Cfg.Payment.CallbackURL),
		pricing:     p.Pricing,
		orders:      p.Orders,
		payments:    p.Payments,
		gateway:     p.Gateway,
	}
}

// InitializePayment prices the cart, records a PENDING order with its payment
// and opens a gateway checkout for it. The order is committed before the
// gateway is called; a gateway failure leaves it PENDING.
func (s *Service) InitializePayment(ctx context.Context, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	if err := validateContact(req); err != nil {
		return nil, err
	}

	quote, err := s.pricing.QuoteCart(ctx, pricingdomain.QuoteRequest{
		Currency: req.Currency,
		Items:    req.Items,
	})
	if err != nil {
		return nil, err
	}

	items := make([]orderdomain.LineItem, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		items = append(items, orderdomain.LineItem{
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.ProductName,
			VariantName: line.VariantName,
			Options:     line.Options,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
		})
	}

	reference := paymentdomain.NewReference(s.clock.Now())
	placed, err := s.orders.CreateOrder(ctx, orderdomain.CreateOrderRequest{
		Customer: orderdomain.CustomerInfo{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			WhatsApp: req.WhatsApp,
			Address:  req.Address,
			City:     req.City,
			Region:   req.Region,
			Country:  req.Country,
			Notes:    req.Notes,
		},
		Currency:     quote.Currency,
		ExchangeRate: req.ExchangeRate,
		Items:        items,
		ShippingCost: quote.ShippingCost,
		Discount:     quote.Discount,
		Payment: orderdomain.PaymentDraft{
			Provider:  s.gateway.Provider(),
			Reference: reference,
		},
	})
	if err != nil {
		return nil, err
	}

	orderNumber := placed.Order.OrderNumber
	log := obslogger.WithOrder(obslogger.WithContext(ctx, s.log), orderNumber, reference)

	result, err := s.gateway.Initialize(ctx, paymentdomain.InitializeRequest{
		Email:       placed.Order.CustomerEmail,
		Amount:      placed.Payment.Amount,
		Currency:    placed.Payment.Currency,
		Reference:   reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]any{
			"order_number": orderNumber,
		},
	})
	if err != nil {
		log.Error("payment initialization failed, order left pending", zap.Error(err))
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", paymentdomain.ErrGatewayUnavailable, err)
	}

	if err := s.payments.UpdateInitialization(ctx, s.db, placed.Payment.ID, result.AccessCode, result.AuthorizationURL, s.clock.Now()); err != nil {
		log.Warn("payment initialization not stored", zap.Error(err))
	}

	log.Info("payment initialized")
	return &domain.InitializeResponse{
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Reference:        reference,
		OrderNumber:      orderNumber,
	}, nil
}

func validateContact(req domain.InitializeRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return orderdomain.ErrInvalidCustomerName
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.ErrInvalidEmail
	}
	if strings.TrimSpace(req.Phone) == "" {
		return orderdomain.ErrInvalidPhone
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "" || strings.TrimSpace(req.Region) == "" {
		return domain.ErrInvalidAddress
	}
	return nil
}
