package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/money"
	"github.com/smallbiznis/storefront/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Policy *config.CheckoutPolicyHolder
	Repo   domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	policy *config.CheckoutPolicyHolder
	repo   domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("pricing.service"),
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
	}
}

// QuoteCart re-prices every cart line from the catalog at the current time.
func (s *Service) QuoteCart(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	currency := money.NormalizeCurrency(req.Currency)
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	if !money.Supported(currency) {
		return nil, domain.ErrUnsupportedCurrency
	}

	policy := s.policy.Get()
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if len(req.Items) > policy.MaxCartLines {
		return nil, domain.ErrTooManyLines
	}

	now := s.clock.Now()
	products := make(map[string]*domain.Product, len(req.Items))
	quote := &domain.Quote{
		Currency: currency,
		Lines:    make([]domain.QuotedLine, 0, len(req.Items)),
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
	}

	for i, item := range req.Items {
		if item.Quantity <= 0 || item.Quantity > policy.MaxItemQuantity {
			return nil, fmt.Errorf("items[%d]: %w", i, domain.ErrInvalidQuantity)
		}

		key := strings.TrimSpace(item.ProductID)
		product, ok := products[key]
		if !ok {
			var err error
			product, err = s.lookupProduct(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("items[%d]: %w", i, err)
			}
			products[key] = product
		}

		line := domain.QuotedLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Options:     item.Options,
			Quantity:    item.Quantity,
		}

		if variantKey := strings.TrimSpace(item.VariantID); variantKey != "" {
			variantID, err := snowflake.ParseString(variantKey)
			if err != nil || variantID == 0 {
				return nil, fmt.Errorf("items[%d]: %w", i, domain.ErrVariantUnavailable)
			}
			variant, ok := product.FindVariant(variantID)
			if !ok {
				return nil, fmt.Errorf("items[%d]: %w", i, domain.ErrVariantUnavailable)
			}
			line.VariantID = &variant.ID
			line.VariantName = variant.Name
		}

		resolved, err := domain.ResolvePrice(*product, currency, now)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		line.BasePrice = resolved.BasePrice
		line.UnitPrice = resolved.EffectivePrice
		line.DiscountApplied = resolved.DiscountApplied
		line.LineTotal = resolved.EffectivePrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

		quote.Subtotal = quote.Subtotal.Add(line.LineTotal)
		quote.Lines = append(quote.Lines, line)
	}

	quote.ShippingCost = policy.ShippingFee(currency)
	quote.Total = quote.Subtotal.Add(quote.ShippingCost).Sub(quote.Discount)
	return quote, nil
}

// lookupProduct accepts either a numeric product id or a product slug.
func (s *Service) lookupProduct(ctx context.Context, key string) (*domain.Product, error) {
	if key == "" {
		return nil, domain.ErrInvalidProduct
	}

	var (
		product *domain.Product
		err     error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil && id > 0 {
		product, err = s.repo.FindProductByID(ctx, s.db, id)
	} else {
		normalized := slug.Make(key)
		if normalized == "" {
			return nil, domain.ErrInvalidProduct
		}
		product, err = s.repo.FindProductBySlug(ctx, s.db, normalized)
	}
	if err != nil {
		s.log.Error("product lookup failed", zap.String("product", key), zap.Error(err))
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, domain.ErrProductUnavailable
	}
	return product, nil
}
