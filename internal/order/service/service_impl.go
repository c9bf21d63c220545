package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	"github.com/smallbiznis/storefront/internal/events"
	"github.com/smallbiznis/storefront/internal/money"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.CheckoutPolicyHolder
	Repo       domain.Repository
	Customers  customerdomain.Repository
	Payments   paymentdomain.Repository
	Numbers    domain.NumberGenerator `optional:"true"`
	Publisher  events.Publisher       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.CheckoutPolicyHolder
	repo       domain.Repository
	customers  customerdomain.Repository
	payments   paymentdomain.Repository
	numbers    domain.NumberGenerator
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	numbers := p.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator()
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		customers:  p.Customers,
		payments:   p.Payments,
		numbers:    numbers,
		publisher:  publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateOrder persists the order, its items, the initial payment and the
// first timeline event in one transaction.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.PlacedOrder, error) {
	info, err := normalizeCustomer(req.Customer)
	if err != nil {
		return nil, err
	}
	currency := money.NormalizeCurrency(req.Currency)
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	reference := strings.TrimSpace(req.Payment.Reference)
	provider := strings.ToLower(strings.TrimSpace(req.Payment.Provider))
	if reference == "" || provider == "" {
		return nil, domain.ErrInvalidReference
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	rate := req.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	if !rate.IsPositive() {
		return nil, domain.ErrInvalidExchangeRate
	}

	now := s.clock.Now()
	orderID := s.genID.Generate()

	items := make([]domain.Item, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, line := range req.Items {
		if line.ProductID == 0 || line.Quantity <= 0 || line.UnitPrice.IsNegative() || strings.TrimSpace(line.ProductName) == "" {
			return nil, domain.ErrInvalidItem
		}
		options, err := encodeOptions(line.Options)
		if err != nil {
			return nil, domain.ErrInvalidItem
		}
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, domain.Item{
			ID:          s.genID.Generate(),
			OrderID:     orderID,
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: strings.TrimSpace(line.ProductName),
			VariantName: strings.TrimSpace(line.VariantName),
			Options:     options,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			TotalPrice:  lineTotal,
			CreatedAt:   now,
		})
	}

	if req.ShippingCost.IsNegative() || req.Discount.IsNegative() {
		return nil, domain.ErrInvalidTotal
	}
	total := subtotal.Add(req.ShippingCost).Sub(req.Discount)
	if total.IsNegative() {
		return nil, domain.ErrInvalidTotal
	}

	address, err := json.Marshal(domain.Address{
		Line:    info.Address,
		City:    info.City,
		Region:  info.Region,
		Country: info.Country,
	})
	if err != nil {
		return nil, err
	}

	order := domain.Order{
		ID:              orderID,
		Status:          domain.StatusPending,
		CustomerName:    info.Name,
		CustomerEmail:   info.Email,
		CustomerPhone:   info.Phone,
		Currency:        currency,
		ExchangeRate:    rate,
		Subtotal:        subtotal,
		ShippingCost:    req.ShippingCost,
		Discount:        req.Discount,
		Total:           total,
		ShippingAddress: datatypes.JSON(address),
		CustomerNote:    info.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	payment := paymentdomain.Payment{
		ID:        s.genID.Generate(),
		OrderID:   orderID,
		Provider:  provider,
		Reference: reference,
		Status:    paymentdomain.StatusPending,
		Amount:    total,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	attempts := s.policy.Get().OrderNumberAttempts
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.nextOrderNumber(ctx, tx, now, attempts)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		customer, err := s.customers.RecordOrder(ctx, tx, &customerdomain.Customer{
			ID:          s.genID.Generate(),
			Phone:       info.Phone,
			Name:        info.Name,
			Email:       info.Email,
			WhatsApp:    info.WhatsApp,
			AddressLine: info.Address,
			City:        info.City,
			Region:      info.Region,
			Country:     info.Country,
			LastOrderAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, total)
		if err != nil {
			return err
		}
		order.CustomerID = customer.ID

		if err := s.repo.Insert(ctx, tx, &order); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		if err := s.payments.Insert(ctx, tx, &payment); err != nil {
			return err
		}
		return s.repo.InsertEvent(ctx, tx, &domain.Event{
			ID:        s.genID.Generate(),
			OrderID:   orderID,
			Status:    domain.StatusPending,
			Note:      "Order placed",
			CreatedAt: now,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNumberExhausted):
			s.log.Error("order number generation exhausted", zap.Int("attempts", attempts))
			return nil, err
		case db.IsDuplicateKeyOn(err, "order_number"):
			return nil, domain.ErrOrderNumberConflict
		case db.IsDuplicateKeyOn(err, "reference"):
			return nil, domain.ErrDuplicateReference
		}
		return nil, err
	}

	log := obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.OrderNumber, reference)
	log.Info("order created",
		zap.String("currency", currency),
		zap.String("total", total.StringFixed(2)),
		zap.Int("items", len(items)),
	)
	s.obsMetrics.RecordOrderCreated(ctx, currency)
	s.publish(ctx, events.OrderEvent{
		Type:        events.TypeOrderPlaced,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Reference:   reference,
		Currency:    currency,
		Total:       total.String(),
		OccurredAt:  now,
	})

	return &domain.PlacedOrder{Order: order, Items: items, Payment: payment}, nil
}

func (s *Service) nextOrderNumber(ctx context.Context, tx *gorm.DB, now time.Time, attempts int) (string, error) {
	for i := 0; i < attempts; i++ {
		candidate := s.numbers.Generate(now)
		exists, err := s.repo.ExistsByNumber(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		s.log.Warn("order number collision", zap.String("order_number", candidate), zap.Int("attempt", i+1))
	}
	return "", domain.ErrOrderNumberExhausted
}

func (s *Service) UpdateOrderStatus(ctx context.Context, orderID snowflake.ID, to domain.Status, note string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return s.transition(ctx, order, to, note)
}

func (s *Service) UpdateOrderStatusByNumber(ctx context.Context, orderNumber string, to domain.Status, note string) (*domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, domain.ErrNotFound
	}
	order, err := s.repo.FindByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return s.transition(ctx, order, to, note)
}

func (s *Service) transition(ctx context.Context, order *domain.Order, to domain.Status, note string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	from := order.Status
	if !domain.CanTransition(from, to) {
		return nil, domain.ErrInvalidStatusTransition
	}

	note = strings.TrimSpace(note)
	if note == "" {
		note = fmt.Sprintf("Status changed from %s to %s", from, to)
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.UpdateStatus(ctx, tx, order.ID, from, to, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrStatusConflict
		}
		return s.repo.InsertEvent(ctx, tx, &domain.Event{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			Status:    to,
			Note:      note,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	updated := *order
	updated.Status = to
	updated.UpdatedAt = now

	obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.OrderNumber, "").Info("order status changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.publish(ctx, events.OrderEvent{
		Type:        events.TypeOrderStatusChanged,
		OrderNumber: order.OrderNumber,
		Status:      string(to),
		Note:        note,
		OccurredAt:  now,
	})
	return &updated, nil
}

func (s *Service) GetByNumber(ctx context.Context, orderNumber string) (*domain.OrderDetail, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, domain.ErrNotFound
	}
	order, err := s.repo.FindByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.repo.ListEvents(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindLatestByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	return &domain.OrderDetail{
		Order:   *order,
		Items:   items,
		Events:  timeline,
		Payment: payment,
	}, nil
}

func (s *Service) publish(ctx context.Context, evt events.OrderEvent) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		obslogger.WithOrder(obslogger.WithContext(ctx, s.log), evt.OrderNumber, evt.Reference).Warn("order event publish failed",
			zap.String("event_type", evt.Type),
			zap.Error(err),
		)
	}
}

func normalizeCustomer(in domain.CustomerInfo) (domain.CustomerInfo, error) {
	out := domain.CustomerInfo{
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:    customerdomain.NormalizePhone(in.Phone),
		WhatsApp: customerdomain.NormalizePhone(in.WhatsApp),
		Address:  strings.TrimSpace(in.Address),
		City:     strings.TrimSpace(in.City),
		Region:   strings.TrimSpace(in.Region),
		Country:  strings.TrimSpace(in.Country),
		Notes:    strings.TrimSpace(in.Notes),
	}
	if out.Name == "" {
		return out, domain.ErrInvalidCustomerName
	}
	if out.Phone == "" {
		return out, domain.ErrInvalidPhone
	}
	return out, nil
}

func encodeOptions(options map[string]string) (datatypes.JSON, error) {
	if len(options) == 0 {
		return datatypes.JSON(`{}`), nil
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
