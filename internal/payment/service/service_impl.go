package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/events"
	"github.com/smallbiznis/storefront/internal/money"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Orders     orderdomain.Repository
	Gateway    paymentdomain.Gateway
	Publisher  events.Publisher    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	orders     orderdomain.Repository
	gateway    paymentdomain.Gateway
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orders:     p.Orders,
		gateway:    p.Gateway,
		publisher:  publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// VerifyPayment asks the gateway for the current state of reference and
// applies it.
func (s *Service) VerifyPayment(ctx context.Context, source paymentdomain.Source, reference string) (*paymentdomain.ReconcileResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	payment, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.obsMetrics.RecordReconcile(ctx, s.provider(), string(source), paymentdomain.OutcomeNotFound)
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if payment.Status == paymentdomain.StatusCompleted {
		return s.alreadyCompleted(ctx, source, payment)
	}

	txn, err := s.gateway.Verify(ctx, reference)
	if markErr := s.repo.MarkChecked(ctx, s.db, payment.ID, s.clock.Now()); markErr != nil {
		s.log.Warn("payment check stamp failed", zap.String("payment_reference", reference), zap.Error(markErr))
	}
	if err != nil {
		obslogger.WithOrder(obslogger.WithContext(ctx, s.log), "", reference).Error("payment verification failed",
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrVerificationFailed, err)
	}
	if txn.Reference == "" {
		txn.Reference = reference
	}
	return s.ApplyTransaction(ctx, source, *txn)
}

// ApplyTransaction merges a gateway transaction into local state. A payment
// that is already COMPLETED is never touched again.
func (s *Service) ApplyTransaction(ctx context.Context, source paymentdomain.Source, txn paymentdomain.Transaction) (*paymentdomain.ReconcileResult, error) {
	reference := strings.TrimSpace(txn.Reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}
	log := obslogger.WithOrder(obslogger.WithContext(ctx, s.log), "", reference).With(zap.String("source", string(source)))

	payment, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		log.Warn("payment not found for transaction")
		s.obsMetrics.RecordReconcile(ctx, s.provider(), string(source), paymentdomain.OutcomeNotFound)
		return &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeNotFound, Reference: reference}, nil
	}
	if payment.Status == paymentdomain.StatusCompleted {
		return s.alreadyCompleted(ctx, source, payment)
	}

	order, err := s.orders.FindByID(ctx, s.db, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	log = obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.OrderNumber, reference).With(zap.String("source", string(source)))

	status := strings.ToLower(strings.TrimSpace(txn.Status))
	var result *paymentdomain.ReconcileResult
	switch status {
	case paymentdomain.TransactionSuccess:
		if mismatch(payment, txn) {
			log.Error("gateway amount does not match payment",
				zap.String("expected_amount", payment.Amount.StringFixed(2)),
				zap.String("expected_currency", payment.Currency),
				zap.String("gateway_amount", txn.Amount.StringFixed(2)),
				zap.String("gateway_currency", txn.Currency),
			)
			result = &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeAmountMismatch}
			break
		}
		result, err = s.complete(ctx, log, payment, order, txn)
	case paymentdomain.TransactionFailed:
		result, err = s.fail(ctx, log, payment, order, txn)
	default:
		log.Info("payment still open at gateway", zap.String("gateway_status", status))
		result = &paymentdomain.ReconcileResult{Status: status}
	}
	if err != nil {
		return nil, err
	}

	result.Reference = reference
	result.OrderNumber = order.OrderNumber
	if result.Payment == nil {
		result.Payment = payment
	}
	s.obsMetrics.RecordReconcile(ctx, s.provider(), string(source), paymentdomain.OutcomeLabel(result.Status))
	return result, nil
}

func (s *Service) complete(ctx context.Context, log *zap.Logger, payment *paymentdomain.Payment, order *orderdomain.Order, txn paymentdomain.Transaction) (*paymentdomain.ReconcileResult, error) {
	now := s.clock.Now()
	paidAt := txn.PaidAt
	if paidAt == nil {
		paidAt = &now
	}
	settlement := paymentdomain.Settlement{
		Channel:         txn.Channel,
		GatewayResponse: txn.GatewayResponse,
		PaidAt:          paidAt,
		Raw:             txn.Raw,
	}

	var moved, confirmed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = s.repo.MarkCompleted(ctx, tx, payment.ID, settlement, now)
		if err != nil || !moved {
			return err
		}
		confirmed, err = s.orders.UpdateStatus(ctx, tx, order.ID, orderdomain.StatusPending, orderdomain.StatusConfirmed, now)
		if err != nil {
			return err
		}
		status := order.Status
		if confirmed {
			status = orderdomain.StatusConfirmed
		}
		return s.orders.InsertEvent(ctx, tx, &orderdomain.Event{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			Status:    status,
			Note:      fmt.Sprintf("Payment received via %s (ref %s)", channelName(txn.Channel), payment.Reference),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		log.Info("payment completed concurrently")
		return &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeAlreadyCompleted}, nil
	}

	updated := *payment
	updated.Status = paymentdomain.StatusCompleted
	updated.Channel = txn.Channel
	updated.GatewayResponse = txn.GatewayResponse
	updated.PaidAt = paidAt
	updated.UpdatedAt = now

	log.Info("payment completed", zap.String("channel", txn.Channel), zap.Bool("order_confirmed", confirmed))
	if confirmed {
		s.publish(ctx, log, events.OrderEvent{
			Type:        events.TypeOrderConfirmed,
			OrderNumber: order.OrderNumber,
			Status:      string(orderdomain.StatusConfirmed),
			Reference:   payment.Reference,
			Currency:    payment.Currency,
			Total:       payment.Amount.String(),
			OccurredAt:  now,
		})
	}
	return &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeCompleted, Payment: &updated}, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, payment *paymentdomain.Payment, order *orderdomain.Order, txn paymentdomain.Transaction) (*paymentdomain.ReconcileResult, error) {
	now := s.clock.Now()
	reason := strings.TrimSpace(txn.GatewayResponse)
	if reason == "" {
		reason = "declined"
	}
	note := "Payment failed: " + reason

	var moved bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = s.repo.MarkFailed(ctx, tx, payment.ID, paymentdomain.Settlement{
			Channel:         txn.Channel,
			GatewayResponse: txn.GatewayResponse,
			Raw:             txn.Raw,
		}, now)
		if err != nil || !moved {
			return err
		}
		return s.orders.InsertEvent(ctx, tx, &orderdomain.Event{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			Status:    order.Status,
			Note:      note,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if !moved {
		current, err := s.repo.FindByReference(ctx, s.db, payment.Reference)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == paymentdomain.StatusCompleted {
			return &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeAlreadyCompleted, Payment: current}, nil
		}
		return &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeFailed, Payment: current}, nil
	}

	updated := *payment
	updated.Status = paymentdomain.StatusFailed
	updated.GatewayResponse = txn.GatewayResponse
	updated.UpdatedAt = now

	log.Warn("payment failed", zap.String("reason", reason))
	s.publish(ctx, log, events.OrderEvent{
		Type:        events.TypePaymentFailed,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Reference:   payment.Reference,
		Currency:    payment.Currency,
		Total:       payment.Amount.String(),
		Note:        note,
		OccurredAt:  now,
	})
	return &paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeFailed, Payment: &updated}, nil
}

func (s *Service) alreadyCompleted(ctx context.Context, source paymentdomain.Source, payment *paymentdomain.Payment) (*paymentdomain.ReconcileResult, error) {
	result := &paymentdomain.ReconcileResult{
		Status:    paymentdomain.OutcomeAlreadyCompleted,
		Reference: payment.Reference,
		Payment:   payment,
	}
	order, err := s.orders.FindByID(ctx, s.db, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		result.OrderNumber = order.OrderNumber
	}
	s.obsMetrics.RecordReconcile(ctx, s.provider(), string(source), paymentdomain.OutcomeAlreadyCompleted)
	return result, nil
}

func (s *Service) ListStalePending(ctx context.Context, from, to time.Time, limit int) ([]paymentdomain.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	if !from.Before(to) {
		return nil, errors.New("invalid_window")
	}
	return s.repo.ListPendingCreatedBetween(ctx, s.db, from, to, limit)
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, evt events.OrderEvent) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		log.Warn("order event publish failed", zap.String("event_type", evt.Type), zap.Error(err))
	}
}

func (s *Service) provider() string {
	if s.gateway == nil {
		return "unknown"
	}
	return s.gateway.Provider()
}

// mismatch reports a gateway amount or currency that differs from what was
// charged. A zero gateway amount means the gateway did not report one.
func mismatch(payment *paymentdomain.Payment, txn paymentdomain.Transaction) bool {
	if txn.Amount.IsPositive() && !txn.Amount.Equal(payment.Amount) {
		return true
	}
	currency := money.NormalizeCurrency(txn.Currency)
	return currency != "" && currency != payment.Currency
}

func channelName(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "unknown channel"
	}
	return channel
}
