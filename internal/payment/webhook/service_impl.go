package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
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
	Repo       paymentdomain.Repository
	PaymentSvc paymentdomain.Service
	Gateway    paymentdomain.Gateway
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	paymentSvc paymentdomain.Service
	gateway    paymentdomain.Gateway
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
		gateway:    p.Gateway,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook authenticates, journals and applies one gateway delivery.
// Only ErrInvalidSignature should reach the gateway as a non-2xx answer.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	provider := s.gateway.Provider()
	if err := s.gateway.VerifyWebhook(ctx, payload, headers); err != nil {
		s.obsMetrics.RecordWebhook(ctx, provider, "unknown", "invalid_signature")
		return err
	}

	event, err := s.gateway.ParseEvent(ctx, payload)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			outcome = "ignored"
		}
		s.obsMetrics.RecordWebhook(ctx, provider, "unknown", outcome)
		return err
	}

	log := obslogger.WithOrder(obslogger.WithContext(ctx, s.log), "", event.Transaction.Reference).With(
		zap.String("event_type", event.Type),
	)

	now := s.clock.Now()
	record := paymentdomain.WebhookRecord{
		ID:         s.genID.Generate(),
		Provider:   provider,
		EventKey:   eventKey(event, payload),
		EventType:  event.Type,
		Reference:  event.Transaction.Reference,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: now,
	}
	inserted, err := s.repo.InsertWebhookEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindWebhookEvent(ctx, s.db, provider, record.EventKey)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			log.Info("webhook already processed", zap.String("event_key", record.EventKey))
			s.obsMetrics.RecordWebhook(ctx, provider, event.Type, "duplicate")
			return paymentdomain.ErrEventAlreadyProcessed
		}
		record = *stored
	}

	result, err := s.paymentSvc.ApplyTransaction(ctx, paymentdomain.SourceWebhook, event.Transaction)
	if err != nil {
		s.markFailed(ctx, log, record.ID, err.Error())
		s.obsMetrics.RecordWebhook(ctx, provider, event.Type, "error")
		return err
	}
	if result.Status == paymentdomain.OutcomeAmountMismatch {
		s.markFailed(ctx, log, record.ID, paymentdomain.OutcomeAmountMismatch)
		s.obsMetrics.RecordWebhook(ctx, provider, event.Type, result.Status)
		return nil
	}

	if err := s.repo.MarkWebhookProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return err
	}
	log.Info("webhook processed", zap.String("outcome", result.Status))
	s.obsMetrics.RecordWebhook(ctx, provider, event.Type, "processed")
	return nil
}

func (s *Service) markFailed(ctx context.Context, log *zap.Logger, id snowflake.ID, reason string) {
	log.Error("webhook processing failed", zap.String("reason", reason))
	if err := s.repo.MarkWebhookFailed(ctx, s.db, id, reason); err != nil {
		log.Error("webhook failure not recorded", zap.Error(err))
	}
}

func eventKey(event *paymentdomain.WebhookEvent, payload []byte) string {
	if event.EventID != "" {
		return event.EventID
	}
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}
