package domain

//go:generate mockgen -source=service.go -destination=mock/mock_service.go -package=mock

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type Service interface {
	// ApplyTransaction merges a gateway-reported transaction into payment and
	// order state. It is safe to call any number of times for one reference.
	ApplyTransaction(ctx context.Context, source Source, txn Transaction) (*ReconcileResult, error)
	VerifyPayment(ctx context.Context, source Source, reference string) (*ReconcileResult, error)
	ListStalePending(ctx context.Context, from, to time.Time, limit int) ([]Payment, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidReference      = errors.New("invalid_reference")
	ErrPaymentNotFound       = errors.New("payment_not_found")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrVerificationFailed    = errors.New("verification_failed")
)
