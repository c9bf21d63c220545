package domain

import (
	"context"
	"net/http"
	"time"
)

// Gateway wraps a payment provider's API.
type Gateway interface {
	Provider() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Transaction, error)
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error
	ParseEvent(ctx context.Context, payload []byte) (*WebhookEvent, error)
}

// RequestObserver is told the outcome of every gateway HTTP call.
type RequestObserver interface {
	RecordGatewayRequest(ctx context.Context, provider, operation, outcome string)
}

type AdapterConfig struct {
	SecretKey  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   RequestObserver

	// TimeoutFunc, when set, is consulted on every request and wins over Timeout.
	TimeoutFunc func() time.Duration
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}
