package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Settlement carries the gateway fields written when a payment settles.
type Settlement struct {
	Channel         string
	GatewayResponse string
	PaidAt          *time.Time
	Raw             []byte
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	FindLatestByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)
	UpdateInitialization(ctx context.Context, db *gorm.DB, id snowflake.ID, accessCode, authorizationURL string, at time.Time) error
	// MarkCompleted reports false when the payment was already completed.
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, s Settlement, at time.Time) (bool, error)
	// MarkFailed only moves a PENDING payment.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, s Settlement, at time.Time) (bool, error)
	// MarkChecked stamps a PENDING payment as just asked of the gateway.
	MarkChecked(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// ListPendingCreatedBetween returns never-checked payments first, then
	// the least recently checked.
	ListPendingCreatedBetween(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]Payment, error)

	InsertWebhookEvent(ctx context.Context, db *gorm.DB, record *WebhookRecord) (bool, error)
	FindWebhookEvent(ctx context.Context, db *gorm.DB, provider, eventKey string) (*WebhookRecord, error)
	MarkWebhookProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkWebhookFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
}
