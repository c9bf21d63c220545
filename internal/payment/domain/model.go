package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Payment struct {
	ID               snowflake.ID    `gorm:"column:id" json:"id"`
	OrderID          snowflake.ID    `gorm:"column:order_id" json:"order_id"`
	Provider         string          `gorm:"column:provider" json:"provider"`
	Reference        string          `gorm:"column:reference" json:"reference"`
	Status           Status          `gorm:"column:status" json:"status"`
	Amount           decimal.Decimal `gorm:"column:amount" json:"amount"`
	Currency         string          `gorm:"column:currency" json:"currency"`
	Channel          string          `gorm:"column:channel" json:"channel,omitempty"`
	AccessCode       string          `gorm:"column:access_code" json:"-"`
	AuthorizationURL string          `gorm:"column:authorization_url" json:"-"`
	GatewayResponse  string          `gorm:"column:gateway_response" json:"gateway_response,omitempty"`
	ProviderResponse datatypes.JSON  `gorm:"column:provider_response" json:"-"`
	PaidAt           *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
	LastCheckedAt    *time.Time      `gorm:"column:last_checked_at" json:"-"`
}

// Gateway transaction statuses that drive a state change. Anything else
// leaves the payment untouched.
const (
	TransactionSuccess = "success"
	TransactionFailed  = "failed"
)

// Transaction is the gateway's view of a payment attempt, in major units.
type Transaction struct {
	Reference       string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	Channel         string
	GatewayResponse string
	PaidAt          *time.Time
	Raw             []byte
}

type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// WebhookEvent is a parsed, signature-checked gateway notification.
type WebhookEvent struct {
	Provider    string
	Type        string
	EventID     string
	Transaction Transaction
}

// WebhookRecord is the journal row kept for every accepted webhook delivery.
type WebhookRecord struct {
	ID              snowflake.ID   `gorm:"column:id"`
	Provider        string         `gorm:"column:provider"`
	EventKey        string         `gorm:"column:event_key"`
	EventType       string         `gorm:"column:event_type"`
	Reference       string         `gorm:"column:reference"`
	Payload         datatypes.JSON `gorm:"column:payload"`
	ReceivedAt      time.Time      `gorm:"column:received_at"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
	ProcessingError *string        `gorm:"column:processing_error"`
}

// Reconcile outcomes reported to callers. A gateway status that is neither
// success nor failed is passed through as is.
const (
	OutcomeCompleted        = "completed"
	OutcomeAlreadyCompleted = "already_completed"
	OutcomeFailed           = "failed"
	OutcomeNotFound         = "not_found"
	OutcomeAmountMismatch   = "amount_mismatch"
)

type Source string

const (
	SourceVerify  Source = "verify"
	SourceWebhook Source = "webhook"
	SourceSweep   Source = "sweep"
)

type ReconcileResult struct {
	Status      string
	Reference   string
	OrderNumber string
	Payment     *Payment
}

// Succeeded reports whether the payment is settled.
func (r ReconcileResult) Succeeded() bool {
	return r.Status == OutcomeCompleted || r.Status == OutcomeAlreadyCompleted
}

// OutcomeLabel folds pass-through gateway statuses into "open" for metric labels.
func OutcomeLabel(status string) string {
	switch status {
	case OutcomeCompleted, OutcomeAlreadyCompleted, OutcomeFailed, OutcomeNotFound, OutcomeAmountMismatch:
		return status
	}
	return "open"
}
