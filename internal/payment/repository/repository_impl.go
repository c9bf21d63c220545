package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, order_id, provider, reference, status, amount, currency, channel, access_code,
	authorization_url, gateway_response, provider_response, paid_at, created_at, updated_at`

const paymentSelectColumns = paymentColumns + `, last_checked_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	response := payment.ProviderResponse
	if len(response) == 0 {
		response = datatypes.JSON(`{}`)
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.Provider,
		payment.Reference,
		payment.Status,
		payment.Amount,
		payment.Currency,
		payment.Channel,
		payment.AccessCode,
		payment.AuthorizationURL,
		payment.GatewayResponse,
		response,
		payment.PaidAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentSelectColumns+` FROM payments WHERE reference = ?`,
		reference,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) FindLatestByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentSelectColumns+` FROM payments WHERE order_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		orderID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) UpdateInitialization(ctx context.Context, db *gorm.DB, id snowflake.ID, accessCode, authorizationURL string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET access_code = ?, authorization_url = ?, updated_at = ? WHERE id = ?`,
		accessCode,
		authorizationURL,
		at,
		id,
	).Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, s domain.Settlement, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, channel = ?, gateway_response = ?, provider_response = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.StatusCompleted,
		s.Channel,
		s.GatewayResponse,
		rawJSON(s.Raw),
		s.PaidAt,
		at,
		id,
		domain.StatusCompleted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, s domain.Settlement, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, channel = ?, gateway_response = ?, provider_response = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		s.Channel,
		s.GatewayResponse,
		rawJSON(s.Raw),
		at,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkChecked(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET last_checked_at = ? WHERE id = ? AND status = ?`,
		at,
		id,
		domain.StatusPending,
	).Error
}

func (r *repo) ListPendingCreatedBetween(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentSelectColumns+` FROM payments
		 WHERE status = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY CASE WHEN last_checked_at IS NULL THEN 0 ELSE 1 END, last_checked_at, created_at, id
		 LIMIT ?`,
		domain.StatusPending,
		from,
		to,
		limit,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertWebhookEvent(ctx context.Context, db *gorm.DB, record *domain.WebhookRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_events (
			id, provider, event_key, event_type, reference, payload, received_at, processed_at, processing_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, event_key) DO NOTHING`,
		record.ID,
		record.Provider,
		record.EventKey,
		record.EventType,
		record.Reference,
		record.Payload,
		record.ReceivedAt,
		record.ProcessedAt,
		record.ProcessingError,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindWebhookEvent(ctx context.Context, db *gorm.DB, provider, eventKey string) (*domain.WebhookRecord, error) {
	var record domain.WebhookRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, event_key, event_type, reference, payload, received_at, processed_at, processing_error
		 FROM payment_webhook_events
		 WHERE provider = ? AND event_key = ?
		 LIMIT 1`,
		provider,
		eventKey,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) MarkWebhookProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhook_events SET processed_at = ?, processing_error = NULL WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) MarkWebhookFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhook_events SET processing_error = ? WHERE id = ?`,
		reason,
		id,
	).Error
}

func rawJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(raw)
}
