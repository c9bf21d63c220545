package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerrepo "github.com/smallbiznis/storefront/internal/customer/repository"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	orderrepo "github.com/smallbiznis/storefront/internal/order/repository"
	orderservice "github.com/smallbiznis/storefront/internal/order/service"
	"github.com/smallbiznis/storefront/internal/payment/adapters/paystack"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/storefront/internal/payment/repository"
	paymentservice "github.com/smallbiznis/storefront/internal/payment/service"
	"github.com/smallbiznis/storefront/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "sk_test_webhook"

func signedHeaders(payload []byte) http.Header {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	headers := http.Header{}
	headers.Set("x-paystack-signature", hex.EncodeToString(mac.Sum(nil)))
	return headers
}

func newTestWebhook(t *testing.T) (paymentdomain.WebhookService, *gorm.DB) {
	t.Helper()
	db := storetest.NewDB(t)
	node := storetest.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	orders := orderservice.New(orderservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Policy:    config.NewStaticCheckoutPolicy(config.DefaultCheckoutPolicy()),
		Repo:      orderrepo.Provide(),
		Customers: customerrepo.Provide(),
		Payments:  paymentrepo.Provide(),
	})
	_, err := orders.CreateOrder(context.Background(), orderdomain.CreateOrderRequest{
		Customer: orderdomain.CustomerInfo{Name: "Efua Boateng", Phone: "0201112222"},
		Currency: "GHS",
		Items: []orderdomain.LineItem{{
			ProductID:   node.Generate(),
			ProductName: "Shea Butter Set",
			UnitPrice:   decimal.RequireFromString("80.00"),
			Quantity:    1,
		}},
		Payment: orderdomain.PaymentDraft{Provider: "paystack", Reference: "SFP-WH-1"},
	})
	require.NoError(t, err)

	gateway, err := paystack.NewFactory().NewAdapter(paymentdomain.AdapterConfig{SecretKey: secret})
	require.NoError(t, err)

	payments := paymentservice.NewService(paymentservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Repo:    paymentrepo.Provide(),
		Orders:  orderrepo.Provide(),
		Gateway: gateway,
	})
	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Repo:       paymentrepo.Provide(),
		PaymentSvc: payments,
		Gateway:    gateway,
	})
	return svc, db
}

const chargeSuccess = `{"event":"charge.success","data":{"id":501,"status":"success","reference":"SFP-WH-1","amount":8000,"currency":"GHS","channel":"card","gateway_response":"Successful"}}`

func TestIngestWebhookAppliesChargeOnce(t *testing.T) {
	svc, db := newTestWebhook(t)
	ctx := context.Background()
	payload := []byte(chargeSuccess)

	require.NoError(t, svc.IngestWebhook(ctx, payload, signedHeaders(payload)))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM payments WHERE status = 'COMPLETED'`))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM orders WHERE status = 'CONFIRMED'`))
	assert.EqualValues(t, 1, storetest.Count(t, db,
		`SELECT COUNT(*) FROM payment_webhook_events WHERE event_key = ? AND processed_at IS NOT NULL`, "charge.success:501"))
	events := storetest.Count(t, db, `SELECT COUNT(*) FROM order_events`)

	err := svc.IngestWebhook(ctx, payload, signedHeaders(payload))
	require.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	assert.Equal(t, events, storetest.Count(t, db, `SELECT COUNT(*) FROM order_events`))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM payment_webhook_events`))
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	svc, db := newTestWebhook(t)
	payload := []byte(chargeSuccess)
	headers := http.Header{}
	headers.Set("x-paystack-signature", "00ff")

	err := svc.IngestWebhook(context.Background(), payload, headers)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	assert.EqualValues(t, 0, storetest.Count(t, db, `SELECT COUNT(*) FROM payment_webhook_events`))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM payments WHERE status = 'PENDING'`))
}

func TestIngestWebhookIgnoresOtherEvents(t *testing.T) {
	svc, db := newTestWebhook(t)
	payload := []byte(`{"event":"subscription.create","data":{"id":9}}`)

	err := svc.IngestWebhook(context.Background(), payload, signedHeaders(payload))
	require.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
	assert.EqualValues(t, 0, storetest.Count(t, db, `SELECT COUNT(*) FROM payment_webhook_events`))
}

func TestIngestWebhookUnknownReferenceIsJournalled(t *testing.T) {
	svc, db := newTestWebhook(t)
	payload := []byte(`{"event":"charge.success","data":{"reference":"SFP-NOT-OURS","amount":100,"currency":"GHS","status":"success"}}`)

	require.NoError(t, svc.IngestWebhook(context.Background(), payload, signedHeaders(payload)))
	assert.EqualValues(t, 1, storetest.Count(t, db,
		`SELECT COUNT(*) FROM payment_webhook_events WHERE event_key LIKE 'sha256:%' AND processed_at IS NOT NULL`))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM payments WHERE status = 'PENDING'`))
}

func TestIngestWebhookStoresMismatchForFollowUp(t *testing.T) {
	svc, db := newTestWebhook(t)
	payload := []byte(`{"event":"charge.success","data":{"id":502,"status":"success","reference":"SFP-WH-1","amount":100,"currency":"GHS"}}`)

	require.NoError(t, svc.IngestWebhook(context.Background(), payload, signedHeaders(payload)))
	assert.EqualValues(t, 1, storetest.Count(t, db,
		`SELECT COUNT(*) FROM payment_webhook_events WHERE processing_error = ? AND processed_at IS NULL`, paymentdomain.OutcomeAmountMismatch))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM payments WHERE status = 'PENDING'`))
}
