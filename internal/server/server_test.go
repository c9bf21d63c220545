package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/storefront/internal/checkout/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/observability"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentmock "github.com/smallbiznis/storefront/internal/payment/domain/mock"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCheckoutService struct {
	calls int
	err   error
}

func (f *fakeCheckoutService) InitializePayment(_ context.Context, req checkoutdomain.InitializeRequest) (*checkoutdomain.InitializeResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &checkoutdomain.InitializeResponse{
		AuthorizationURL: "https://checkout.example/abc",
		AccessCode:       "abc",
		Reference:        "SFP-TEST-" + strconv.Itoa(f.calls),
		OrderNumber:      "SF-260301-ABCDE",
	}, nil
}

type fakePricingService struct{}

func (fakePricingService) QuoteCart(_ context.Context, req pricingdomain.QuoteRequest) (*pricingdomain.Quote, error) {
	if len(req.Items) == 0 {
		return nil, pricingdomain.ErrEmptyCart
	}
	unit := decimal.RequireFromString("100.00")
	return &pricingdomain.Quote{
		Currency: "GHS",
		Lines: []pricingdomain.QuotedLine{{
			ProductID:   snowflake.ID(42),
			ProductName: "Shea Butter",
			BasePrice:   unit,
			UnitPrice:   unit,
			Quantity:    req.Items[0].Quantity,
			LineTotal:   unit.Mul(decimal.NewFromInt(int64(req.Items[0].Quantity))),
		}},
		Subtotal:     unit.Mul(decimal.NewFromInt(int64(req.Items[0].Quantity))),
		ShippingCost: decimal.Zero,
		Discount:     decimal.Zero,
		Total:        unit.Mul(decimal.NewFromInt(int64(req.Items[0].Quantity))),
	}, nil
}

type fakeOrderService struct {
	order       orderdomain.Order
	transitions []orderdomain.Status
	err         error
}

func (f *fakeOrderService) CreateOrder(context.Context, orderdomain.CreateOrderRequest) (*orderdomain.PlacedOrder, error) {
	return nil, errors.New("not used")
}

func (f *fakeOrderService) UpdateOrderStatus(context.Context, snowflake.ID, orderdomain.Status, string) (*orderdomain.Order, error) {
	return nil, errors.New("not used")
}

func (f *fakeOrderService) UpdateOrderStatusByNumber(_ context.Context, orderNumber string, to orderdomain.Status, _ string) (*orderdomain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.transitions = append(f.transitions, to)
	f.order.Status = to
	return &f.order, nil
}

func (f *fakeOrderService) GetByNumber(_ context.Context, orderNumber string) (*orderdomain.OrderDetail, error) {
	if orderNumber != f.order.OrderNumber {
		return nil, orderdomain.ErrNotFound
	}
	return &orderdomain.OrderDetail{
		Order: f.order,
		Events: []orderdomain.Event{
			{Status: orderdomain.StatusPending, Note: "Order placed"},
		},
	}, nil
}

type testEnv struct {
	engine   *gin.Engine
	checkout *fakeCheckoutService
	orders   *fakeOrderService
	payments *paymentmock.MockService
	webhooks *paymentmock.MockWebhookService
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	cfg := config.Config{}
	cfg.Admin.APIToken = adminToken
	return newTestEnvWithConfig(t, cfg)
}

func newTestEnvWithConfig(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)

	policy := config.DefaultCheckoutPolicy()
	policy.InitializeRateLimit = 2
	limiter := ratelimit.NewCheckoutLimiter(ratelimit.CheckoutLimiterParams{
		Log:     zap.NewNop(),
		Policy:  config.NewStaticCheckoutPolicy(policy),
		Limiter: ratelimit.NewMemoryLimiter(clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))),
	})

	engine, err := NewEngine(cfg, observability.Config{Environment: "test"}, nil)
	require.NoError(t, err)

	env := &testEnv{
		engine:   engine,
		checkout: &fakeCheckoutService{},
		orders: &fakeOrderService{order: orderdomain.Order{
			OrderNumber: "SF-260301-ABCDE",
			Status:      orderdomain.StatusConfirmed,
			Currency:    "GHS",
			Total:       decimal.RequireFromString("250.00"),
		}},
		payments: paymentmock.NewMockService(ctrl),
		webhooks: paymentmock.NewMockWebhookService(ctrl),
	}

	NewServer(ServerParams{
		Gin:         env.engine,
		Cfg:         cfg,
		Log:         zap.NewNop(),
		CheckoutSvc: env.checkout,
		PricingSvc:  fakePricingService{},
		OrderSvc:    env.orders,
		PaymentSvc:  env.payments,
		WebhookSvc:  env.webhooks,
		Limiter:     limiter,
	})
	return env
}

func (e *testEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	return e.doFrom("", method, path, body, headers)
}

func (e *testEnv) doFrom(remoteAddr, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

const initializeBody = `{"name":"Ama Mensah","email":"ama@example.com","phone":"0241234567","address":"12 Oxford St","city":"Accra","region":"Greater Accra","currency":"GHS","items":[{"productId":"42","quantity":1}]}`

func TestInitializePaymentReturnsCheckoutLink(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/payments/initialize", []byte(initializeBody), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp initializePaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "https://checkout.example/abc", resp.AuthorizationURL)
	assert.Equal(t, "SF-260301-ABCDE", resp.OrderNumber)
	assert.NotEmpty(t, resp.Reference)
}

func TestInitializePaymentRateLimited(t *testing.T) {
	env := newTestEnv(t, "")

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/payments/initialize", []byte(initializeBody), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(http.MethodPost, "/payments/initialize", []byte(initializeBody), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
	assert.Equal(t, 2, env.checkout.calls)
}

func TestInitializeRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, "")

	for i := 0; i < 2; i++ {
		rec := env.doFrom("203.0.113.7:4000", http.MethodPost, "/payments/initialize", []byte(initializeBody),
			map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.doFrom("203.0.113.7:4000", http.MethodPost, "/payments/initialize", []byte(initializeBody),
		map[string]string{"X-Forwarded-For": "10.0.0.99"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, env.checkout.calls)
}

func TestInitializeRateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	cfg := config.Config{TrustedProxies: []string{"10.1.0.0/16"}}
	env := newTestEnvWithConfig(t, cfg)

	for i := 0; i < 3; i++ {
		rec := env.doFrom("10.1.0.5:4000", http.MethodPost, "/payments/initialize", []byte(initializeBody),
			map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i)})
		require.Equal(t, http.StatusOK, rec.Code, "client %d", i)
	}

	for i := 0; i < 2; i++ {
		rec := env.doFrom("10.1.0.5:4000", http.MethodPost, "/payments/initialize", []byte(initializeBody),
			map[string]string{"X-Forwarded-For": "198.51.100.0"})
		if i == 0 {
			require.Equal(t, http.StatusOK, rec.Code)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
}

func TestNewEngineRejectsMalformedTrustedProxy(t *testing.T) {
	_, err := NewEngine(config.Config{TrustedProxies: []string{"not-an-ip"}}, observability.Config{Environment: "test"}, nil)
	require.Error(t, err)
}

func TestInitializePaymentValidationEnvelope(t *testing.T) {
	env := newTestEnv(t, "")
	env.checkout.err = checkoutdomain.ErrInvalidEmail

	rec := env.do(http.MethodPost, "/payments/initialize", []byte(initializeBody), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "email", payload.Errors[0].Field)
	assert.Equal(t, "invalid_email", payload.Errors[0].Code)
}

func TestInitializePaymentGatewayFailureIsGeneric(t *testing.T) {
	env := newTestEnv(t, "")
	env.checkout.err = errors.Join(paymentdomain.ErrGatewayUnavailable, errors.New("dial tcp: connection refused"))

	rec := env.do(http.MethodPost, "/payments/initialize", []byte(initializeBody), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "payment system unavailable", payload.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestInitializePaymentRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/payments/initialize", []byte(`{"items":`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.checkout.calls)
}

func TestVerifyPayment(t *testing.T) {
	env := newTestEnv(t, "")

	env.payments.EXPECT().
		VerifyPayment(gomock.Any(), paymentdomain.SourceVerify, "SFP-PAID").
		Return(&paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeCompleted, Reference: "SFP-PAID", OrderNumber: "SF-260301-ABCDE"}, nil)
	env.payments.EXPECT().
		VerifyPayment(gomock.Any(), paymentdomain.SourceVerify, "SFP-MISSING").
		Return(nil, paymentdomain.ErrPaymentNotFound)
	env.payments.EXPECT().
		VerifyPayment(gomock.Any(), paymentdomain.SourceVerify, "SFP-DOWN").
		Return(nil, paymentdomain.ErrVerificationFailed)

	rec := env.do(http.MethodGet, "/payments/verify?reference=SFP-PAID", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp verifyPaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, paymentdomain.OutcomeCompleted, resp.Status)
	assert.Equal(t, "SF-260301-ABCDE", resp.OrderNumber)

	rec = env.do(http.MethodGet, "/payments/verify", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/payments/verify?reference=SFP-MISSING", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/payments/verify?reference=SFP-DOWN", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "payment verification failed, contact support", decodeError(t, rec).Message)
}

func TestWebhookBadSignatureIsUnauthorized(t *testing.T) {
	env := newTestEnv(t, "")
	env.webhooks.EXPECT().
		IngestWebhook(gomock.Any(), []byte(`{"event":"charge.success"}`), gomock.Any()).
		Return(paymentdomain.ErrInvalidSignature)

	rec := env.do(http.MethodPost, "/payments/webhook", []byte(`{"event":"charge.success"}`), map[string]string{
		"X-Paystack-Signature": "deadbeef",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestWebhookRedeliveryAcknowledged(t *testing.T) {
	env := newTestEnv(t, "")
	gomock.InOrder(
		env.webhooks.EXPECT().IngestWebhook(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		env.webhooks.EXPECT().IngestWebhook(gomock.Any(), gomock.Any(), gomock.Any()).Return(paymentdomain.ErrEventAlreadyProcessed),
	)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/payments/webhook", []byte(`{"event":"charge.success"}`), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestWebhookProcessingFailureStillAcknowledged(t *testing.T) {
	env := newTestEnv(t, "")
	env.webhooks.EXPECT().
		IngestWebhook(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("database is locked"))

	rec := env.do(http.MethodPost, "/payments/webhook", []byte(`{}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestQuoteCart(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/cart/quote", []byte(`{"currency":"GHS","items":[{"productId":"42","quantity":2}]}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp quoteCartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "42", resp.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("200").Equal(resp.Total))

	rec = env.do(http.MethodPost, "/cart/quote", []byte(`{"currency":"GHS","items":[]}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "items", decodeError(t, rec).Errors[0].Field)
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/orders/SF-260301-ABCDE", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CONFIRMED", resp.Status)
	require.Len(t, resp.Events, 1)

	rec = env.do(http.MethodGet, "/orders/SF-000000-XXXXX", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPatch, "/admin/orders/SF-260301-ABCDE/status", []byte(`{"status":"PROCESSING"}`), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	path := "/admin/orders/SF-260301-ABCDE/status"

	rec := env.do(http.MethodPatch, path, []byte(`{"status":"PROCESSING"}`), map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.orders.transitions)

	rec = env.do(http.MethodPatch, path, []byte(`{"status":"bogus"}`), map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPatch, path, []byte(`{"status":"processing","note":"packing"}`), map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []orderdomain.Status{orderdomain.StatusProcessing}, env.orders.transitions)

	env.orders.err = orderdomain.ErrInvalidStatusTransition
	rec = env.do(http.MethodPatch, path, []byte(`{"status":"PENDING"}`), map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "status transition not allowed", decodeError(t, rec).Message)
}
