package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/money"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	providerName   = "paystack"
	defaultBaseURL = "https://api.paystack.co"
	signatureKey   = "X-Paystack-Signature"
	maxBodyBytes   = 1 << 20
	defaultTimeout = 20 * time.Second
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	timeout := cfg.TimeoutFunc
	if timeout == nil {
		fixed := cfg.Timeout
		timeout = func() time.Duration { return fixed }
	}

	return &Adapter{
		secretKey: secret,
		baseURL:   baseURL,
		client:    client,
		timeout:   timeout,
		observer:  cfg.Observer,
	}, nil
}

// Adapter talks to the Paystack transaction API. Amounts are exchanged in
// the currency's minor unit.
type Adapter struct {
	secretKey string
	baseURL   string
	client    *http.Client
	timeout   func() time.Duration
	observer  paymentdomain.RequestObserver
}

func (a *Adapter) Provider() string {
	return providerName
}

func (a *Adapter) Initialize(ctx context.Context, req paymentdomain.InitializeRequest) (*paymentdomain.InitializeResult, error) {
	currency := money.NormalizeCurrency(req.Currency)
	amount, err := money.ToMinor(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	body, err := json.Marshal(initializeBody{
		Email:       strings.TrimSpace(req.Email),
		Amount:      amount,
		Currency:    currency,
		Reference:   reference,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	var data initializeData
	if err := a.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.AuthorizationURL) == "" {
		return nil, fmt.Errorf("%w: missing authorization_url", paymentdomain.ErrGatewayUnavailable)
	}
	if data.Reference == "" {
		data.Reference = reference
	}

	return &paymentdomain.InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, reference string) (*paymentdomain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	var data json.RawMessage
	if err := a.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	txn, err := decodeTransaction(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	if txn.Reference == "" {
		txn.Reference = reference
	}
	return txn, nil
}

// VerifyWebhook checks the HMAC-SHA512 of the raw body against the
// x-paystack-signature header.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureKey))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(a.secretKey))
	_, _ = mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ParseEvent(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var event webhookEnvelope
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	eventType := strings.TrimSpace(event.Event)
	switch eventType {
	case paymentdomain.EventChargeSuccess, paymentdomain.EventChargeFailed:
	case "":
		return nil, paymentdomain.ErrInvalidEvent
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	txn, err := decodeTransaction(event.Data)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if txn.Reference == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if txn.Status == "" {
		if eventType == paymentdomain.EventChargeSuccess {
			txn.Status = paymentdomain.TransactionSuccess
		} else {
			txn.Status = paymentdomain.TransactionFailed
		}
	}

	var eventID string
	if id := rawID(event.Data); id != "" {
		eventID = eventType + ":" + id
	}
	return &paymentdomain.WebhookEvent{
		Provider:    providerName,
		Type:        eventType,
		EventID:     eventID,
		Transaction: *txn,
	}, nil
}

func (a *Adapter) do(ctx context.Context, operation, method, path string, body []byte, out any) (err error) {
	defer func() {
		a.observe(ctx, operation, err)
	}()

	reqCtx, cancel := context.WithTimeout(ctx, a.requestTimeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: status %d: %v", paymentdomain.ErrGatewayUnavailable, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !envelope.Status {
		message := strings.TrimSpace(envelope.Message)
		if message == "" {
			message = "paystack_request_failed"
		}
		return fmt.Errorf("%w: status %d: %s", paymentdomain.ErrGatewayUnavailable, resp.StatusCode, message)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%w: empty data", paymentdomain.ErrGatewayUnavailable)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], envelope.Data...)
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	return nil
}

// requestTimeout bounds a single call, including reading the response body.
func (a *Adapter) requestTimeout() time.Duration {
	if d := a.timeout(); d > 0 {
		return d
	}
	return defaultTimeout
}

func (a *Adapter) observe(ctx context.Context, operation string, err error) {
	if a.observer == nil {
		return
	}
	outcome := "ok"
	var netErr net.Error
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		outcome = "timeout"
	default:
		outcome = "error"
	}
	a.observer.RecordGatewayRequest(ctx, providerName, operation, outcome)
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeBody struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type transactionData struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
	PaidAt          string `json:"paid_at"`
}

func decodeTransaction(raw json.RawMessage) (*paymentdomain.Transaction, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing transaction data")
	}
	var data transactionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	currency := money.NormalizeCurrency(data.Currency)
	txn := &paymentdomain.Transaction{
		Reference:       strings.TrimSpace(data.Reference),
		Status:          strings.ToLower(strings.TrimSpace(data.Status)),
		Currency:        currency,
		Channel:         strings.TrimSpace(data.Channel),
		GatewayResponse: strings.TrimSpace(data.GatewayResponse),
		Raw:             append([]byte(nil), raw...),
	}
	if currency != "" {
		amount, err := money.FromMinor(data.Amount, currency)
		if err != nil {
			return nil, err
		}
		txn.Amount = amount
	}
	if paidAt := strings.TrimSpace(data.PaidAt); paidAt != "" {
		if parsed, err := time.Parse(time.RFC3339, paidAt); err == nil {
			utc := parsed.UTC()
			txn.PaidAt = &utc
		}
	}
	return txn, nil
}

func rawID(data json.RawMessage) string {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	id := strings.Trim(strings.TrimSpace(string(probe.ID)), `"`)
	if id == "null" {
		return ""
	}
	return id
}
