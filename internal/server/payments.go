package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/storefront/internal/checkout/domain"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
	"go.uber.org/zap"
)

// maxWebhookBody caps what is read from a webhook delivery.
const maxWebhookBody = 1 << 20

type cartItemRequest struct {
	ProductID string            `json:"productId"`
	VariantID string            `json:"variantId"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options"`
}

type initializePaymentRequest struct {
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	WhatsApp     string            `json:"whatsapp"`
	Address      string            `json:"address"`
	City         string            `json:"city"`
	Region       string            `json:"region"`
	Country      string            `json:"country"`
	Notes        string            `json:"notes"`
	Currency     string            `json:"currency"`
	ExchangeRate *decimal.Decimal  `json:"exchangeRate"`
	Items        []cartItemRequest `json:"items"`
}

type initializePaymentResponse struct {
	Success          bool   `json:"success"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
	OrderNumber      string `json:"orderNumber"`
}

type verifyPaymentResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Message     string `json:"message,omitempty"`
}

func toCartLines(items []cartItemRequest) []pricingdomain.CartLine {
	lines := make([]pricingdomain.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricingdomain.CartLine{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
			Options:   item.Options,
		})
	}
	return lines
}

func (s *Server) InitializePayment(c *gin.Context) {
	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	exchangeRate := decimal.Zero
	if req.ExchangeRate != nil {
		exchangeRate = *req.ExchangeRate
	}

	resp, err := s.checkoutSvc.InitializePayment(c.Request.Context(), checkoutdomain.InitializeRequest{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		WhatsApp:     req.WhatsApp,
		Address:      req.Address,
		City:         req.City,
		Region:       req.Region,
		Country:      req.Country,
		Notes:        req.Notes,
		Currency:     req.Currency,
		ExchangeRate: exchangeRate,
		Items:        toCartLines(req.Items),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("order_number", resp.OrderNumber)
	c.Set("payment_reference", resp.Reference)
	c.JSON(http.StatusOK, initializePaymentResponse{
		Success:          true,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		Reference:        resp.Reference,
		OrderNumber:      resp.OrderNumber,
	})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		AbortWithError(c, newValidationError("reference", "required", "reference is required"))
		return
	}
	c.Set("payment_reference", reference)

	result, err := s.paymentSvc.VerifyPayment(c.Request.Context(), paymentdomain.SourceVerify, reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("order_number", result.OrderNumber)
	c.JSON(http.StatusOK, verifyPaymentResponse{
		Success:     result.Succeeded(),
		Status:      result.Status,
		OrderNumber: result.OrderNumber,
		Message:     verifyMessage(result.Status),
	})
}

func verifyMessage(status string) string {
	switch status {
	case paymentdomain.OutcomeCompleted, paymentdomain.OutcomeAlreadyCompleted:
		return ""
	case paymentdomain.OutcomeFailed:
		return "payment was declined"
	case paymentdomain.OutcomeAmountMismatch:
		return "payment could not be matched to the order, contact support"
	default:
		return "payment not completed yet"
	}
}

// HandlePaymentWebhook answers 200 to every signature-valid delivery so the
// gateway stops retrying; processing failures stay in the webhook journal.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header)
	switch {
	case err == nil,
		errors.Is(err, paymentdomain.ErrEventAlreadyProcessed),
		errors.Is(err, paymentdomain.ErrEventIgnored):
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		AbortWithError(c, err)
		return
	default:
		logger.FromContext(c.Request.Context()).Error("webhook processing failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
