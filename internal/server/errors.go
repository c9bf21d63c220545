package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/storefront/internal/checkout/domain"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests, try again later",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, orderdomain.ErrInvalidStatusTransition),
		errors.Is(err, orderdomain.ErrStatusConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusInternalServerError, errorPayload{
			Type:    "gateway_error",
			Message: "payment system unavailable",
		}
	case errors.Is(err, paymentdomain.ErrVerificationFailed):
		return http.StatusInternalServerError, errorPayload{
			Type:    "verification_error",
			Message: "payment verification failed, contact support",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code on the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, http.StatusText(status)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	_, ok := validationSentinel(err)
	return ok
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, orderdomain.ErrInvalidStatusTransition):
		return "status transition not allowed"
	case errors.Is(err, orderdomain.ErrStatusConflict):
		return "order changed concurrently, reload and retry"
	default:
		return "conflict"
	}
}

// validationSentinel finds the first known validation error in the chain,
// so wrapped domain errors still produce a stable code.
func validationSentinel(err error) (error, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel, true
		}
	}
	return nil, false
}

func validationErrorCode(err error) string {
	if sentinel, ok := validationSentinel(err); ok {
		return sentinel.Error()
	}
	return err.Error()
}

var validationSentinels = []error{
	ErrInvalidRequest,
	paymentdomain.ErrInvalidReference,
	orderdomain.ErrInvalidStatus,
	checkoutdomain.ErrInvalidEmail,
	checkoutdomain.ErrInvalidAddress,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidPhone,
	orderdomain.ErrInvalidCustomerName,
	orderdomain.ErrInvalidPhone,
	orderdomain.ErrInvalidCurrency,
	orderdomain.ErrInvalidExchangeRate,
	orderdomain.ErrEmptyOrder,
	orderdomain.ErrInvalidItem,
	orderdomain.ErrInvalidTotal,
	pricingdomain.ErrUnsupportedCurrency,
	pricingdomain.ErrInvalidCurrency,
	pricingdomain.ErrEmptyCart,
	pricingdomain.ErrTooManyLines,
	pricingdomain.ErrInvalidQuantity,
	pricingdomain.ErrInvalidProduct,
	pricingdomain.ErrProductUnavailable,
	pricingdomain.ErrVariantUnavailable,
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_customer_name", "invalid_name":
		return "name"
	case "unsupported_currency":
		return "currency"
	case "empty_cart", "empty_order", "too_many_lines", "invalid_item", "invalid_quantity",
		"invalid_product", "product_unavailable", "variant_unavailable":
		return "items"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_email":
		return "a valid email address is required"
	case "invalid_phone":
		return "a valid phone number is required"
	case "invalid_customer_name", "invalid_name":
		return "name is required"
	case "invalid_address":
		return "shipping address is incomplete"
	case "unsupported_currency":
		return "currency is not offered for this product"
	case "empty_cart", "empty_order":
		return "cart is empty"
	case "too_many_lines":
		return "cart has too many lines"
	case "invalid_quantity":
		return "quantity out of range"
	case "product_unavailable", "variant_unavailable":
		return "an item in the cart is no longer available"
	case "invalid_status":
		return "unknown order status"
	default:
		return "invalid value"
	}
}
