package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
)

type quoteCartRequest struct {
	Currency string            `json:"currency"`
	Items    []cartItemRequest `json:"items"`
}

type quotedLineResponse struct {
	ProductID       string          `json:"productId"`
	VariantID       string          `json:"variantId,omitempty"`
	Name            string          `json:"name"`
	VariantName     string          `json:"variantName,omitempty"`
	BasePrice       decimal.Decimal `json:"basePrice"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Quantity        int             `json:"quantity"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
	DiscountApplied bool            `json:"discountApplied"`
}

type quoteCartResponse struct {
	Currency     string               `json:"currency"`
	Items        []quotedLineResponse `json:"items"`
	Subtotal     decimal.Decimal      `json:"subtotal"`
	ShippingCost decimal.Decimal      `json:"shippingCost"`
	Total        decimal.Decimal      `json:"total"`
}

func (s *Server) QuoteCart(c *gin.Context) {
	var req quoteCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	quote, err := s.pricingSvc.QuoteCart(c.Request.Context(), pricingdomain.QuoteRequest{
		Currency: req.Currency,
		Items:    toCartLines(req.Items),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := quoteCartResponse{
		Currency:     quote.Currency,
		Items:        make([]quotedLineResponse, 0, len(quote.Lines)),
		Subtotal:     quote.Subtotal,
		ShippingCost: quote.ShippingCost,
		Total:        quote.Total,
	}
	for _, line := range quote.Lines {
		item := quotedLineResponse{
			ProductID:       line.ProductID.String(),
			Name:            line.ProductName,
			VariantName:     line.VariantName,
			BasePrice:       line.BasePrice,
			UnitPrice:       line.UnitPrice,
			Quantity:        line.Quantity,
			LineTotal:       line.LineTotal,
			DiscountApplied: line.DiscountApplied,
		}
		if line.VariantID != nil {
			item.VariantID = line.VariantID.String()
		}
		resp.Items = append(resp.Items, item)
	}

	c.JSON(http.StatusOK, resp)
}

type orderItemResponse struct {
	ProductID   string            `json:"productId"`
	VariantID   string            `json:"variantId,omitempty"`
	Name        string            `json:"name"`
	VariantName string            `json:"variantName,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	UnitPrice   decimal.Decimal   `json:"unitPrice"`
	Quantity    int               `json:"quantity"`
	TotalPrice  decimal.Decimal   `json:"totalPrice"`
}

type orderEventResponse struct {
	Status    string    `json:"status"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderPaymentResponse struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Channel   string     `json:"channel,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

type orderResponse struct {
	OrderNumber     string                `json:"orderNumber"`
	Status          string                `json:"status"`
	CustomerName    string                `json:"customerName"`
	Currency        string                `json:"currency"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	ShippingCost    decimal.Decimal       `json:"shippingCost"`
	Discount        decimal.Decimal       `json:"discount"`
	Total           decimal.Decimal       `json:"total"`
	ShippingAddress orderdomain.Address   `json:"shippingAddress"`
	CreatedAt       time.Time             `json:"createdAt"`
	Items           []orderItemResponse   `json:"items"`
	Events          []orderEventResponse  `json:"events"`
	Payment         *orderPaymentResponse `json:"payment,omitempty"`
}

func (s *Server) GetOrder(c *gin.Context) {
	orderNumber := strings.TrimSpace(c.Param("orderNumber"))
	c.Set("order_number", orderNumber)

	detail, err := s.orderSvc.GetByNumber(c.Request.Context(), orderNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(detail))
}

func newOrderResponse(detail *orderdomain.OrderDetail) orderResponse {
	order := detail.Order
	// the snapshot is written by CreateOrder; a decode failure leaves it empty
	address, _ := order.Address()

	resp := orderResponse{
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		CustomerName:    order.CustomerName,
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		ShippingCost:    order.ShippingCost,
		Discount:        order.Discount,
		Total:           order.Total,
		ShippingAddress: address,
		CreatedAt:       order.CreatedAt,
		Items:           make([]orderItemResponse, 0, len(detail.Items)),
		Events:          make([]orderEventResponse, 0, len(detail.Events)),
	}
	for _, item := range detail.Items {
		line := orderItemResponse{
			ProductID:   item.ProductID.String(),
			Name:        item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
		}
		if item.VariantID != nil {
			line.VariantID = item.VariantID.String()
		}
		if len(item.Options) > 0 {
			_ = json.Unmarshal(item.Options, &line.Options)
		}
		resp.Items = append(resp.Items, line)
	}
	for _, event := range detail.Events {
		resp.Events = append(resp.Events, orderEventResponse{
			Status:    string(event.Status),
			Note:      event.Note,
			CreatedAt: event.CreatedAt,
		})
	}
	if detail.Payment != nil {
		resp.Payment = &orderPaymentResponse{
			Reference: detail.Payment.Reference,
			Status:    string(detail.Payment.Status),
			Channel:   detail.Payment.Channel,
			PaidAt:    detail.Payment.PaidAt,
		}
	}
	return resp
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	orderNumber := strings.TrimSpace(c.Param("orderNumber"))
	c.Set("order_number", orderNumber)

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status, ok := orderdomain.ParseStatus(req.Status)
	if !ok {
		AbortWithError(c, orderdomain.ErrInvalidStatus)
		return
	}

	if _, err := s.orderSvc.UpdateOrderStatusByNumber(c.Request.Context(), orderNumber, status, strings.TrimSpace(req.Note)); err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.orderSvc.GetByNumber(c.Request.Context(), orderNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(detail))
}
