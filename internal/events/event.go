package events

import "time"

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderConfirmed     = "order.confirmed"
	TypePaymentFailed      = "payment.failed"
	TypeOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the message value published for order lifecycle changes.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	Reference   string    `json:"payment_reference,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Total       string    `json:"total,omitempty"`
	Note        string    `json:"note,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
