package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Address is the shipping address snapshot stored with an order.
type Address struct {
	Line    string `json:"line"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country,omitempty"`
}

type Order struct {
	ID              snowflake.ID    `gorm:"column:id" json:"id"`
	OrderNumber     string          `gorm:"column:order_number" json:"order_number"`
	Status          Status          `gorm:"column:status" json:"status"`
	CustomerID      snowflake.ID    `gorm:"column:customer_id" json:"customer_id"`
	CustomerName    string          `gorm:"column:customer_name" json:"customer_name"`
	CustomerEmail   string          `gorm:"column:customer_email" json:"customer_email"`
	CustomerPhone   string          `gorm:"column:customer_phone" json:"customer_phone"`
	Currency        string          `gorm:"column:currency" json:"currency"`
	ExchangeRate    decimal.Decimal `gorm:"column:exchange_rate" json:"exchange_rate"`
	Subtotal        decimal.Decimal `gorm:"column:subtotal" json:"subtotal"`
	ShippingCost    decimal.Decimal `gorm:"column:shipping_cost" json:"shipping_cost"`
	Discount        decimal.Decimal `gorm:"column:discount" json:"discount"`
	Total           decimal.Decimal `gorm:"column:total" json:"total"`
	ShippingAddress datatypes.JSON  `gorm:"column:shipping_address" json:"shipping_address"`
	CustomerNote    string          `gorm:"column:customer_note" json:"customer_note,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// Address decodes the shipping snapshot.
func (o Order) Address() (Address, error) {
	var addr Address
	if len(o.ShippingAddress) == 0 {
		return addr, nil
	}
	err := json.Unmarshal(o.ShippingAddress, &addr)
	return addr, err
}

type Item struct {
	ID          snowflake.ID    `gorm:"column:id" json:"id"`
	OrderID     snowflake.ID    `gorm:"column:order_id" json:"order_id"`
	ProductID   snowflake.ID    `gorm:"column:product_id" json:"product_id"`
	VariantID   *snowflake.ID   `gorm:"column:variant_id" json:"variant_id,omitempty"`
	ProductName string          `gorm:"column:product_name" json:"product_name"`
	VariantName string          `gorm:"column:variant_name" json:"variant_name,omitempty"`
	Options     datatypes.JSON  `gorm:"column:options" json:"options"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price" json:"unit_price"`
	Quantity    int             `gorm:"column:quantity" json:"quantity"`
	TotalPrice  decimal.Decimal `gorm:"column:total_price" json:"total_price"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
}

// Event is an append-only timeline entry.
type Event struct {
	ID        snowflake.ID `gorm:"column:id" json:"id"`
	OrderID   snowflake.ID `gorm:"column:order_id" json:"order_id"`
	Status    Status       `gorm:"column:status" json:"status"`
	Note      string       `gorm:"column:note" json:"note"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"created_at"`
}
