package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Customer is keyed by the digits of the phone number used at checkout.
type Customer struct {
	ID          snowflake.ID    `gorm:"column:id" json:"id"`
	Phone       string          `gorm:"column:phone" json:"phone"`
	Name        string          `gorm:"column:name" json:"name"`
	Email       string          `gorm:"column:email" json:"email"`
	WhatsApp    string          `gorm:"column:whatsapp" json:"whatsapp,omitempty"`
	AddressLine string          `gorm:"column:address_line" json:"address_line"`
	City        string          `gorm:"column:city" json:"city"`
	Region      string          `gorm:"column:region" json:"region"`
	Country     string          `gorm:"column:country" json:"country"`
	OrderCount  int             `gorm:"column:order_count" json:"order_count"`
	TotalSpent  decimal.Decimal `gorm:"column:total_spent" json:"total_spent"`
	LastOrderAt *time.Time      `gorm:"column:last_order_at" json:"last_order_at,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// NormalizePhone strips everything but digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	ErrInvalidPhone = errors.New("invalid_phone")
	ErrInvalidName  = errors.New("invalid_name")
)
