package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "PERCENTAGE"
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Product is the catalog view needed to price a cart line.
type Product struct {
	ID       snowflake.ID
	Name     string
	Slug     string
	IsActive bool
	Prices   []Price
	Discount *Discount
	Variants []Variant
}

type Price struct {
	Currency string          `gorm:"column:currency"`
	Amount   decimal.Decimal `gorm:"column:price"`
}

type Discount struct {
	ID        snowflake.ID    `gorm:"column:id"`
	ProductID snowflake.ID    `gorm:"column:product_id"`
	Type      DiscountType    `gorm:"column:discount_type"`
	Value     decimal.Decimal `gorm:"column:value"`
	IsActive  bool            `gorm:"column:is_active"`
	StartDate time.Time       `gorm:"column:start_date"`
	EndDate   *time.Time      `gorm:"column:end_date"`
}

type Variant struct {
	ID        snowflake.ID `gorm:"column:id"`
	ProductID snowflake.ID `gorm:"column:product_id"`
	Name      string       `gorm:"column:name"`
	IsActive  bool         `gorm:"column:is_active"`
}

// FindVariant returns the active variant with the given id.
func (p Product) FindVariant(id snowflake.ID) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id && v.IsActive {
			return v, true
		}
	}
	return Variant{}, false
}

// ResolvedPrice is the outcome of pricing one product in one currency.
type ResolvedPrice struct {
	Currency        string
	BasePrice       decimal.Decimal
	EffectivePrice  decimal.Decimal
	DiscountApplied bool
}
