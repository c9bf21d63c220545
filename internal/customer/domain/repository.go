package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// RecordOrder inserts the customer on first order, otherwise refreshes the
	// contact snapshot and adds one order of orderTotal to the counters.
	RecordOrder(ctx context.Context, db *gorm.DB, customer *Customer, orderTotal decimal.Decimal) (*Customer, error)
	FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*Customer, error)
}
