package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	ExistsByNumber(ctx context.Context, db *gorm.DB, orderNumber string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Item, error)
	ListEvents(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Event, error)
	// UpdateStatus moves the order from one status to another and reports
	// whether the row was still in the expected status.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
}

// NumberGenerator produces order number candidates.
type NumberGenerator interface {
	Generate(now time.Time) string
}
