package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const customerColumns = `id, phone, name, email, whatsapp, address_line, city, region, country,
	order_count, total_spent, last_order_at, created_at, updated_at`

func (r *repo) RecordOrder(ctx context.Context, db *gorm.DB, customer *domain.Customer, orderTotal decimal.Decimal) (*domain.Customer, error) {
	var stored domain.Customer
	err := db.WithContext(ctx).Raw(
		`INSERT INTO customers (id, phone, name, email, whatsapp, address_line, city, region, country,
			order_count, total_spent, last_order_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
		 ON CONFLICT (phone) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			whatsapp = excluded.whatsapp,
			address_line = excluded.address_line,
			city = excluded.city,
			region = excluded.region,
			country = excluded.country,
			order_count = customers.order_count + 1,
			total_spent = customers.total_spent + excluded.total_spent,
			last_order_at = excluded.last_order_at,
			updated_at = excluded.updated_at
		 RETURNING `+customerColumns,
		customer.ID,
		customer.Phone,
		customer.Name,
		customer.Email,
		customer.WhatsApp,
		customer.AddressLine,
		customer.City,
		customer.Region,
		customer.Country,
		orderTotal,
		customer.LastOrderAt,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Scan(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repo) FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE phone = ?`,
		phone,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}
