package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type productRow struct {
	ID       snowflake.ID `gorm:"column:id"`
	Name     string       `gorm:"column:name"`
	Slug     string       `gorm:"column:slug"`
	IsActive bool         `gorm:"column:is_active"`
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var row productRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, is_active FROM products WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return r.load(ctx, db, row)
}

func (r *repo) FindProductBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Product, error) {
	var row productRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, is_active FROM products WHERE slug = ?`,
		slug,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return r.load(ctx, db, row)
}

func (r *repo) load(ctx context.Context, db *gorm.DB, row productRow) (*domain.Product, error) {
	product := &domain.Product{
		ID:       row.ID,
		Name:     row.Name,
		Slug:     row.Slug,
		IsActive: row.IsActive,
	}

	if err := db.WithContext(ctx).Raw(
		`SELECT currency, price FROM product_prices WHERE product_id = ?`,
		row.ID,
	).Scan(&product.Prices).Error; err != nil {
		return nil, err
	}

	var discount domain.Discount
	if err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, discount_type, value, is_active, start_date, end_date
		 FROM product_discounts WHERE product_id = ?`,
		row.ID,
	).Scan(&discount).Error; err != nil {
		return nil, err
	}
	if discount.ID != 0 {
		product.Discount = &discount
	}

	if err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, name, is_active FROM product_variants WHERE product_id = ? ORDER BY id`,
		row.ID,
	).Scan(&product.Variants).Error; err != nil {
		return nil, err
	}

	return product, nil
}
