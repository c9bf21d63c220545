package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/storefront/internal/pricing/domain"
	"gorm.io/gorm"
)

// CatalogProduct is a product inserted by EnsureDemoCatalog.
type CatalogProduct struct {
	Name     string
	Prices   map[string]string
	Variants []string
	// PercentOff, when set, attaches an open-ended percentage discount.
	PercentOff string
}

// DemoCatalog is the catalog loaded into fresh development databases.
var DemoCatalog = []CatalogProduct{
	{
		Name:     "Kente Weave Tote",
		Prices:   map[string]string{"GHS": "350.00", "USD": "29.00"},
		Variants: []string{"Gold", "Indigo"},
	},
	{
		Name:       "Shea Butter Gift Set",
		Prices:     map[string]string{"GHS": "180.00", "USD": "15.00"},
		PercentOff: "10",
	},
	{
		Name:   "Adinkra Print Scarf",
		Prices: map[string]string{"GHS": "120.00", "USD": "10.00"},
	},
}

// EnsureDemoCatalog inserts every product whose slug is not yet present.
// It returns the number of products created.
func EnsureDemoCatalog(ctx context.Context, db *gorm.DB, node *snowflake.Node, products []CatalogProduct) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range products {
			ok, err := ensureProductTx(tx, node, p)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func ensureProductTx(tx *gorm.DB, node *snowflake.Node, p CatalogProduct) (bool, error) {
	productSlug := slug.Make(p.Name)
	if productSlug == "" {
		return false, errors.New("seed product name is required")
	}

	var existing int64
	if err := tx.Raw(`SELECT COUNT(1) FROM products WHERE slug = ?`, productSlug).Scan(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}

	now := time.Now().UTC()
	productID := node.Generate()
	if err := tx.Exec(
		`INSERT INTO products (id, name, slug, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		productID, p.Name, productSlug, true, now, now,
	).Error; err != nil {
		return false, err
	}

	for currency, amount := range p.Prices {
		price, err := decimal.NewFromString(amount)
		if err != nil {
			return false, err
		}
		if err := tx.Exec(
			`INSERT INTO product_prices (id, product_id, currency, price, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			node.Generate(), productID, currency, price, now, now,
		).Error; err != nil {
			return false, err
		}
	}

	if p.PercentOff != "" {
		value, err := decimal.NewFromString(p.PercentOff)
		if err != nil {
			return false, err
		}
		if err := tx.Exec(
			`INSERT INTO product_discounts (id, product_id, discount_type, value, is_active, start_date, end_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			node.Generate(), productID, string(pricingdomain.DiscountTypePercentage), value, true, now, nil, now, now,
		).Error; err != nil {
			return false, err
		}
	}

	for _, name := range p.Variants {
		if err := tx.Exec(
			`INSERT INTO product_variants (id, product_id, name, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			node.Generate(), productID, name, true, now, now,
		).Error; err != nil {
			return false, err
		}
	}

	return true, nil
}
