package storetest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product describes a catalog row to seed.
type Product struct {
	Name     string
	Slug     string
	Inactive bool
	Prices   map[string]string
	Discount *Discount
	Variants []string
}

type Discount struct {
	Type      string
	Value     string
	Inactive  bool
	StartDate time.Time
	EndDate   *time.Time
}

// SeededProduct carries the identifiers assigned while seeding.
type SeededProduct struct {
	ID       snowflake.ID
	Variants []snowflake.ID
}

// SeedProduct inserts a product with its prices, optional discount and variants.
func SeedProduct(t testing.TB, db *gorm.DB, node *snowflake.Node, p Product) SeededProduct {
	t.Helper()

	now := time.Now().UTC()
	seeded := SeededProduct{ID: node.Generate()}
	slug := p.Slug
	if slug == "" {
		slug = "product-" + seeded.ID.String()
	}

	exec(t, db, `INSERT INTO products (id, name, slug, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		seeded.ID, p.Name, slug, !p.Inactive, now, now)

	for currency, amount := range p.Prices {
		exec(t, db, `INSERT INTO product_prices (id, product_id, currency, price, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			node.Generate(), seeded.ID, currency, decimal.RequireFromString(amount), now, now)
	}

	if d := p.Discount; d != nil {
		start := d.StartDate
		if start.IsZero() {
			start = now.Add(-24 * time.Hour)
		}
		exec(t, db, `INSERT INTO product_discounts (id, product_id, discount_type, value, is_active, start_date, end_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			node.Generate(), seeded.ID, d.Type, decimal.RequireFromString(d.Value), !d.Inactive, start, d.EndDate, now, now)
	}

	for _, name := range p.Variants {
		id := node.Generate()
		exec(t, db, `INSERT INTO product_variants (id, product_id, name, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, seeded.ID, name, true, now, now)
		seeded.Variants = append(seeded.Variants, id)
	}

	return seeded
}

func exec(t testing.TB, db *gorm.DB, query string, args ...any) {
	t.Helper()
	if err := db.Exec(query, args...).Error; err != nil {
		t.Fatalf("seed: %v\n%s", err, query)
	}
}
