package seed_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/storefront/internal/seed"
	"github.com/smallbiznis/storefront/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDemoCatalogIsIdempotent(t *testing.T) {
	db := storetest.NewDB(t)
	node := storetest.NewNode(t)
	ctx := context.Background()

	created, err := seed.EnsureDemoCatalog(ctx, db, node, seed.DemoCatalog)
	require.NoError(t, err)
	assert.Equal(t, len(seed.DemoCatalog), created)

	created, err = seed.EnsureDemoCatalog(ctx, db, node, seed.DemoCatalog)
	require.NoError(t, err)
	assert.Zero(t, created)

	assert.EqualValues(t, len(seed.DemoCatalog), storetest.Count(t, db, `SELECT COUNT(1) FROM products`))
	assert.EqualValues(t, 6, storetest.Count(t, db, `SELECT COUNT(1) FROM product_prices`))
	assert.EqualValues(t, 2, storetest.Count(t, db, `SELECT COUNT(1) FROM product_variants`))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(1) FROM product_discounts`))
	assert.EqualValues(t, 1, storetest.Count(t, db, `SELECT COUNT(1) FROM products WHERE slug = ?`, "kente-weave-tote"))
}

func TestEnsureDemoCatalogRejectsBlankName(t *testing.T) {
	db := storetest.NewDB(t)

	_, err := seed.EnsureDemoCatalog(context.Background(), db, storetest.NewNode(t), []seed.CatalogProduct{{Name: "  "}})
	require.Error(t, err)
	assert.Zero(t, storetest.Count(t, db, `SELECT COUNT(1) FROM products`))
}

func TestEnsureDemoCatalogRequiresHandles(t *testing.T) {
	_, err := seed.EnsureDemoCatalog(context.Background(), nil, nil, seed.DemoCatalog)
	require.Error(t, err)
}
