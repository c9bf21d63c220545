package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/customer/domain"
	"github.com/smallbiznis/storefront/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOrderUpsertsByPhone(t *testing.T) {
	db := storetest.NewDB(t)
	node := storetest.NewNode(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	first := &domain.Customer{
		ID:          node.Generate(),
		Phone:       "233241234567",
		Name:        "Ama Mensah",
		Email:       "ama@example.com",
		AddressLine: "12 Oxford St",
		City:        "Accra",
		Region:      "Greater Accra",
		Country:     "GH",
		LastOrderAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, err := repo.RecordOrder(ctx, db, first, decimal.RequireFromString("200"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, 1, stored.OrderCount)

	later := now.Add(48 * time.Hour)
	second := &domain.Customer{
		ID:          node.Generate(),
		Phone:       "233241234567",
		Name:        "Ama Mensah",
		Email:       "ama.mensah@example.com",
		AddressLine: "4 Ring Road",
		City:        "Kumasi",
		Region:      "Ashanti",
		Country:     "GH",
		LastOrderAt: &later,
		CreatedAt:   later,
		UpdatedAt:   later,
	}
	stored, err = repo.RecordOrder(ctx, db, second, decimal.RequireFromString("150"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, 2, stored.OrderCount)
	assert.True(t, decimal.RequireFromString("350").Equal(stored.TotalSpent), "got %s", stored.TotalSpent)
	assert.Equal(t, "Kumasi", stored.City)
	assert.Equal(t, "ama.mensah@example.com", stored.Email)
	assert.Equal(t, int64(1), storetest.Count(t, db, `SELECT COUNT(*) FROM customers`))

	found, err := repo.FindByPhone(ctx, db, "233241234567")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 2, found.OrderCount)

	missing, err := repo.FindByPhone(ctx, db, "000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
