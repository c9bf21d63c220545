package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	customerrepo "github.com/smallbiznis/storefront/internal/customer/repository"
	"github.com/smallbiznis/storefront/internal/events"
	"github.com/smallbiznis/storefront/internal/order/domain"
	"github.com/smallbiznis/storefront/internal/order/repository"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/storefront/internal/payment/repository"
	"github.com/smallbiznis/storefront/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedNumbers struct {
	number string
	calls  int
}

func (f *fixedNumbers) Generate(time.Time) string {
	f.calls++
	return f.number
}

type recordingPublisher struct {
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.OrderEvent) error {
	p.events = append(p.events, evt)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	publisher *recordingPublisher
	svc       domain.Service
}

func newTestEnv(t *testing.T, numbers domain.NumberGenerator) *testEnv {
	t.Helper()
	db := storetest.NewDB(t)
	node := storetest.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	publisher := &recordingPublisher{}

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Policy:    config.NewStaticCheckoutPolicy(config.DefaultCheckoutPolicy()),
		Repo:      repository.Provide(),
		Customers: customerrepo.Provide(),
		Payments:  paymentrepo.Provide(),
		Numbers:   numbers,
		Publisher: publisher,
	})
	return &testEnv{db: db, node: node, clock: fake, publisher: publisher, svc: svc}
}

func sampleRequest(node *snowflake.Node, reference string) domain.CreateOrderRequest {
	variant := node.Generate()
	return domain.CreateOrderRequest{
		Customer: domain.CustomerInfo{
			Name:    "Ama Mensah",
			Email:   "Ama@Example.com",
			Phone:   "+233 24 123 4567",
			Address: "12 Oxford Street",
			City:    "Accra",
			Region:  "Greater Accra",
		},
		Currency: "ghs",
		Items: []domain.LineItem{
			{
				ProductID:   node.Generate(),
				VariantID:   &variant,
				ProductName: "Kente Wrap Dress",
				VariantName: "M",
				Options:     map[string]string{"size": "M"},
				UnitPrice:   decimal.RequireFromString("100.00"),
				Quantity:    1,
			},
			{
				ProductID:   node.Generate(),
				ProductName: "Beaded Bracelet",
				UnitPrice:   decimal.RequireFromString("50.00"),
				Quantity:    2,
			},
		},
		Payment: domain.PaymentDraft{Provider: "paystack", Reference: reference},
	}
}

func TestCreateOrderPersistsEverythingAtomically(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	placed, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^SF-260314-[0-9A-HJKMNP-TV-Z]{5}$`), placed.Order.OrderNumber)
	assert.Equal(t, domain.StatusPending, placed.Order.Status)
	assert.Equal(t, "GHS", placed.Order.Currency)
	assert.True(t, decimal.RequireFromString("200").Equal(placed.Order.Subtotal))
	assert.True(t, decimal.RequireFromString("200").Equal(placed.Order.Total))
	assert.True(t, decimal.NewFromInt(1).Equal(placed.Order.ExchangeRate))
	require.Len(t, placed.Items, 2)
	assert.True(t, decimal.RequireFromString("100").Equal(placed.Items[1].TotalPrice))

	assert.Equal(t, paymentdomain.StatusPending, placed.Payment.Status)
	assert.Equal(t, "SFP-REF-1", placed.Payment.Reference)
	assert.True(t, placed.Order.Total.Equal(placed.Payment.Amount))

	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM orders`))
	assert.EqualValues(t, 2, storetest.Count(t, env.db, `SELECT COUNT(*) FROM order_items WHERE order_id = ?`, placed.Order.ID))
	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM payments WHERE order_id = ?`, placed.Order.ID))
	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM order_events WHERE order_id = ?`, placed.Order.ID))
	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM customers WHERE phone = ?`, "233241234567"))

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, events.TypeOrderPlaced, env.publisher.events[0].Type)
	assert.Equal(t, placed.Order.OrderNumber, env.publisher.events[0].OrderNumber)
}

func TestCreateOrderAggregatesReturningCustomer(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.NoError(t, err)
	second, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-2"))
	require.NoError(t, err)

	assert.Equal(t, first.Order.CustomerID, second.Order.CustomerID)
	assert.NotEqual(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.EqualValues(t, 2, storetest.Count(t, env.db, `SELECT order_count FROM customers WHERE id = ?`, first.Order.CustomerID))
}

func TestCreateOrderGivesUpAfterBoundedCollisions(t *testing.T) {
	numbers := &fixedNumbers{number: "SF-260314-AAAAA"}
	env := newTestEnv(t, numbers)
	ctx := context.Background()

	_, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.NoError(t, err)
	numbers.calls = 0

	_, err = env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-2"))
	require.ErrorIs(t, err, domain.ErrOrderNumberExhausted)
	assert.Equal(t, config.DefaultCheckoutPolicy().OrderNumberAttempts, numbers.calls)
	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM orders`))
}

func TestCreateOrderRollsBackOnDuplicateReference(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.NoError(t, err)

	_, err = env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.ErrorIs(t, err, domain.ErrDuplicateReference)

	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM orders`))
	assert.EqualValues(t, 2, storetest.Count(t, env.db, `SELECT COUNT(*) FROM order_items`))
	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT COUNT(*) FROM order_events`))
	assert.EqualValues(t, 1, storetest.Count(t, env.db, `SELECT order_count FROM customers WHERE id = ?`, first.Order.CustomerID))
	assert.Len(t, env.publisher.events, 1)
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name   string
		mutate func(*domain.CreateOrderRequest)
		want   error
	}{
		{"missing name", func(r *domain.CreateOrderRequest) { r.Customer.Name = " " }, domain.ErrInvalidCustomerName},
		{"missing phone", func(r *domain.CreateOrderRequest) { r.Customer.Phone = "n/a" }, domain.ErrInvalidPhone},
		{"missing currency", func(r *domain.CreateOrderRequest) { r.Currency = "" }, domain.ErrInvalidCurrency},
		{"missing reference", func(r *domain.CreateOrderRequest) { r.Payment.Reference = "" }, domain.ErrInvalidReference},
		{"no items", func(r *domain.CreateOrderRequest) { r.Items = nil }, domain.ErrEmptyOrder},
		{"zero quantity", func(r *domain.CreateOrderRequest) { r.Items[0].Quantity = 0 }, domain.ErrInvalidItem},
		{"negative rate", func(r *domain.CreateOrderRequest) { r.ExchangeRate = decimal.NewFromInt(-1) }, domain.ErrInvalidExchangeRate},
		{"discount above subtotal", func(r *domain.CreateOrderRequest) { r.Discount = decimal.NewFromInt(500) }, domain.ErrInvalidTotal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := sampleRequest(env.node, "SFP-VALIDATION")
			tc.mutate(&req)
			_, err := env.svc.CreateOrder(context.Background(), req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.EqualValues(t, 0, storetest.Count(t, env.db, `SELECT COUNT(*) FROM orders`))
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	placed, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.NoError(t, err)

	_, err = env.svc.UpdateOrderStatus(ctx, placed.Order.ID, domain.StatusShipped, "")
	require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	env.clock.Advance(time.Minute)
	updated, err := env.svc.UpdateOrderStatus(ctx, placed.Order.ID, domain.StatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)

	updated, err = env.svc.UpdateOrderStatusByNumber(ctx, placed.Order.OrderNumber, domain.StatusCancelled, "customer asked")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, updated.Status)

	_, err = env.svc.UpdateOrderStatus(ctx, placed.Order.ID, domain.StatusProcessing, "")
	require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = env.svc.UpdateOrderStatus(ctx, placed.Order.ID, domain.Status("LOST"), "")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.svc.UpdateOrderStatusByNumber(ctx, "SF-000000-ZZZZZ", domain.StatusConfirmed, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	detail, err := env.svc.GetByNumber(ctx, placed.Order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, detail.Order.Status)
	require.Len(t, detail.Events, 3)
	assert.Equal(t, "customer asked", detail.Events[2].Note)
	require.NotNil(t, detail.Payment)
	assert.Equal(t, "SFP-REF-1", detail.Payment.Reference)
}

func TestUpdateOrderStatusDetectsConcurrentChange(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	placed, err := env.svc.CreateOrder(ctx, sampleRequest(env.node, "SFP-REF-1"))
	require.NoError(t, err)

	svc := env.svc.(*Service)
	stale := placed.Order
	_, err = svc.transition(ctx, &stale, domain.StatusConfirmed, "")
	require.NoError(t, err)

	_, err = svc.transition(ctx, &stale, domain.StatusCancelled, "")
	require.ErrorIs(t, err, domain.ErrStatusConflict)
}

func TestGetByNumberUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.GetByNumber(context.Background(), "SF-260314-NOPE0")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
