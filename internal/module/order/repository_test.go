package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestStore opens an in-memory database so the repository is
// exercised through real gorm statements, not a fake.
func newTestStore(t *testing.T) Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection, or each pooled conn gets its own :memory: db.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Order{}, &ArchivedOrder{}))
	return NewRepository(db)
}

func insertOrder(t *testing.T, repo Repository, status OrderStatus, mutate ...func(*Order)) *Order {
	t.Helper()
	o := &Order{
		ID:     uuid.New(),
		Status: status,
		Items: []OrderItem{
			{Name: "logo tee", UnitPrice: 2500, Quantity: 2, SelectedSize: "M"},
			{Name: "sticker pack", UnitPrice: 500, Quantity: 1},
		},
		Total:    5500,
		Currency: "usd",
		Shipping: ShippingInfo{Name: "Sam Doe", Email: "sam@example.com", Address: "1 Main St"},
	}
	for _, fn := range mutate {
		fn(o)
	}
	require.NoError(t, repo.CreateOrder(context.Background(), o))
	return o
}

func TestRepositoryUpdateStatusFrom(t *testing.T) {
	ctx := context.Background()

	t.Run("applies status and patch", func(t *testing.T) {
		repo := newTestStore(t)
		o := insertOrder(t, repo, OrderStatusPending)

		err := repo.UpdateStatusFrom(ctx, o.ID, OrderStatusPending, OrderStatusPaid,
			map[string]any{"payment_intent_id": "pi_123"})
		require.NoError(t, err)

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPaid, stored.Status)
		assert.Equal(t, "pi_123", stored.PaymentIntentID)
	})

	t.Run("return selection survives the status write", func(t *testing.T) {
		repo := newTestStore(t)
		o := insertOrder(t, repo, OrderStatusPaid)
		amount := int64(2500)

		err := repo.UpdateStatusFrom(ctx, o.ID, OrderStatusPaid, OrderStatusRefundRequested,
			map[string]any{
				"refund_reason": "wrong size",
				"return_items":  []int{0, 1},
				"refund_amount": &amount,
			})
		require.NoError(t, err)

		// The order must stay readable and carry the selection back out.
		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusRefundRequested, stored.Status)
		assert.Equal(t, "wrong size", stored.RefundReason)
		assert.Equal(t, []int{0, 1}, stored.ReturnItems)
		require.NotNil(t, stored.RefundAmount)
		assert.Equal(t, amount, *stored.RefundAmount)
	})

	t.Run("clearing the return bookkeeping", func(t *testing.T) {
		repo := newTestStore(t)
		amount := int64(2500)
		o := insertOrder(t, repo, OrderStatusReturnApproved, func(o *Order) {
			o.RefundReason = "wrong size"
			o.ReturnItems = []int{0}
			o.RefundAmount = &amount
		})

		err := repo.UpdateStatusFrom(ctx, o.ID, OrderStatusReturnApproved, OrderStatusRefunded,
			map[string]any{
				"refunded_at":   time.Now(),
				"refund_reason": "",
				"return_items":  nil,
				"refund_amount": nil,
				"deny_reason":   "",
			})
		require.NoError(t, err)

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusRefunded, stored.Status)
		assert.Empty(t, stored.RefundReason)
		assert.Empty(t, stored.ReturnItems)
		assert.Nil(t, stored.RefundAmount)
		require.NotNil(t, stored.RefundedAt)
	})

	t.Run("stale expected status loses the race", func(t *testing.T) {
		repo := newTestStore(t)
		o := insertOrder(t, repo, OrderStatusPaid)

		err := repo.UpdateStatusFrom(ctx, o.ID, OrderStatusPending, OrderStatusFailed, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPaid, stored.Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		repo := newTestStore(t)
		err := repo.UpdateStatusFrom(ctx, uuid.New(), OrderStatusPending, OrderStatusPaid, nil)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepositoryArchiveOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the row with its documents intact", func(t *testing.T) {
		repo := newTestStore(t)
		o := insertOrder(t, repo, OrderStatusRefunded)

		require.NoError(t, repo.ArchiveOrder(ctx, o.ID))

		_, err := repo.GetOrder(ctx, o.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)

		archived, err := repo.ListArchivedOrders(ctx)
		require.NoError(t, err)
		require.Len(t, archived, 1)
		assert.Equal(t, o.ID, archived[0].ID)
		assert.Equal(t, o.Items, archived[0].Items)
		assert.Equal(t, o.Shipping, archived[0].Shipping)
		assert.False(t, archived[0].ArchivedAt.IsZero())
	})

	t.Run("archiving twice reports not found", func(t *testing.T) {
		repo := newTestStore(t)
		o := insertOrder(t, repo, OrderStatusFailed)

		require.NoError(t, repo.ArchiveOrder(ctx, o.ID))
		assert.ErrorIs(t, repo.ArchiveOrder(ctx, o.ID), ErrOrderNotFound)

		archived, err := repo.ListArchivedOrders(ctx)
		require.NoError(t, err)
		assert.Len(t, archived, 1)
	})
}

func TestRepositoryQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("list filters by status", func(t *testing.T) {
		repo := newTestStore(t)
		insertOrder(t, repo, OrderStatusPending)
		paid := insertOrder(t, repo, OrderStatusPaid)

		status := OrderStatusPaid
		orders, err := repo.ListOrders(ctx, &OrderFilter{Status: &status})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, paid.ID, orders[0].ID)

		all, err := repo.ListOrders(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("lookup by payment intent id", func(t *testing.T) {
		repo := newTestStore(t)
		o := insertOrder(t, repo, OrderStatusPaid, func(o *Order) {
			o.PaymentIntentID = "pi_123"
		})

		stored, err := repo.GetOrderByPaymentIntentID(ctx, "pi_123")
		require.NoError(t, err)
		assert.Equal(t, o.ID, stored.ID)

		_, err = repo.GetOrderByPaymentIntentID(ctx, "pi_missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("create rejects malformed orders", func(t *testing.T) {
		repo := newTestStore(t)
		err := repo.CreateOrder(ctx, &Order{ID: uuid.New(), Status: OrderStatusPending})
		assert.ErrorIs(t, err, ErrSchema)
	})
}
