package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ===== Test Helpers =====

// fakeRepo is an in-memory Repository honoring the conditional-update
// semantics of the real store.
type fakeRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*Order
	archived map[uuid.UUID]*ArchivedOrder

	failArchive map[uuid.UUID]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:      make(map[uuid.UUID]*Order),
		archived:    make(map[uuid.UUID]*ArchivedOrder),
		failArchive: make(map[uuid.UUID]error),
	}
}

func (r *fakeRepo) CreateOrder(ctx context.Context, order *Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *fakeRepo) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *fakeRepo) GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentIntentID == paymentIntentID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *fakeRepo) ListOrders(ctx context.Context, filter *OrderFilter) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Order
	for _, o := range r.orders {
		if filter != nil && filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		copied := *o
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeRepo) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to OrderStatus, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return fmt.Errorf("%w: expected %s, order is %s", ErrInvalidTransition, from, o.Status)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	for k, v := range patch {
		switch k {
		case "payment_intent_id":
			o.PaymentIntentID = v.(string)
		case "payment_error":
			o.PaymentError = v.(string)
		case "refund_reason":
			o.RefundReason = v.(string)
		case "deny_reason":
			o.DenyReason = v.(string)
		case "return_items":
			if v == nil {
				o.ReturnItems = nil
			} else {
				o.ReturnItems = v.([]int)
			}
		case "refund_amount":
			if v == nil {
				o.RefundAmount = nil
			} else {
				o.RefundAmount = v.(*int64)
			}
		case "shipped_at":
			ts := v.(time.Time)
			o.ShippedAt = &ts
		case "refunded_at":
			ts := v.(time.Time)
			o.RefundedAt = &ts
		}
	}
	return nil
}

func (r *fakeRepo) ArchiveOrder(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failArchive[id]; ok {
		return err
	}
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	r.archived[id] = &ArchivedOrder{Order: *o, ArchivedAt: time.Now()}
	delete(r.orders, id)
	return nil
}

func (r *fakeRepo) ListArchivedOrders(ctx context.Context) ([]*ArchivedOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ArchivedOrder
	for _, a := range r.archived {
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewService(repo, nil, zap.NewNop()), repo
}

func seedOrder(t *testing.T, repo *fakeRepo, status OrderStatus, mutate ...func(*Order)) *Order {
	t.Helper()
	o := &Order{
		ID:     uuid.New(),
		Status: OrderStatusPending,
		Items: []OrderItem{
			{Name: "logo tee", UnitPrice: 2500, Quantity: 2, SelectedSize: "M"},
		},
		Total:    5000,
		Currency: "usd",
		Shipping: ShippingInfo{Name: "Sam Doe", Email: "sam@example.com", Address: "1 Main St"},
	}
	for _, fn := range mutate {
		fn(o)
	}
	require.NoError(t, repo.CreateOrder(context.Background(), o))
	if status != OrderStatusPending {
		repo.mu.Lock()
		repo.orders[o.ID].Status = status
		repo.mu.Unlock()
		o.Status = status
	}
	return o
}

// ===== Tests =====

func TestCreateOrder(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	t.Run("computes total from items", func(t *testing.T) {
		created, err := svc.CreateOrder(ctx, &CreateOrderRequest{
			Items: []OrderItemRequest{
				{Name: "logo tee", UnitPrice: 2500, Quantity: 2, SelectedSize: "L"},
				{Name: "sticker pack", UnitPrice: 500, Quantity: 3},
			},
			Shipping: ShippingInfo{Name: "Sam Doe", Email: "sam@example.com", Address: "1 Main St"},
		})
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPending, created.Status)
		assert.Equal(t, int64(6500), created.Total)
		assert.Equal(t, "usd", created.Currency)

		stored, err := repo.GetOrder(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Total, stored.Total)
	})
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to paid records payment id", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPending)

		require.NoError(t, svc.MarkPaid(ctx, o.ID, "pi_123"))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPaid, stored.Status)
		assert.Equal(t, "pi_123", stored.PaymentIntentID)
	})

	t.Run("replay of same event is a no-op", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPending)

		require.NoError(t, svc.MarkPaid(ctx, o.ID, "pi_123"))
		before, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)

		require.NoError(t, svc.MarkPaid(ctx, o.ID, "pi_123"))
		after, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.PaymentIntentID, after.PaymentIntentID)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	})

	t.Run("rejected from terminal state", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusFailed)

		err := svc.MarkPaid(ctx, o.ID, "pi_123")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.MarkPaid(ctx, uuid.New(), "pi_123")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestMarkFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("records failure message", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPending)

		require.NoError(t, svc.MarkFailed(ctx, o.ID, "card declined"))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusFailed, stored.Status)
		assert.Equal(t, "card declined", stored.PaymentError)
	})

	t.Run("rejected from shipped", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusShipped)
		err := svc.MarkFailed(ctx, o.ID, "card declined")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestMarkShipped(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps shipped_at", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)

		require.NoError(t, svc.MarkShipped(ctx, o.ID))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusShipped, stored.Status)
		require.NotNil(t, stored.ShippedAt)
		assert.WithinDuration(t, time.Now(), *stored.ShippedAt, time.Minute)
	})

	t.Run("rejected when not paid", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPending)
		assert.ErrorIs(t, svc.MarkShipped(ctx, o.ID), ErrInvalidTransition)
	})
}

func TestRequestReturn(t *testing.T) {
	ctx := context.Background()
	amount := int64(2500)

	t.Run("records reason, items and amount", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusShipped)

		err := svc.RequestReturn(ctx, o.ID, &ReturnRequest{
			Reason:       "wrong size",
			ReturnItems:  []int{0},
			RefundAmount: &amount,
		})
		require.NoError(t, err)

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusRefundRequested, stored.Status)
		assert.Equal(t, "wrong size", stored.RefundReason)
		assert.Equal(t, []int{0}, stored.ReturnItems)
		require.NotNil(t, stored.RefundAmount)
		assert.Equal(t, amount, *stored.RefundAmount)
	})

	t.Run("requires a reason", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)
		err := svc.RequestReturn(ctx, o.ID, &ReturnRequest{})
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("rejects out-of-range item index", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)
		err := svc.RequestReturn(ctx, o.ID, &ReturnRequest{Reason: "broken", ReturnItems: []int{3}})
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("rejects amount above total", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)
		tooMuch := o.Total + 1
		err := svc.RequestReturn(ctx, o.ID, &ReturnRequest{Reason: "broken", RefundAmount: &tooMuch})
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("rejected from terminal state", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusRefunded)
		err := svc.RequestReturn(ctx, o.ID, &ReturnRequest{Reason: "broken"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestApproveRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("refund_requested to return_approved", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusRefundRequested)

		require.NoError(t, svc.ApproveRefund(ctx, o.ID))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusReturnApproved, stored.Status)
	})

	t.Run("rejected when not requested", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)

		err := svc.ApproveRefund(ctx, o.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPaid, stored.Status)
	})
}

func TestDenyRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts to paid and records reason", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusRefundRequested)

		require.NoError(t, svc.DenyRefund(ctx, o.ID, "outside return window"))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPaid, stored.Status)
		assert.Equal(t, "outside return window", stored.DenyReason)
	})

	t.Run("does not alter status when not requested", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusShipped)

		err := svc.DenyRefund(ctx, o.ID, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusShipped, stored.Status)
	})
}

func TestMarkRefunded(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes return bookkeeping", func(t *testing.T) {
		svc, repo := newTestService(t)
		amount := int64(2500)
		o := seedOrder(t, repo, OrderStatusReturnApproved, func(o *Order) {
			o.RefundReason = "wrong size"
			o.ReturnItems = []int{0}
			o.RefundAmount = &amount
			o.DenyReason = "outside return window"
		})

		require.NoError(t, svc.MarkRefunded(ctx, o.ID, "re_1"))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusRefunded, stored.Status)
		assert.Empty(t, stored.RefundReason)
		assert.Nil(t, stored.ReturnItems)
		assert.Nil(t, stored.RefundAmount)
		assert.Empty(t, stored.DenyReason)
		require.NotNil(t, stored.RefundedAt)
	})

	t.Run("rejected when not approved", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusRefundRequested)
		assert.ErrorIs(t, svc.MarkRefunded(ctx, o.ID, "re_1"), ErrInvalidTransition)
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("paid to shipped stamps shipped_at", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)

		require.NoError(t, svc.UpdateStatus(ctx, o.ID, OrderStatusShipped))

		stored, err := repo.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusShipped, stored.Status)
		assert.NotNil(t, stored.ShippedAt)
	})

	t.Run("locked inside refund workflow", func(t *testing.T) {
		svc, repo := newTestService(t)
		for _, status := range []OrderStatus{OrderStatusRefundRequested, OrderStatusReturnApproved, OrderStatusRefunded} {
			o := seedOrder(t, repo, status)
			err := svc.UpdateStatus(ctx, o.ID, OrderStatusPaid)
			assert.ErrorIs(t, err, ErrStatusLocked, "from %s", status)

			stored, err := repo.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPaid)
		assert.ErrorIs(t, svc.UpdateStatus(ctx, o.ID, OrderStatus("bogus")), ErrSchema)
	})

	t.Run("rejects illegal edge", func(t *testing.T) {
		svc, repo := newTestService(t)
		o := seedOrder(t, repo, OrderStatusPending)
		assert.ErrorIs(t, svc.UpdateStatus(ctx, o.ID, OrderStatusShipped), ErrInvalidTransition)
	})
}

func TestArchiveOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("best effort per id with outcome report", func(t *testing.T) {
		svc, repo := newTestService(t)
		a := seedOrder(t, repo, OrderStatusRefunded)
		b := seedOrder(t, repo, OrderStatusFailed)
		missing := uuid.New()

		result := svc.ArchiveOrders(ctx, []string{a.ID.String(), missing.String(), b.ID.String()})

		assert.ElementsMatch(t, []string{a.ID.String(), b.ID.String()}, result.Archived)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, missing.String(), result.Failed[0].OrderID)

		// Archived ids no longer appear in the active collection.
		_, err := repo.GetOrder(ctx, a.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		_, err = repo.GetOrder(ctx, b.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)

		archived, err := svc.ListArchivedOrders(ctx)
		require.NoError(t, err)
		assert.Len(t, archived, 2)
	})

	t.Run("invalid id is reported not fatal", func(t *testing.T) {
		svc, repo := newTestService(t)
		a := seedOrder(t, repo, OrderStatusRefunded)

		result := svc.ArchiveOrders(ctx, []string{"not-a-uuid", a.ID.String()})
		assert.Equal(t, []string{a.ID.String()}, result.Archived)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, "not-a-uuid", result.Failed[0].OrderID)
	})
}

// Refund workflow walked end to end through the engine, matching the
// operator's path in the admin surface.
func TestRefundWorkflowSequence(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	o := seedOrder(t, repo, OrderStatusPaid, func(o *Order) {
		o.PaymentIntentID = "payIntentX"
	})

	// Approval before any return request must fail and not mutate.
	err := svc.ApproveRefund(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	stored, err := repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, stored.Status)

	require.NoError(t, svc.RequestReturn(ctx, o.ID, &ReturnRequest{Reason: "wrong size"}))
	require.NoError(t, svc.ApproveRefund(ctx, o.ID))

	stored, err = repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusReturnApproved, stored.Status)
	assert.Equal(t, int64(5000), stored.RefundableAmount())

	require.NoError(t, svc.MarkRefunded(ctx, o.ID, "re_1"))
	stored, err = repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRefunded, stored.Status)
}
