package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for order data access.
//
// All status writes go through UpdateStatusFrom, a conditional update
// keyed on the expected current status. Two racing transitions against
// the same order cannot both match the precondition row.
type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error)
	ListOrders(ctx context.Context, filter *OrderFilter) ([]*Order, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to OrderStatus, patch map[string]any) error

	ArchiveOrder(ctx context.Context, id uuid.UUID) error
	ListArchivedOrders(ctx context.Context) ([]*ArchivedOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return &order, nil
}

func (r *repository) GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "payment_intent_id = ?", paymentIntentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return &order, nil
}

func (r *repository) ListOrders(ctx context.Context, filter *OrderFilter) ([]*Order, error) {
	query := r.db.WithContext(ctx).Model(&Order{})
	if filter != nil && filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var orders []*Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return orders, nil
}

// UpdateStatusFrom performs the compare-and-swap status write. The
// patch carries any extra fields the transition sets (timestamps,
// payment ids, refund bookkeeping). When no row matches the (id, from)
// pair the current row is re-read to tell NotFound apart from a
// concurrent transition.
func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to OrderStatus, patch map[string]any) error {
	updates := map[string]any{"status": to, "updated_at": time.Now()}
	for k, v := range patch {
		updates[k] = v
	}

	// Map-based Updates reach the driver raw; gorm runs the json
	// serializer only on struct writes. Encode the return selection to
	// its stored form here or the text column gets a bare []int.
	if items, ok := updates["return_items"].([]int); ok {
		encoded, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
		updates["return_items"] = string(encoded)
	}

	res := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStore, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s, order is %s", ErrInvalidTransition, from, current.Status)
}

// ArchiveOrder copies the order into archived_orders and deletes the
// active row in one transaction, so a crash cannot leave the order
// duplicated or lost between the two collections.
func (r *repository) ArchiveOrder(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		archived := &ArchivedOrder{Order: order, ArchivedAt: time.Now()}
		if err := tx.Create(archived).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		if err := tx.Delete(&Order{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		return nil
	})
	return err
}

func (r *repository) ListArchivedOrders(ctx context.Context) ([]*ArchivedOrder, error) {
	var archived []*ArchivedOrder
	err := r.db.WithContext(ctx).Order("archived_at DESC").Find(&archived).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return archived, nil
}
