package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusRefundRequested OrderStatus = "refund_requested"
	OrderStatusReturnApproved  OrderStatus = "return_approved"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusFailed          OrderStatus = "failed"
)

// AllStatuses lists every valid order status.
var AllStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusRefundRequested,
	OrderStatusReturnApproved,
	OrderStatusRefunded,
	OrderStatusFailed,
}

// Valid reports whether s is one of the enumerated statuses.
func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderItem is a line item on an order. Items are immutable after the
// order is created.
type OrderItem struct {
	Name         string `json:"name"`
	UnitPrice    int64  `json:"unit_price"` // In cents
	Quantity     int    `json:"quantity"`
	SelectedSize string `json:"selected_size,omitempty"`
}

// ShippingInfo holds the customer and address fields captured at checkout.
type ShippingInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Order represents one checkout transaction.
//
// Items, Shipping and ReturnItems are stored as JSON documents on the
// row; they are written at creation (or return request) and never
// patched field-by-field.
type Order struct {
	ID       uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	Status   OrderStatus  `json:"status" gorm:"not null;default:pending;index"`
	Items    []OrderItem  `json:"items" gorm:"serializer:json"`
	Total    int64        `json:"total"` // In cents
	Currency string       `json:"currency" gorm:"default:usd"`
	Shipping ShippingInfo `json:"shipping_info" gorm:"serializer:json"`

	// Set once, on the first successful payment event.
	PaymentIntentID string `json:"payment_id,omitempty"`
	// Last payment failure message. Informational, never cleared.
	PaymentError string `json:"payment_error,omitempty"`

	// Return/refund bookkeeping, written by the return request and
	// consumed when the refund executes.
	RefundReason string `json:"refund_reason,omitempty"`
	ReturnItems  []int  `json:"return_items,omitempty" gorm:"serializer:json"`
	RefundAmount *int64 `json:"refund_amount,omitempty"` // In cents; nil means full refund
	DenyReason   string `json:"deny_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ShippedAt  *time.Time `json:"shipped_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal returns true if no transition leads out of the order's status.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusRefunded || o.Status == OrderStatusFailed
}

// RefundableAmount returns the amount a gateway refund should move:
// the requested partial amount if one was recorded, the order total
// otherwise.
func (o *Order) RefundableAmount() int64 {
	if o.RefundAmount != nil {
		return *o.RefundAmount
	}
	return o.Total
}

// Validate checks the stored document shape. The repository rejects
// malformed rows with ErrSchema before they reach callers.
func (o *Order) Validate() error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("missing order id")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	if o.Total < 0 {
		return fmt.Errorf("negative total %d", o.Total)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("order has no items")
	}
	for i, item := range o.Items {
		if item.Name == "" {
			return fmt.Errorf("item %d has no name", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d has quantity %d", i, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("item %d has negative price", i)
		}
	}
	for _, idx := range o.ReturnItems {
		if idx < 0 || idx >= len(o.Items) {
			return fmt.Errorf("return item index %d out of range", idx)
		}
	}
	if o.RefundAmount != nil && (*o.RefundAmount <= 0 || *o.RefundAmount > o.Total) {
		return fmt.Errorf("refund amount %d out of range", *o.RefundAmount)
	}
	return nil
}

// ArchivedOrder is a copy of an Order moved into cold storage. The
// archive write and the active-row delete happen in one transaction.
type ArchivedOrder struct {
	Order
	ArchivedAt time.Time `json:"archived_at"`
}

// TableName returns the database table name.
func (ArchivedOrder) TableName() string {
	return "archived_orders"
}
