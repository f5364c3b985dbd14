package order

import (
	"time"

	"github.com/google/uuid"
)

// CreateOrderRequest represents a checkout submission from the hosting
// application.
type CreateOrderRequest struct {
	Items    []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Shipping ShippingInfo       `json:"shipping_info" binding:"required"`
	Currency string             `json:"currency"`
}

// OrderItemRequest is one line item of a checkout submission.
type OrderItemRequest struct {
	Name         string `json:"name" binding:"required"`
	UnitPrice    int64  `json:"unit_price" binding:"required,min=1"` // In cents
	Quantity     int    `json:"quantity" binding:"required,min=1"`
	SelectedSize string `json:"selected_size"`
}

// ReturnRequest carries a customer-initiated return request into the
// refund workflow.
type ReturnRequest struct {
	Reason       string `json:"reason" binding:"required"`
	ReturnItems  []int  `json:"return_items"`
	RefundAmount *int64 `json:"refund_amount"` // In cents; omit for full refund
}

// UpdateStatusRequest is the free-form operator status change.
type UpdateStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

// OrderFilter represents filters for listing orders.
type OrderFilter struct {
	Status *OrderStatus `form:"status"`
}

// APIRequest is the tagged callable request accepted by POST /api.
type APIRequest struct {
	Endpoint   string   `json:"endpoint" binding:"required"`
	OrderID    string   `json:"orderId"`
	OrderIDs   []string `json:"orderIds"`
	DenyReason string   `json:"denyReason"`
	Status     string   `json:"status"`
}

// ArchiveFailure reports one order id that could not be archived.
type ArchiveFailure struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ArchiveResult is the per-id outcome report of an archive run.
type ArchiveResult struct {
	Archived []string         `json:"archived"`
	Failed   []ArchiveFailure `json:"failed"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID           uuid.UUID    `json:"id"`
	Status       OrderStatus  `json:"status"`
	Items        []OrderItem  `json:"items"`
	Total        int64        `json:"total"`
	Currency     string       `json:"currency"`
	Shipping     ShippingInfo `json:"shipping_info"`
	PaymentID    string       `json:"payment_id,omitempty"`
	PaymentError string       `json:"payment_error,omitempty"`
	RefundReason string       `json:"refund_reason,omitempty"`
	ReturnItems  []int        `json:"return_items,omitempty"`
	RefundAmount *int64       `json:"refund_amount,omitempty"`
	DenyReason   string       `json:"deny_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	ShippedAt    *time.Time   `json:"shipped_at,omitempty"`
	RefundedAt   *time.Time   `json:"refunded_at,omitempty"`
}

// ToResponse converts an Order to OrderResponse.
func (o *Order) ToResponse() *OrderResponse {
	return &OrderResponse{
		ID:           o.ID,
		Status:       o.Status,
		Items:        o.Items,
		Total:        o.Total,
		Currency:     o.Currency,
		Shipping:     o.Shipping,
		PaymentID:    o.PaymentIntentID,
		PaymentError: o.PaymentError,
		RefundReason: o.RefundReason,
		ReturnItems:  o.ReturnItems,
		RefundAmount: o.RefundAmount,
		DenyReason:   o.DenyReason,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		ShippedAt:    o.ShippedAt,
		RefundedAt:   o.RefundedAt,
	}
}
