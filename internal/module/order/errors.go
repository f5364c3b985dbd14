package order

import "errors"

// Module errors.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrStatusLocked      = errors.New("status is managed by the refund workflow")
	ErrSchema            = errors.New("malformed order document")
	ErrStore             = errors.New("order store unavailable")
	ErrMissingPayment    = errors.New("order has no payment to refund")
)
