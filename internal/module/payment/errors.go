package payment

import "errors"

// Module errors.
var (
	ErrGateway          = errors.New("payment gateway rejected the call")
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	ErrInvalidAmount    = errors.New("amount must be a positive number of cents")
)
