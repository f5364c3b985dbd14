package provider

import "context"

// PaymentIntent represents a payment intent from the provider.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	Metadata     map[string]string
}

// Refund represents a refund executed by the provider.
type Refund struct {
	ID              string
	PaymentIntentID string
	Amount          int64
	Status          string
}

// Provider defines the interface for the payment gateway.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// CreatePaymentIntent registers a pending charge with the gateway
	// and returns the client secret the frontend confirms against.
	CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*PaymentIntent, error)

	// Refund moves money back for a settled payment intent. A zero
	// amount refunds the full charge.
	Refund(ctx context.Context, paymentIntentID string, amount int64, reason string) (*Refund, error)

	// VerifyWebhookSignature checks the gateway signature over the raw,
	// unparsed request body.
	VerifyWebhookSignature(payload []byte, signature string) error
}
