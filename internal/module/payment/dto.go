package payment

// CreatePaymentIntentRequest is the body of POST /create-payment-intent.
type CreatePaymentIntentRequest struct {
	Amount  int64  `json:"amount" binding:"required"` // In cents
	OrderID string `json:"order_id"`
}

// PaymentIntentResponse carries the client secret the frontend confirms
// the payment with.
type PaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}
