package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopcore/server/internal/module/order"
	"github.com/shopcore/server/internal/module/payment/provider"
	"github.com/shopcore/server/internal/utils/metrics"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

// ErrNoOrderRef marks a gateway event that carries no order reference.
// The reconciler acknowledges such events without applying them.
var ErrNoOrderRef = errors.New("payment event has no order reference")

// Service implements payment operations: intent creation, webhook
// reconciliation and refund execution.
type Service struct {
	repo     Repository
	orders   *order.Service
	gateway  provider.Provider
	currency string
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	orders *order.Service,
	gateway provider.Provider,
	currency string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		repo:     repo,
		orders:   orders,
		gateway:  gateway,
		currency: currency,
		metrics:  m,
		logger:   logger,
	}
}

// CreatePaymentIntent registers a pending charge with the gateway. The
// optional order id travels in the intent metadata so the webhook
// reconciler can find the order later.
func (s *Service) CreatePaymentIntent(ctx context.Context, amount int64, orderID string) (*PaymentIntentResponse, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	var metadata map[string]string
	if orderID != "" {
		metadata = map[string]string{"order_id": orderID}
	}

	pi, err := s.gateway.CreatePaymentIntent(ctx, amount, s.currency, metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	s.logger.Info("payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", amount),
		zap.String("order_id", orderID),
	)

	return &PaymentIntentResponse{ClientSecret: pi.ClientSecret}, nil
}

// VerifyWebhookSignature checks the gateway signature over the raw
// request body.
func (s *Service) VerifyWebhookSignature(payload []byte, signature string) error {
	if err := s.gateway.VerifyWebhookSignature(payload, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// ProcessRefund executes the gateway refund for an approved return and
// finalizes the order. The gateway is called exactly once per
// invocation and only when the order is return_approved; on gateway
// failure the order is left untouched and the operation can be retried.
func (s *Service) ProcessRefund(ctx context.Context, orderID uuid.UUID) error {
	ord, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if ord.Status != order.OrderStatusReturnApproved {
		return fmt.Errorf("%w: cannot refund, order is %s", order.ErrInvalidTransition, ord.Status)
	}
	if ord.PaymentIntentID == "" {
		return order.ErrMissingPayment
	}

	amount := ord.RefundableAmount()
	refund, err := s.gateway.Refund(ctx, ord.PaymentIntentID, amount, "requested_by_customer")
	if err != nil {
		s.countRefund("gateway_error")
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	s.countRefund("success")

	s.logger.Info("gateway refund executed",
		zap.String("order_id", orderID.String()),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", amount),
	)

	if err := s.orders.MarkRefunded(ctx, orderID, refund.ID); err != nil {
		// Money has moved but the status write lost a race. Surface the
		// error; the webhook ledger and refund id in the log are the
		// audit trail for manual repair.
		s.logger.Error("refund executed but order update failed",
			zap.String("order_id", orderID.String()),
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Reconcile applies one verified gateway event to the order store.
func (s *Service) Reconcile(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		return s.reconcileSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		return s.reconcileFailed(ctx, event)
	default:
		s.logger.Debug("unhandled webhook event type", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *Service) reconcileSucceeded(ctx context.Context, event *stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("unmarshal payment intent: %w", err)
	}

	orderID, err := orderIDFromIntent(&pi)
	if err != nil {
		return err
	}

	s.logger.Info("payment intent succeeded",
		zap.String("payment_intent_id", pi.ID),
		zap.String("order_id", orderID.String()),
		zap.Int64("amount", pi.Amount),
	)

	return s.orders.MarkPaid(ctx, orderID, pi.ID)
}

func (s *Service) reconcileFailed(ctx context.Context, event *stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("unmarshal payment intent: %w", err)
	}

	orderID, err := orderIDFromIntent(&pi)
	if err != nil {
		return err
	}

	message := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		message = pi.LastPaymentError.Msg
	}

	s.logger.Warn("payment intent failed",
		zap.String("payment_intent_id", pi.ID),
		zap.String("order_id", orderID.String()),
		zap.String("message", message),
	)

	return s.orders.MarkFailed(ctx, orderID, message)
}

func orderIDFromIntent(pi *stripe.PaymentIntent) (uuid.UUID, error) {
	raw, ok := pi.Metadata["order_id"]
	if !ok || raw == "" {
		return uuid.Nil, ErrNoOrderRef
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad order id %q", ErrNoOrderRef, raw)
	}
	return id, nil
}

func (s *Service) countRefund(outcome string) {
	if s.metrics != nil {
		s.metrics.RefundsTotal.WithLabelValues(outcome).Inc()
	}
}
