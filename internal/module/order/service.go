package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Service implements the order lifecycle. It is, together with the
// webhook reconciler driving it, the only writer of order status.
type Service struct {
	repo    Repository
	sm      *StateMachine
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a new order service.
func NewService(repo Repository, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		sm:      NewStateMachine(),
		metrics: m,
		logger:  logger,
	}
}

// CreateOrder creates a pending order from a checkout submission.
// The total is computed server-side from the submitted items.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	items := make([]OrderItem, len(req.Items))
	var total int64
	for i, it := range req.Items {
		items[i] = OrderItem{
			Name:         it.Name,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
			SelectedSize: it.SelectedSize,
		}
		total += it.UnitPrice * int64(it.Quantity)
	}

	order := &Order{
		ID:       uuid.New(),
		Status:   OrderStatusPending,
		Items:    items,
		Total:    total,
		Currency: currency,
		Shipping: req.Shipping,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("total", order.Total),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

// GetOrder returns an order by ID.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ListOrders returns active orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, filter *OrderFilter) ([]*Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

// ListArchivedOrders returns orders moved to the archive.
func (s *Service) ListArchivedOrders(ctx context.Context) ([]*ArchivedOrder, error) {
	return s.repo.ListArchivedOrders(ctx)
}

// MarkPaid applies a successful payment event. Re-applying the same
// event is a no-op: an order already paid with the same payment intent
// id is left untouched.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == OrderStatusPaid && order.PaymentIntentID == paymentIntentID {
		s.logger.Info("payment event already applied",
			zap.String("order_id", orderID.String()),
			zap.String("payment_intent_id", paymentIntentID),
		)
		return nil
	}

	if err := s.sm.Check(order.Status, OrderStatusPaid); err != nil {
		return err
	}

	patch := map[string]any{}
	if order.PaymentIntentID == "" {
		patch["payment_intent_id"] = paymentIntentID
	}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, order.Status, OrderStatusPaid, patch); err != nil {
		return err
	}

	s.countTransition(order.Status, OrderStatusPaid)
	return nil
}

// MarkFailed applies a failed payment event and records the failure
// message.
func (s *Service) MarkFailed(ctx context.Context, orderID uuid.UUID, message string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if err := s.sm.Check(order.Status, OrderStatusFailed); err != nil {
		return err
	}

	patch := map[string]any{"payment_error": message}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, order.Status, OrderStatusFailed, patch); err != nil {
		return err
	}

	s.countTransition(order.Status, OrderStatusFailed)
	return nil
}

// MarkShipped moves a paid order to shipped and stamps the shipping
// time.
func (s *Service) MarkShipped(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if err := s.sm.Check(order.Status, OrderStatusShipped); err != nil {
		return err
	}

	patch := map[string]any{"shipped_at": time.Now()}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, order.Status, OrderStatusShipped, patch); err != nil {
		return err
	}

	s.countTransition(order.Status, OrderStatusShipped)
	return nil
}

// RequestReturn records a customer return request and moves the order
// into the refund workflow. Allowed from any non-terminal state.
func (s *Service) RequestReturn(ctx context.Context, orderID uuid.UUID, req *ReturnRequest) error {
	if req.Reason == "" {
		return fmt.Errorf("%w: return request needs a reason", ErrSchema)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	for _, idx := range req.ReturnItems {
		if idx < 0 || idx >= len(order.Items) {
			return fmt.Errorf("%w: return item index %d out of range", ErrSchema, idx)
		}
	}
	if req.RefundAmount != nil && (*req.RefundAmount <= 0 || *req.RefundAmount > order.Total) {
		return fmt.Errorf("%w: refund amount %d out of range", ErrSchema, *req.RefundAmount)
	}

	if err := s.sm.Check(order.Status, OrderStatusRefundRequested); err != nil {
		return err
	}

	patch := map[string]any{
		"refund_reason": req.Reason,
		"return_items":  req.ReturnItems,
		"refund_amount": req.RefundAmount,
	}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, order.Status, OrderStatusRefundRequested, patch); err != nil {
		return err
	}

	s.countTransition(order.Status, OrderStatusRefundRequested)
	s.logger.Info("return requested",
		zap.String("order_id", orderID.String()),
		zap.String("reason", req.Reason),
	)
	return nil
}

// ApproveRefund approves a pending return request. No gateway call
// happens here; the customer must physically return the item before the
// refund is processed.
func (s *Service) ApproveRefund(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if err := s.sm.Check(order.Status, OrderStatusReturnApproved); err != nil {
		return err
	}

	if err := s.repo.UpdateStatusFrom(ctx, orderID, order.Status, OrderStatusReturnApproved, nil); err != nil {
		return err
	}

	s.countTransition(order.Status, OrderStatusReturnApproved)
	s.logger.Info("refund approved", zap.String("order_id", orderID.String()))
	return nil
}

// DenyRefund denies a pending return request; the order reverts to its
// sellable paid state. The denial reason, when given, is kept on the
// order.
func (s *Service) DenyRefund(ctx context.Context, orderID uuid.UUID, reason string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status != OrderStatusRefundRequested {
		return fmt.Errorf("%w: cannot deny refund, order is %s", ErrInvalidTransition, order.Status)
	}

	patch := map[string]any{"deny_reason": reason}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, OrderStatusRefundRequested, OrderStatusPaid, patch); err != nil {
		return err
	}

	s.countTransition(OrderStatusRefundRequested, OrderStatusPaid)
	s.logger.Info("refund denied",
		zap.String("order_id", orderID.String()),
		zap.String("reason", reason),
	)
	return nil
}

// MarkRefunded finalizes the refund workflow after the gateway refund
// succeeded. The return bookkeeping (reason, selection, amount and any
// stale denial) is consumed by the refund.
func (s *Service) MarkRefunded(ctx context.Context, orderID uuid.UUID, gatewayRefundID string) error {
	patch := map[string]any{
		"refunded_at":   time.Now(),
		"refund_reason": "",
		"return_items":  nil,
		"refund_amount": nil,
		"deny_reason":   "",
	}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, OrderStatusReturnApproved, OrderStatusRefunded, patch); err != nil {
		return err
	}

	s.countTransition(OrderStatusReturnApproved, OrderStatusRefunded)
	s.logger.Info("order refunded",
		zap.String("order_id", orderID.String()),
		zap.String("gateway_refund_id", gatewayRefundID),
	)
	return nil
}

// UpdateStatus is the free-form operator status change. Orders inside
// the refund workflow are locked to the dedicated approve/deny/refund
// operations so the refund bookkeeping cannot be bypassed.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, to OrderStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrSchema, to)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if !s.sm.ManualChangeAllowed(order.Status) {
		return fmt.Errorf("%w: order is %s", ErrStatusLocked, order.Status)
	}
	if err := s.sm.Check(order.Status, to); err != nil {
		return err
	}

	patch := map[string]any{}
	if to == OrderStatusShipped {
		patch["shipped_at"] = time.Now()
	}
	if err := s.repo.UpdateStatusFrom(ctx, orderID, order.Status, to, patch); err != nil {
		return err
	}

	s.countTransition(order.Status, to)
	return nil
}

// ArchiveOrders moves each order into the archive, best effort per id.
// One failing id does not block the rest; the result reports every
// outcome.
func (s *Service) ArchiveOrders(ctx context.Context, orderIDs []string) *ArchiveResult {
	result := &ArchiveResult{
		Archived: []string{},
		Failed:   []ArchiveFailure{},
	}

	for _, raw := range orderIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			result.Failed = append(result.Failed, ArchiveFailure{OrderID: raw, Reason: "invalid order id"})
			continue
		}
		if err := s.repo.ArchiveOrder(ctx, id); err != nil {
			s.logger.Warn("archive failed",
				zap.String("order_id", raw),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, ArchiveFailure{OrderID: raw, Reason: err.Error()})
			continue
		}
		result.Archived = append(result.Archived, raw)
		if s.metrics != nil {
			s.metrics.ArchivedOrdersTotal.Inc()
		}
	}

	return result
}

func (s *Service) countTransition(from, to OrderStatus) {
	if s.metrics != nil {
		s.metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	}
}
