package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/server/internal/module/order"
	"github.com/shopcore/server/internal/utils/metrics"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

// WebhookHandler receives Stripe webhook events and feeds them into the
// reconciler.
//
// Acknowledgement policy: only a bad signature (or unreadable payload)
// returns 4xx. Every other outcome, including a missing order or a
// failed reconciliation, is acknowledged with 200 so the gateway does
// not retry indefinitely; failures stay queryable in the webhook_events
// ledger.
type WebhookHandler struct {
	payments *Service
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(payments *Service, m *metrics.Metrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		metrics:  m,
		logger:   logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhook", h.HandleStripeWebhook)
	r.POST("/webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook handles incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Signature verification needs the raw, unparsed body.
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.payments.VerifyWebhookSignature(payload, signature); err != nil {
		h.logger.Warn("invalid webhook signature", zap.Error(err))
		h.countEvent("unknown", "signature_invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	ctx := c.Request.Context()

	exists, err := h.payments.repo.WebhookEventExists(ctx, event.ID)
	if err != nil {
		h.logger.Error("failed to check event existence", zap.Error(err))
		// Continue processing; re-applying is safe, dropping is not.
	}
	if exists {
		h.logger.Info("webhook event already processed", zap.String("event_id", event.ID))
		h.countEvent(string(event.Type), "duplicate")
		c.JSON(http.StatusOK, gin.H{"received": true, "status": "already_processed"})
		return
	}

	if err := h.payments.repo.CreateWebhookEvent(ctx, &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: string(payload),
	}); err != nil {
		h.logger.Error("failed to store webhook event", zap.Error(err))
	}

	processErr := h.payments.Reconcile(ctx, &event)

	if err := h.payments.repo.MarkWebhookEventProcessed(ctx, event.ID, processErr); err != nil {
		h.logger.Error("failed to mark event processed", zap.Error(err))
	}

	switch {
	case processErr == nil:
		h.countEvent(string(event.Type), "applied")
	case errors.Is(processErr, order.ErrOrderNotFound), errors.Is(processErr, ErrNoOrderRef):
		// Nothing to apply the event to; acknowledge so the gateway
		// stops redelivering.
		h.logger.Warn("webhook event skipped",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(processErr),
		)
		h.countEvent(string(event.Type), "skipped")
	default:
		h.logger.Error("failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(processErr),
		)
		h.countEvent(string(event.Type), "error")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) countEvent(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	}
}
