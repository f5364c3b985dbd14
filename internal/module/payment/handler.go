package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/server/internal/shared/response"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/create-payment-intent", h.CreatePaymentIntent)
}

// CreatePaymentIntent creates a gateway payment intent for the given
// amount and returns its client secret.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.service.CreatePaymentIntent(c.Request.Context(), req.Amount, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
