package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/server/internal/shared/response"
)

// Handler handles the customer-facing order routes: checkout and return
// requests. Everything else about an order is operator territory.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers public order routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/return-request", h.RequestReturn)
	}
}

// CreateOrder creates a pending order from a checkout submission.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order.ToResponse()})
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order.ToResponse()})
}

// RequestReturn records a customer return request against an order.
func (h *Handler) RequestReturn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.RequestReturn(c.Request.Context(), id, &req); err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func handleOrderError(c *gin.Context, err error) {
	response.HandleErrorWithDefault(c, err, []response.ErrorMapping{
		{Err: ErrOrderNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND"},
		{Err: ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
		{Err: ErrStatusLocked, Status: http.StatusConflict, Code: "STATUS_LOCKED"},
		{Err: ErrSchema, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR"},
		{Err: ErrStore, Status: http.StatusServiceUnavailable, Code: "STORE_UNAVAILABLE"},
	})
}
