package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/server/internal/module/order"
	"github.com/shopcore/server/internal/module/payment"
	"github.com/shopcore/server/internal/shared/response"
	"go.uber.org/zap"
)

// AdminHandler is the operator-facing surface for the order lifecycle:
// refund approval/denial, refund execution, shipping and archival.
type AdminHandler struct {
	orders   *order.Service
	payments *payment.Service
	logger   *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(orders *order.Service, payments *payment.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		orders:   orders,
		payments: payments,
		logger:   logger,
	}
}

// RegisterRoutes registers the operator routes. The caller attaches the
// operator auth middleware to the group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/api", h.Dispatch)

	orders := r.Group("/admin/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/archived", h.ListArchivedOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/approve-refund", h.ApproveRefund)
		orders.POST("/:id/deny-refund", h.DenyRefund)
		orders.POST("/:id/process-refund", h.ProcessRefund)
		orders.POST("/:id/ship", h.MarkShipped)
		orders.PATCH("/:id/status", h.UpdateStatus)
		orders.POST("/archive", h.ArchiveOrders)
	}
}

// Dispatch handles the tagged callable request:
// {endpoint, orderId | orderIds, denyReason?, status?}.
func (h *AdminHandler) Dispatch(c *gin.Context) {
	var req order.APIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	ctx := c.Request.Context()

	switch req.Endpoint {
	case "archiveOrders":
		if len(req.OrderIDs) == 0 {
			apiError(c, http.StatusBadRequest, "BAD_REQUEST", "orderIds is required")
			return
		}
		result := h.orders.ArchiveOrders(ctx, req.OrderIDs)
		c.JSON(http.StatusOK, result)
		return

	case "approveRefund", "denyRefund", "processRefund", "markShipped", "updateStatus":
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			apiError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid orderId")
			return
		}

		var opErr error
		switch req.Endpoint {
		case "approveRefund":
			opErr = h.orders.ApproveRefund(ctx, orderID)
		case "denyRefund":
			opErr = h.orders.DenyRefund(ctx, orderID, req.DenyReason)
		case "processRefund":
			opErr = h.payments.ProcessRefund(ctx, orderID)
		case "markShipped":
			opErr = h.orders.MarkShipped(ctx, orderID)
		case "updateStatus":
			opErr = h.orders.UpdateStatus(ctx, orderID, order.OrderStatus(req.Status))
		}
		if opErr != nil {
			h.handleAPIError(c, opErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
		return

	default:
		apiError(c, http.StatusBadRequest, "UNKNOWN_ENDPOINT", "unknown endpoint "+req.Endpoint)
	}
}

// ListOrders returns active orders, optionally filtered by status.
func (h *AdminHandler) ListOrders(c *gin.Context) {
	var filter order.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), &filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := make([]*order.OrderResponse, len(orders))
	for i, o := range orders {
		resp[i] = o.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{"orders": resp})
}

// ListArchivedOrders returns archived orders.
func (h *AdminHandler) ListArchivedOrders(c *gin.Context) {
	archived, err := h.orders.ListArchivedOrders(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": archived})
}

// GetOrder returns a single order.
func (h *AdminHandler) GetOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	o, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o.ToResponse()})
}

// ApproveRefund approves a pending return request.
func (h *AdminHandler) ApproveRefund(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	if err := h.orders.ApproveRefund(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// DenyRefund denies a pending return request.
func (h *AdminHandler) DenyRefund(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional; a bare deny carries no reason.
	_ = c.ShouldBindJSON(&req)

	if err := h.orders.DenyRefund(c.Request.Context(), id, req.Reason); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ProcessRefund executes the gateway refund for an approved return.
func (h *AdminHandler) ProcessRefund(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	if err := h.payments.ProcessRefund(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// MarkShipped moves a paid order to shipped.
func (h *AdminHandler) MarkShipped(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	if err := h.orders.MarkShipped(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// UpdateStatus is the free-form status change path.
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	var req order.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ArchiveOrders moves the given orders into the archive, best effort
// per id, and reports every outcome.
func (h *AdminHandler) ArchiveOrders(c *gin.Context) {
	var req struct {
		OrderIDs []string `json:"order_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result := h.orders.ArchiveOrders(c.Request.Context(), req.OrderIDs)
	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) handleError(c *gin.Context, err error) {
	response.HandleErrorWithDefault(c, err, []response.ErrorMapping{
		{Err: order.ErrOrderNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND"},
		{Err: order.ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
		{Err: order.ErrStatusLocked, Status: http.StatusConflict, Code: "STATUS_LOCKED"},
		{Err: order.ErrMissingPayment, Status: http.StatusConflict, Code: "NO_PAYMENT"},
		{Err: order.ErrSchema, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR"},
		{Err: order.ErrStore, Status: http.StatusServiceUnavailable, Code: "STORE_UNAVAILABLE"},
		{Err: payment.ErrGateway, Status: http.StatusBadGateway, Code: "GATEWAY_ERROR"},
	})
}

// handleAPIError maps operation errors to the {code, message} shape of
// the tagged callable contract.
func (h *AdminHandler) handleAPIError(c *gin.Context, err error) {
	type mapping struct {
		err    error
		status int
		code   string
	}
	mappings := []mapping{
		{order.ErrOrderNotFound, http.StatusNotFound, "NOT_FOUND"},
		{order.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{order.ErrStatusLocked, http.StatusConflict, "STATUS_LOCKED"},
		{order.ErrMissingPayment, http.StatusConflict, "NO_PAYMENT"},
		{order.ErrSchema, http.StatusBadRequest, "VALIDATION_ERROR"},
		{order.ErrStore, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{payment.ErrGateway, http.StatusBadGateway, "GATEWAY_ERROR"},
	}
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			apiError(c, m.status, m.code, err.Error())
			return
		}
	}
	h.logger.Error("admin operation failed", zap.Error(err))
	apiError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func apiError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "message": message})
}
