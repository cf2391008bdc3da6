package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
)

// CreateOrder handles POST /api/v1/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Customers can only order for themselves.
	if actor := actorFrom(c); actor.Role == models.RoleCustomer {
		req.UserID = actor.ID
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder handles GET /api/v1/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	actor := actorFrom(c)
	if actor.Role == models.RoleCustomer && order.UserID != actor.ID {
		h.handleError(c, errors.NewNotFoundError("order", order.ID))
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/v1/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if actor := actorFrom(c); actor.Role == models.RoleCustomer {
		filter.UserID = actor.ID
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// UpdateOrderStatus handles PATCH /api/v1/orders/:id/status
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.orderService.TransitionOrder(c.Request.Context(), c.Param("id"), req.Status, actorFrom(c), req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	var req models.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	actor := actorFrom(c)
	if actor.Role == models.RoleCustomer {
		order, err := h.orderService.GetOrder(ctx, c.Param("id"))
		if err != nil {
			h.handleError(c, err)
			return
		}
		if order.UserID != actor.ID {
			h.handleError(c, errors.NewNotFoundError("order", order.ID))
			return
		}
	}

	outcome, err := h.orderService.CancelOrder(ctx, c.Param("id"), actor, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func parseListFilter(c *gin.Context) (*models.OrderListFilter, error) {
	filter := &models.OrderListFilter{
		UserID:      c.Query("user_id"),
		CafeteriaID: c.Query("cafeteria_id"),
	}

	if status := c.Query("status"); status != "" {
		s := models.OrderStatus(status)
		if !s.IsValid() {
			return nil, errors.NewValidationError("status", "unknown order status "+status)
		}
		filter.Status = &s
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, errors.NewValidationError("limit", "limit must be an integer")
		}
		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, errors.NewValidationError("offset", "offset must be an integer")
		}
		filter.Offset = offset
	}

	var err error
	if filter.StartDate, err = parseDate(c.Query("from"), "from"); err != nil {
		return nil, err
	}
	if filter.EndDate, err = parseDate(c.Query("to"), "to"); err != nil {
		return nil, err
	}

	return filter, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(value, field string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.NewValidationError(field, "expected RFC 3339 timestamp or YYYY-MM-DD date")
}
