package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/service"
)

// QuoteFees handles GET /api/v1/fees/quote?subtotal=
func (h *Handlers) QuoteFees(c *gin.Context) {
	raw := c.Query("subtotal")
	if raw == "" {
		h.handleError(c, errors.NewInvalidInputError("subtotal", "is required"))
		return
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.handleError(c, errors.NewInvalidInputError("subtotal", "must be a number"))
		return
	}
	subtotal, err := service.MoneyFromFloat("subtotal", f)
	if err != nil {
		h.handleError(c, err)
		return
	}

	fees, err := h.orderService.QuoteFees(c.Request.Context(), subtotal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, fees)
}

// RevenueSummary handles GET /api/v1/revenue/summary
func (h *Handlers) RevenueSummary(c *gin.Context) {
	filter := models.OrderListFilter{CafeteriaID: c.Query("cafeteria_id")}

	var err error
	if filter.StartDate, err = parseDate(c.Query("from"), "from"); err != nil {
		h.handleError(c, err)
		return
	}
	if filter.EndDate, err = parseDate(c.Query("to"), "to"); err != nil {
		h.handleError(c, err)
		return
	}

	summary, err := h.orderService.RevenueSummary(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetRates handles GET /api/v1/admin/rates
func (h *Handlers) GetRates(c *gin.Context) {
	c.JSON(http.StatusOK, h.orderService.Rates(c.Request.Context()))
}

// UpdateRates handles PUT /api/v1/admin/rates
func (h *Handlers) UpdateRates(c *gin.Context) {
	var req models.UpdateRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rates := models.Rates{
		ServiceFeeRate: req.ServiceFeeRate,
		ServiceFeeCap:  req.ServiceFeeCap,
		CommissionRate: req.CommissionRate,
	}
	if err := h.orderService.UpdateRates(c.Request.Context(), actorFrom(c), rates); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rates)
}

// RepairRevenue handles POST /api/v1/admin/revenue/repair
func (h *Handlers) RepairRevenue(c *gin.Context) {
	batch := 0
	if raw := c.Query("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.handleError(c, errors.NewValidationError("batch_size", "batch_size must be a positive integer"))
			return
		}
		batch = n
	}

	report, err := h.orderService.RepairRevenue(c.Request.Context(), batch)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
