package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/service"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Handlers holds all HTTP handlers for the orders service.
type Handlers struct {
	orderService   *service.OrderService
	config         *config.Config
	checks         map[string]ReadinessCheck
	metricsHandler http.Handler
	logger         *logging.Logger
}

// NewHandlers creates a new handlers instance. gatherer may be nil, in which
// case /metrics serves the default registry.
func NewHandlers(
	orderService *service.OrderService,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	checks map[string]ReadinessCheck,
	logger *logging.Logger,
) *Handlers {
	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	return &Handlers{
		orderService:   orderService,
		config:         cfg,
		checks:         checks,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

func (h *Handlers) handleError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", logging.Fields{
			"path":       c.FullPath(),
			"error":      err.Error(),
			"request_id": c.GetString(string(middleware.RequestIDKey)),
		})
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{
		"error": err.Error(),
		"kind":  errors.Kind(err),
	}
	if field := errors.Field(err); field != "" {
		body["field"] = field
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request body",
		"details": err.Error(),
	})
}

func actorFrom(c *gin.Context) models.Actor {
	if actor, ok := middleware.ActorFrom(c); ok {
		return actor
	}
	return models.Actor{ID: "anonymous", Role: models.RoleCustomer}
}
