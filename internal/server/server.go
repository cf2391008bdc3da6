package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/handlers"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/metrics"
	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
)

type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *handlers.Handlers
	logger     *logging.Logger
}

func New(h *handlers.Handlers, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(logging.RequestLogger(logger))
	router.Use(m.Middleware())

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logger,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/metrics", s.handlers.Metrics)
	s.router.GET("/version", s.handlers.Version)

	staff := middleware.RequireRole(models.RoleAdmin, models.RoleCafeteriaManager, models.RoleSystem)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.Auth(s.config.Auth, s.config.Features.EnableAuth, s.logger))
	{
		v1.POST("/orders", s.handlers.CreateOrder)
		v1.GET("/orders", s.handlers.ListOrders)
		v1.GET("/orders/:id", s.handlers.GetOrder)
		v1.PATCH("/orders/:id/status", staff, s.handlers.UpdateOrderStatus)
		v1.POST("/orders/:id/cancel", s.handlers.CancelOrder)

		v1.GET("/fees/quote", s.handlers.QuoteFees)
		v1.GET("/revenue/summary", staff, s.handlers.RevenueSummary)

		admin := v1.Group("/admin", middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/rates", s.handlers.GetRates)
			admin.PUT("/rates", s.handlers.UpdateRates)
			admin.POST("/revenue/repair", s.handlers.RepairRevenue)
		}
	}
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", logging.Fields{"addr": s.httpServer.Addr})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
