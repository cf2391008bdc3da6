package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/handlers"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/metrics"
	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/repository"
	"github.com/unieats/unieats-orders-service/internal/service"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, enableAuth bool) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewNopLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 0},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
		Features: config.FeatureFlags{EnableAuth: enableAuth},
	}

	calc := service.NewRevenueCalculator(nil, service.DefaultRates(), m, logger)
	svc := service.NewOrderService(repository.NewMockOrderRepository(), nil, calc, service.NewLifecycle(nil), nil, nil, m, cfg, logger)
	h := handlers.NewHandlers(svc, cfg, reg, nil, logger)

	return New(h, cfg, m, logger)
}

func token(t *testing.T, subject string, role models.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestRoutes_RoleEnforcement(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name   string
		method string
		path   string
		role   models.Role
		code   int
	}{
		{"health needs no token", http.MethodGet, "/health", "", http.StatusOK},
		{"quote without token", http.MethodGet, "/api/v1/fees/quote?subtotal=10", "", http.StatusUnauthorized},
		{"quote as customer", http.MethodGet, "/api/v1/fees/quote?subtotal=10", models.RoleCustomer, http.StatusOK},
		{"summary as customer", http.MethodGet, "/api/v1/revenue/summary", models.RoleCustomer, http.StatusForbidden},
		{"summary as manager", http.MethodGet, "/api/v1/revenue/summary", models.RoleCafeteriaManager, http.StatusOK},
		{"status as customer", http.MethodPatch, "/api/v1/orders/ord_1/status", models.RoleCustomer, http.StatusForbidden},
		{"rates as manager", http.MethodGet, "/api/v1/admin/rates", models.RoleCafeteriaManager, http.StatusForbidden},
		{"rates as admin", http.MethodGet, "/api/v1/admin/rates", models.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.role != "" {
				req.Header.Set("Authorization", "Bearer "+token(t, "u_1", tt.role))
			}
			w := httptest.NewRecorder()

			srv.Router().ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestRoutes_RequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/rates", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(middleware.HeaderRequestID))
}
