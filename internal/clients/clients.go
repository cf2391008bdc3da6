// Package clients talks to the services an order transition fans out to.
package clients

import (
	"context"
	"net/http"

	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
)

// InventoryClient deducts stock for the items of a completed order.
type InventoryClient interface {
	DeductInventory(ctx context.Context, req *DeductionRequest) error
}

// Notifier tells the customer about a status change.
type Notifier interface {
	SendNotification(ctx context.Context, n *Notification) error
}

// DeductionRequest is sent to the inventory service.
type DeductionRequest struct {
	OrderID     string            `json:"orderId"`
	CafeteriaID string            `json:"cafeteriaId"`
	LineItems   []models.LineItem `json:"lineItems"`
}

// Notification is sent to the notification service.
type Notification struct {
	OrderID   string             `json:"orderId"`
	UserID    string             `json:"userId"`
	Email     string             `json:"email,omitempty"`
	NewStatus models.OrderStatus `json:"newStatus"`
	Reason    string             `json:"reason,omitempty"`
}

func setHeaders(ctx context.Context, req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	// Propagate request ID for tracing
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}
}
