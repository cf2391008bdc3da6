package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the authorization role of whoever drives a transition.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleCafeteriaManager Role = "cafeteria_manager"
	RoleCustomer         Role = "customer"
	RoleSystem           Role = "system"
)

// Actor identifies who requested an operation. It is recorded in the status log.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is used by background jobs and broker consumers.
func SystemActor(id string) Actor {
	return Actor{ID: id, Role: RoleSystem}
}

type CreateOrderRequest struct {
	UserID        string            `json:"user_id" binding:"required"`
	CafeteriaID   string            `json:"cafeteria_id" binding:"required"`
	CustomerEmail string            `json:"customer_email" binding:"omitempty,email"`
	Items         []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

type LineItemRequest struct {
	MenuItemID string          `json:"menu_item_id" binding:"required"`
	Name       string          `json:"name" binding:"required,max=200"`
	Quantity   int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required,order_status"`
	Reason string      `json:"reason" binding:"max=500"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdateRatesRequest struct {
	ServiceFeeRate decimal.Decimal `json:"service_fee_rate"`
	ServiceFeeCap  decimal.Decimal `json:"service_fee_cap"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// OrderListFilter narrows order listings and revenue summaries.
type OrderListFilter struct {
	UserID      string
	CafeteriaID string
	Status      *OrderStatus
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
	Offset      int
}

// RepairReport is the outcome of a revenue repair run.
type RepairReport struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Failed   []string `json:"failed,omitempty"`
}
