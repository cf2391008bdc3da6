package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

func (s OrderStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// LineItem is one menu item on an order.
type LineItem struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Total is unit price times quantity.
func (i LineItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a cafeteria order as stored by the order repository.
// Money columns are nullable so that rows written by older tooling with
// missing values are reported instead of being read as zero.
type Order struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id"`
	CafeteriaID        string              `json:"cafeteria_id"`
	CustomerEmail      string              `json:"customer_email,omitempty"`
	Items              []LineItem          `json:"items"`
	Subtotal           decimal.NullDecimal `json:"subtotal"`
	ServiceFee         decimal.NullDecimal `json:"service_fee"`
	Commission         decimal.NullDecimal `json:"commission"`
	AdminRevenue       decimal.NullDecimal `json:"admin_revenue"`
	CafeteriaRevenue   decimal.NullDecimal `json:"cafeteria_revenue"`
	TotalAmount        decimal.NullDecimal `json:"total_amount"`
	Status             OrderStatus         `json:"status"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
}

// Clone returns a copy that shares nothing mutable with o.
func (o *Order) Clone() *Order {
	c := *o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// ApplyFees copies computed fees onto the order's money columns.
func (o *Order) ApplyFees(f Fees) {
	o.Subtotal = valid(f.Subtotal)
	o.ServiceFee = valid(f.ServiceFee)
	o.Commission = valid(f.Commission)
	o.AdminRevenue = valid(f.AdminRevenue)
	o.CafeteriaRevenue = valid(f.CafeteriaRevenue)
	o.TotalAmount = valid(f.TotalAmount)
}

// StoredFees returns the persisted fee columns, or false if any is NULL.
func (o *Order) StoredFees() (Fees, bool) {
	cols := []decimal.NullDecimal{o.Subtotal, o.ServiceFee, o.Commission, o.AdminRevenue, o.CafeteriaRevenue, o.TotalAmount}
	for _, c := range cols {
		if !c.Valid {
			return Fees{}, false
		}
	}
	return Fees{
		Subtotal:         o.Subtotal.Decimal,
		ServiceFee:       o.ServiceFee.Decimal,
		Commission:       o.Commission.Decimal,
		AdminRevenue:     o.AdminRevenue.Decimal,
		CafeteriaRevenue: o.CafeteriaRevenue.Decimal,
		TotalAmount:      o.TotalAmount.Decimal,
	}, true
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Rates is the fee policy applied to a subtotal.
type Rates struct {
	ServiceFeeRate decimal.Decimal `json:"service_fee_rate"`
	ServiceFeeCap  decimal.Decimal `json:"service_fee_cap"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// Fees is the full monetary breakdown derived from a subtotal.
type Fees struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	ServiceFee       decimal.Decimal `json:"service_fee"`
	Commission       decimal.Decimal `json:"commission"`
	AdminRevenue     decimal.Decimal `json:"admin_revenue"`
	CafeteriaRevenue decimal.Decimal `json:"cafeteria_revenue"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// Equal compares every field by value.
func (f Fees) Equal(other Fees) bool {
	return f.Subtotal.Equal(other.Subtotal) &&
		f.ServiceFee.Equal(other.ServiceFee) &&
		f.Commission.Equal(other.Commission) &&
		f.AdminRevenue.Equal(other.AdminRevenue) &&
		f.CafeteriaRevenue.Equal(other.CafeteriaRevenue) &&
		f.TotalAmount.Equal(other.TotalAmount)
}

// RevenueSummary aggregates revenue over non-cancelled orders.
type RevenueSummary struct {
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
	TotalServiceFees decimal.Decimal `json:"total_service_fees"`
	AdminRevenue     decimal.Decimal `json:"admin_revenue"`
	CafeteriaRevenue decimal.Decimal `json:"cafeteria_revenue"`
	TotalOrders      int             `json:"total_orders"`
	Unpriced         []string        `json:"unpriced,omitempty"`
}
