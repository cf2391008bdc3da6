package models

import "time"

// SideEffects lists the follow-up work a status transition requires.
type SideEffects struct {
	DeductInventory  bool `json:"deduct_inventory"`
	SendNotification bool `json:"send_notification"`
	RecomputeRevenue bool `json:"recompute_revenue"`
}

// TransitionEvent is emitted after a status change has been persisted.
type TransitionEvent struct {
	ID            string      `json:"id"`
	OrderID       string      `json:"order_id"`
	UserID        string      `json:"user_id"`
	CafeteriaID   string      `json:"cafeteria_id"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	Items         []LineItem  `json:"items"`
	Previous      OrderStatus `json:"previous_status"`
	Next          OrderStatus `json:"new_status"`
	Actor         Actor       `json:"actor"`
	Reason        string      `json:"reason,omitempty"`
	SideEffects   SideEffects `json:"side_effects"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// Warning reports a side effect that failed after the transition was committed.
// The transition itself is not rolled back.
type Warning struct {
	Effect  string `json:"effect"`
	Message string `json:"message"`
}
