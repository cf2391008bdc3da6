package service

import (
	"strings"
	"time"

	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
)

var allowedTransitions = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.OrderStatusPending:   {models.OrderStatusConfirmed: true, models.OrderStatusCancelled: true},
	models.OrderStatusConfirmed: {models.OrderStatusPreparing: true, models.OrderStatusCancelled: true},
	models.OrderStatusPreparing: {models.OrderStatusReady: true, models.OrderStatusCancelled: true},
	models.OrderStatusReady:     {models.OrderStatusCompleted: true},
	models.OrderStatusCompleted: {},
	models.OrderStatusCancelled: {},
}

// CanTransition reports whether an order in current may move to next.
// Staying in the same non-terminal status is allowed and treated as a no-op.
func CanTransition(current, next models.OrderStatus) bool {
	if current.IsTerminal() {
		return false
	}
	if current == next {
		return current.IsValid()
	}
	return allowedTransitions[current][next]
}

// SideEffects lists the follow-up work a transition requires. None of it is
// performed by the lifecycle itself.
type SideEffects = models.SideEffects

// TransitionResult describes an accepted transition.
type TransitionResult struct {
	Order       *models.Order
	Previous    models.OrderStatus
	Next        models.OrderStatus
	Actor       models.Actor
	Reason      string
	StampedAt   *time.Time
	SideEffects SideEffects
	NoOp        bool
}

// Lifecycle applies status transitions to orders.
type Lifecycle struct {
	now func() time.Time
}

func NewLifecycle(now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{now: now}
}

// ApplyTransition validates the move of order to next and returns the updated
// copy together with the side effects the caller must trigger. Requesting the
// status the order already has succeeds without changes, so retried requests
// are harmless.
func (l *Lifecycle) ApplyTransition(order *models.Order, next models.OrderStatus, actor models.Actor, reason string) (*TransitionResult, error) {
	current := order.Status

	if current == next && current.IsValid() {
		return &TransitionResult{
			Order:    order,
			Previous: current,
			Next:     next,
			Actor:    actor,
			NoOp:     true,
		}, nil
	}

	if !next.IsValid() || !CanTransition(current, next) {
		return nil, &errors.IllegalTransitionError{From: string(current), To: string(next)}
	}

	reason = strings.TrimSpace(reason)
	if next == models.OrderStatusCancelled && reason == "" {
		return nil, &errors.MissingReasonError{Status: string(next)}
	}

	now := l.now().UTC()
	updated := order.Clone()
	updated.Status = next
	updated.UpdatedAt = now

	result := &TransitionResult{
		Order:    updated,
		Previous: current,
		Next:     next,
		Actor:    actor,
		Reason:   reason,
		SideEffects: SideEffects{
			SendNotification: true,
			RecomputeRevenue: current == models.OrderStatusPending && next == models.OrderStatusConfirmed,
			DeductInventory:  next == models.OrderStatusCompleted,
		},
	}

	switch next {
	case models.OrderStatusCompleted:
		updated.CompletedAt = &now
		result.StampedAt = &now
	case models.OrderStatusCancelled:
		updated.CancelledAt = &now
		updated.CancellationReason = reason
		result.StampedAt = &now
	}

	return result, nil
}
