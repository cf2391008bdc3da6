// Package events fans order transitions out to best-effort side effects and
// the message brokers.
package events

import (
	"context"

	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/metrics"
	"github.com/unieats/unieats-orders-service/internal/models"
)

// Subscriber reacts to a committed status transition.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, event *models.TransitionEvent) error
}

// CreatedSubscriber is implemented by subscribers that also want new orders.
type CreatedSubscriber interface {
	HandleCreated(ctx context.Context, order *models.Order) error
}

// Dispatcher delivers events to every subscriber in registration order. A
// failing subscriber does not stop the others; its error comes back as a
// warning.
type Dispatcher struct {
	subscribers []Subscriber
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

func NewDispatcher(m *metrics.Metrics, logger *logging.Logger, subscribers ...Subscriber) *Dispatcher {
	return &Dispatcher{
		subscribers: subscribers,
		metrics:     m,
		logger:      logger,
	}
}

// Subscribe adds s after the existing subscribers.
func (d *Dispatcher) Subscribe(s Subscriber) {
	d.subscribers = append(d.subscribers, s)
}

// Dispatch runs every subscriber for event and collects their failures.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.TransitionEvent) []models.Warning {
	var warnings []models.Warning
	for _, s := range d.subscribers {
		if err := s.Handle(ctx, event); err != nil {
			warnings = append(warnings, d.fail(s.Name(), event.OrderID, err))
		}
	}
	return warnings
}

// OrderCreated runs every CreatedSubscriber for order.
func (d *Dispatcher) OrderCreated(ctx context.Context, order *models.Order) []models.Warning {
	var warnings []models.Warning
	for _, s := range d.subscribers {
		cs, ok := s.(CreatedSubscriber)
		if !ok {
			continue
		}
		if err := cs.HandleCreated(ctx, order); err != nil {
			warnings = append(warnings, d.fail(s.Name(), order.ID, err))
		}
	}
	return warnings
}

func (d *Dispatcher) fail(effect, orderID string, err error) models.Warning {
	d.logger.Warn("Side effect failed", logging.Fields{
		"effect":   effect,
		"order_id": orderID,
		"error":    err.Error(),
	})
	d.metrics.ObserveSideEffectFailure(effect)
	return models.Warning{Effect: effect, Message: err.Error()}
}
