package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
)

// Publisher sends order events to a message broker.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishStatusChanged(ctx context.Context, event *models.TransitionEvent) error
	Close() error
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = (*MockPublisher)(nil)
)

// OrderEvent is the envelope written to the broker.
type OrderEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OrderID       string            `json:"order_id"`
	UserID        string            `json:"user_id"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

func newOrderEvent(ctx context.Context, eventType EventType, orderID, userID string, payload interface{}) (*OrderEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       orderID,
		UserID:        userID,
		Data:          data,
		Metadata:      make(map[string]string),
		Timestamp:     time.Now().UTC(),
		CorrelationID: middleware.RequestIDFromContext(ctx),
	}, nil
}

func statusChangedEvent(ctx context.Context, event *models.TransitionEvent) (*OrderEvent, error) {
	eventType := EventTypeOrderStatusChanged
	if event.Next == models.OrderStatusCancelled {
		eventType = EventTypeOrderCancelled
	}

	env, err := newOrderEvent(ctx, eventType, event.OrderID, event.UserID, event)
	if err != nil {
		return nil, err
	}
	env.Metadata["previous_status"] = string(event.Previous)
	env.Metadata["new_status"] = string(event.Next)
	env.Metadata["cafeteria_id"] = event.CafeteriaID
	return env, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.Logger
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		topic:  cfg.OrdersTopic,
		logger: logger,
	}
}

// PublishOrderCreated publishes an order created event.
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	event, err := newOrderEvent(ctx, EventTypeOrderCreated, order.ID, order.UserID, order)
	if err != nil {
		return err
	}
	return p.publish(ctx, event)
}

// PublishStatusChanged publishes a status change, or a cancellation.
func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, transition *models.TransitionEvent) error {
	p.logger.Debug("Publishing order status changed event", logging.Fields{
		"order_id":        transition.OrderID,
		"previous_status": transition.Previous,
		"new_status":      transition.Next,
	})

	event, err := statusChangedEvent(ctx, transition)
	if err != nil {
		return err
	}
	return p.publish(ctx, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, event *OrderEvent) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Keyed by order so that one order's events stay ordered within a partition.
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"order_id":   event.OrderID,
			"error":      err.Error(),
		})
		return err
	}

	p.logger.Info("Event published", logging.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	})

	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// MockPublisher is a mock implementation for testing.
type MockPublisher struct {
	mu     sync.Mutex
	Events []*OrderEvent
	Err    error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Events: make([]*OrderEvent, 0),
	}
}

func (m *MockPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	return m.record(&OrderEvent{Type: EventTypeOrderCreated, OrderID: order.ID})
}

func (m *MockPublisher) PublishStatusChanged(ctx context.Context, event *models.TransitionEvent) error {
	eventType := EventTypeOrderStatusChanged
	if event.Next == models.OrderStatusCancelled {
		eventType = EventTypeOrderCancelled
	}
	return m.record(&OrderEvent{Type: eventType, OrderID: event.OrderID})
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) record(e *OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, e)
	return nil
}
