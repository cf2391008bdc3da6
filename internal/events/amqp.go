package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const amqpPublishTimeout = 5 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes order events to a RabbitMQ topic exchange. Routing
// keys are the event type, with the new status appended for transitions, e.g.
// "order.status_changed.ready".
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *logging.Logger
}

// NewAMQPPublisher dials RabbitMQ and declares the durable topic exchange.
func NewAMQPPublisher(cfg config.RabbitMQConfig, logger *logging.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("Connected to RabbitMQ", logging.Fields{"exchange": cfg.Exchange})
	return &AMQPPublisher{conn: conn, channel: ch, exchange: cfg.Exchange, logger: logger}, nil
}

func (p *AMQPPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	event, err := newOrderEvent(ctx, EventTypeOrderCreated, order.ID, order.UserID, order)
	if err != nil {
		return err
	}
	return p.publish(ctx, string(event.Type), event)
}

func (p *AMQPPublisher) PublishStatusChanged(ctx context.Context, transition *models.TransitionEvent) error {
	event, err := statusChangedEvent(ctx, transition)
	if err != nil {
		return err
	}
	return p.publish(ctx, string(event.Type)+"."+string(transition.Next), event)
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event *OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, amqpPublishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			MessageId:     event.ID,
			CorrelationId: event.CorrelationID,
			Timestamp:     event.Timestamp,
			Type:          string(event.Type),
			Body:          body,
		})
	if err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":    event.ID,
			"routing_key": routingKey,
			"order_id":    event.OrderID,
			"error":       err.Error(),
		})
		return err
	}

	p.logger.Info("Event published", logging.Fields{
		"event_id":    event.ID,
		"routing_key": routingKey,
		"order_id":    event.OrderID,
	})
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
