package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/service"
)

// KitchenCommand asks for an order to move to a new status. Kitchen display
// terminals publish these when staff start, finish or abandon an order.
type KitchenCommand struct {
	OrderID   string             `json:"order_id"`
	Status    models.OrderStatus `json:"status"`
	ActorID   string             `json:"actor_id"`
	Reason    string             `json:"reason,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

// OrderTransitioner is the part of OrderService the consumer drives.
type OrderTransitioner interface {
	TransitionOrder(ctx context.Context, id string, next models.OrderStatus, actor models.Actor, reason string) (*service.TransitionOutcome, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	initialRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// KafkaConsumer applies kitchen status commands from Kafka.
type KafkaConsumer struct {
	reader messageReader
	orders OrderTransitioner
	logger *logging.Logger
	stopCh chan struct{}

	retryBackoff time.Duration
}

// NewKafkaConsumer creates a consumer on the kitchen topic.
func NewKafkaConsumer(cfg config.KafkaConfig, orders OrderTransitioner, logger *logging.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.KitchenTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &KafkaConsumer{
		reader:       reader,
		orders:       orders,
		logger:       logger,
		stopCh:       make(chan struct{}),
		retryBackoff: initialRetryBackoff,
	}
}

// Start consumes until ctx is cancelled or Stop is called. An offset is
// committed only once its command has been applied or rejected for good, so
// commands that hit a store outage are retried rather than lost.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting kitchen consumer")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("Kitchen consumer stopped")
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.stopped() {
				return nil
			}
			c.logger.Error("Failed to fetch message", logging.Fields{"error": err.Error()})
			continue
		}

		if !c.processWithRetry(ctx, msg) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message", logging.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"error":     err.Error(),
			})
		}
	}
}

// processWithRetry handles msg until it succeeds or is rejected for good,
// backing off between attempts. It returns false if the consumer was stopped
// first.
func (c *KafkaConsumer) processWithRetry(ctx context.Context, msg kafka.Message) bool {
	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		err := c.handleMessage(ctx, msg)
		if err == nil {
			return true
		}

		c.logger.Error("Kitchen command failed, retrying", logging.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"attempt":   attempt,
			"backoff":   backoff.String(),
			"error":     err.Error(),
		})

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-c.stopCh:
			timer.Stop()
			return false
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

func (c *KafkaConsumer) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Stop stops the consumer.
func (c *KafkaConsumer) Stop() {
	close(c.stopCh)
	c.reader.Close()
}

// handleMessage applies one command. Malformed commands and commands the
// lifecycle rejects are logged and dropped, since replaying them would fail
// the same way. Any other failure is returned so the command can be retried.
func (c *KafkaConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	c.logger.Debug("Received message", logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var cmd KitchenCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		c.logger.Error("Failed to unmarshal kitchen command", logging.Fields{"error": err.Error()})
		return nil
	}

	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	if cmd.OrderID == "" || !cmd.Status.IsValid() {
		c.logger.Warn("Ignoring malformed kitchen command", logging.Fields{
			"order_id": cmd.OrderID,
			"status":   cmd.Status,
		})
		return nil
	}

	actorID := cmd.ActorID
	if actorID == "" {
		actorID = "kitchen"
	}
	if cmd.RequestID != "" {
		ctx = middleware.WithRequestID(ctx, cmd.RequestID)
	}

	outcome, err := c.orders.TransitionOrder(ctx, cmd.OrderID, cmd.Status, models.SystemActor(actorID), cmd.Reason)
	if err != nil {
		if !permanent(err) {
			return fmt.Errorf("apply kitchen command for %s: %w", cmd.OrderID, err)
		}
		c.logger.Warn("Kitchen command rejected", logging.Fields{
			"order_id": cmd.OrderID,
			"status":   cmd.Status,
			"kind":     errors.Kind(err),
			"error":    err.Error(),
		})
		return nil
	}

	for _, w := range outcome.Warnings {
		c.logger.Warn("Kitchen command side effect failed", logging.Fields{
			"order_id": cmd.OrderID,
			"effect":   w.Effect,
			"error":    w.Message,
		})
	}

	c.logger.Info("Kitchen command applied", logging.Fields{
		"order_id": cmd.OrderID,
		"previous": outcome.Previous,
		"status":   cmd.Status,
		"no_op":    outcome.NoOp,
	})
	return nil
}

// permanent reports whether err will recur on every replay. Conflicts are
// not permanent: the order is re-read on the next attempt.
func permanent(err error) bool {
	switch errors.Kind(err) {
	case errors.KindInvalidInput, errors.KindValidation, errors.KindIllegalTransition,
		errors.KindMissingReason, errors.KindNotFound:
		return true
	default:
		return false
	}
}
