package events

import (
	"context"

	"github.com/unieats/unieats-orders-service/internal/clients"
	"github.com/unieats/unieats-orders-service/internal/models"
)

// InventorySubscriber deducts stock when an order is completed.
type InventorySubscriber struct {
	client clients.InventoryClient
}

func NewInventorySubscriber(client clients.InventoryClient) *InventorySubscriber {
	return &InventorySubscriber{client: client}
}

func (s *InventorySubscriber) Name() string { return "deduct_inventory" }

func (s *InventorySubscriber) Handle(ctx context.Context, event *models.TransitionEvent) error {
	if !event.SideEffects.DeductInventory {
		return nil
	}
	return s.client.DeductInventory(ctx, &clients.DeductionRequest{
		OrderID:     event.OrderID,
		CafeteriaID: event.CafeteriaID,
		LineItems:   event.Items,
	})
}

// NotificationSubscriber tells the customer about the new status.
type NotificationSubscriber struct {
	notifier clients.Notifier
}

func NewNotificationSubscriber(notifier clients.Notifier) *NotificationSubscriber {
	return &NotificationSubscriber{notifier: notifier}
}

func (s *NotificationSubscriber) Name() string { return "send_notification" }

func (s *NotificationSubscriber) Handle(ctx context.Context, event *models.TransitionEvent) error {
	if !event.SideEffects.SendNotification {
		return nil
	}
	return s.notifier.SendNotification(ctx, &clients.Notification{
		OrderID:   event.OrderID,
		UserID:    event.UserID,
		Email:     event.CustomerEmail,
		NewStatus: event.Next,
		Reason:    event.Reason,
	})
}

// BrokerSubscriber forwards every event to a message broker.
type BrokerSubscriber struct {
	publisher Publisher
}

func NewBrokerSubscriber(publisher Publisher) *BrokerSubscriber {
	return &BrokerSubscriber{publisher: publisher}
}

func (s *BrokerSubscriber) Name() string { return "publish_event" }

func (s *BrokerSubscriber) Handle(ctx context.Context, event *models.TransitionEvent) error {
	return s.publisher.PublishStatusChanged(ctx, event)
}

func (s *BrokerSubscriber) HandleCreated(ctx context.Context, order *models.Order) error {
	return s.publisher.PublishOrderCreated(ctx, order)
}
