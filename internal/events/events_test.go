package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unieats/unieats-orders-service/internal/clients"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/middleware"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/service"
)

func completedEvent() *models.TransitionEvent {
	return &models.TransitionEvent{
		ID:            "evt_1",
		OrderID:       "ord_1",
		UserID:        "user_1",
		CafeteriaID:   "caf_1",
		CustomerEmail: "student@campus.edu",
		Items:         []models.LineItem{{MenuItemID: "m1", Name: "Ramen", Quantity: 2, UnitPrice: decimal.NewFromInt(50)}},
		Previous:      models.OrderStatusReady,
		Next:          models.OrderStatusCompleted,
		Actor:         models.Actor{ID: "mgr_1", Role: models.RoleCafeteriaManager},
		SideEffects:   models.SideEffects{SendNotification: true, DeductInventory: true},
		OccurredAt:    time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC),
	}
}

func TestDispatcher_RunsEverySubscriber(t *testing.T) {
	inventory := clients.NewMockInventoryClient()
	inventory.Err = stderrors.New("inventory service returned status 503")
	notifier := clients.NewMockNotificationClient()
	publisher := NewMockPublisher()

	d := NewDispatcher(nil, logging.NewNopLogger(),
		NewInventorySubscriber(inventory),
		NewNotificationSubscriber(notifier),
	)
	d.Subscribe(NewBrokerSubscriber(publisher))

	warnings := d.Dispatch(context.Background(), completedEvent())

	require.Len(t, warnings, 1)
	assert.Equal(t, "deduct_inventory", warnings[0].Effect)
	assert.Contains(t, warnings[0].Message, "503")

	require.Len(t, notifier.Notifications, 1, "a failing subscriber must not stop the rest")
	assert.Equal(t, models.OrderStatusCompleted, notifier.Notifications[0].NewStatus)
	assert.Equal(t, "student@campus.edu", notifier.Notifications[0].Email)
	require.Len(t, publisher.Events, 1)
	assert.Equal(t, EventTypeOrderStatusChanged, publisher.Events[0].Type)
}

func TestSubscribers_HonourSideEffectFlags(t *testing.T) {
	inventory := clients.NewMockInventoryClient()
	notifier := clients.NewMockNotificationClient()
	d := NewDispatcher(nil, logging.NewNopLogger(), NewInventorySubscriber(inventory), NewNotificationSubscriber(notifier))

	event := completedEvent()
	event.SideEffects = models.SideEffects{}
	assert.Empty(t, d.Dispatch(context.Background(), event))
	assert.Empty(t, inventory.Deductions)
	assert.Empty(t, notifier.Notifications)

	event.SideEffects = models.SideEffects{DeductInventory: true}
	d.Dispatch(context.Background(), event)
	require.Len(t, inventory.Deductions, 1)
	assert.Equal(t, "ord_1", inventory.Deductions[0].OrderID)
	assert.Len(t, inventory.Deductions[0].LineItems, 1)
}

func TestDispatcher_OrderCreated(t *testing.T) {
	publisher := NewMockPublisher()
	publisher.Err = stderrors.New("broker down")
	d := NewDispatcher(nil, logging.NewNopLogger(), NewNotificationSubscriber(clients.NewMockNotificationClient()), NewBrokerSubscriber(publisher))

	warnings := d.OrderCreated(context.Background(), &models.Order{ID: "ord_1"})
	require.Len(t, warnings, 1)
	assert.Equal(t, "publish_event", warnings[0].Effect)
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_PublishStatusChanged(t *testing.T) {
	writer := &fakeWriter{}
	p := &KafkaPublisher{writer: writer, topic: "unieats.orders", logger: logging.NewNopLogger()}

	ctx := middleware.WithRequestID(context.Background(), "req-9")
	cancelled := completedEvent()
	cancelled.Next = models.OrderStatusCancelled
	cancelled.Reason = "kitchen closed"

	require.NoError(t, p.PublishStatusChanged(ctx, completedEvent()))
	require.NoError(t, p.PublishStatusChanged(ctx, cancelled))
	require.Len(t, writer.messages, 2)

	msg := writer.messages[0]
	assert.Equal(t, "ord_1", string(msg.Key))

	var env OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, EventTypeOrderStatusChanged, env.Type)
	assert.Equal(t, "req-9", env.CorrelationID)
	assert.Equal(t, "ready", env.Metadata["previous_status"])
	assert.Equal(t, "completed", env.Metadata["new_status"])
	assert.Len(t, env.ID, 36)

	var payload models.TransitionEvent
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.True(t, payload.SideEffects.DeductInventory)

	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &env))
	assert.Equal(t, EventTypeOrderCancelled, env.Type)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: stderrors.New("leader not available")}, logger: logging.NewNopLogger()}

	err := p.PublishOrderCreated(context.Background(), &models.Order{ID: "ord_1"})
	assert.ErrorContains(t, err, "leader not available")
}

type fakeChannel struct {
	exchange string
	keys     []string
	messages []amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchange: "unieats.orders", logger: logging.NewNopLogger()}

	require.NoError(t, p.PublishOrderCreated(context.Background(), &models.Order{ID: "ord_1"}))
	require.NoError(t, p.PublishStatusChanged(context.Background(), completedEvent()))

	assert.Equal(t, "unieats.orders", ch.exchange)
	assert.Equal(t, []string{"order.created", "order.status_changed.completed"}, ch.keys)
	assert.Equal(t, amqp.Persistent, ch.messages[1].DeliveryMode)
	assert.Equal(t, "application/json", ch.messages[1].ContentType)
	assert.NoError(t, p.Close())
}

// fakeTransitioner fails with errs in order, then with err, then succeeds.
type fakeTransitioner struct {
	mu    sync.Mutex
	calls []KitchenCommand
	actor models.Actor
	errs  []error
	err   error
}

func (f *fakeTransitioner) TransitionOrder(ctx context.Context, id string, next models.OrderStatus, actor models.Actor, reason string) (*service.TransitionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, KitchenCommand{OrderID: id, Status: next, Reason: reason, RequestID: middleware.RequestIDFromContext(ctx)})
	f.actor = actor
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &service.TransitionOutcome{Order: &models.Order{ID: id, Status: next}}, nil
}

func (f *fakeTransitioner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeReader hands out queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) committedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func (f *fakeReader) Close() error { return nil }

func TestKafkaConsumer_HandleMessage(t *testing.T) {
	tests := []struct {
		name  string
		value string
		calls int
	}{
		{"valid", `{"order_id":"ord_1","status":"preparing","actor_id":"kds_3","request_id":"req-1"}`, 1},
		{"cancel with reason", `{"order_id":"ord_1","status":"cancelled","reason":"out of noodles"}`, 1},
		{"unknown status", `{"order_id":"ord_1","status":"shipped"}`, 0},
		{"missing order", `{"status":"ready"}`, 0},
		{"not json", `{`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeTransitioner{}
			c := &KafkaConsumer{orders: orders, logger: logging.NewNopLogger()}

			c.handleMessage(context.Background(), kafka.Message{Value: []byte(tt.value)})

			assert.Len(t, orders.calls, tt.calls)
		})
	}
}

func TestKafkaConsumer_UsesSystemActor(t *testing.T) {
	orders := &fakeTransitioner{}
	c := &KafkaConsumer{orders: orders, logger: logging.NewNopLogger()}

	c.handleMessage(context.Background(), kafka.Message{Value: []byte(`{"order_id":"ord_1","status":"ready","request_id":"req-7"}`)})

	require.Len(t, orders.calls, 1)
	assert.Equal(t, models.SystemActor("kitchen"), orders.actor)
	assert.Equal(t, "req-7", orders.calls[0].RequestID)
}

func TestKafkaConsumer_RejectedCommandIsDropped(t *testing.T) {
	orders := &fakeTransitioner{err: &errors.IllegalTransitionError{From: "completed", To: "ready"}}
	c := &KafkaConsumer{orders: orders, logger: logging.NewNopLogger()}

	err := c.handleMessage(context.Background(), kafka.Message{Value: []byte(`{"order_id":"ord_1","status":"ready"}`)})
	assert.NoError(t, err)
	assert.Len(t, orders.calls, 1)
}

func TestKafkaConsumer_HandleMessage_ErrorClasses(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"illegal transition", &errors.IllegalTransitionError{From: "completed", To: "ready"}, false},
		{"missing reason", &errors.MissingReasonError{Status: "cancelled"}, false},
		{"not found", errors.NewNotFoundError("order", "ord_1"), false},
		{"conflict", &errors.ConflictError{OrderID: "ord_1", ExpectedStatus: "preparing"}, true},
		{"store down", stderrors.New("dial tcp 10.0.0.5:5432: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &KafkaConsumer{orders: &fakeTransitioner{err: tt.err}, logger: logging.NewNopLogger()}

			err := c.handleMessage(context.Background(), kafka.Message{Value: []byte(`{"order_id":"ord_1","status":"ready"}`)})

			if tt.retriable {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newTestConsumer(reader *fakeReader, orders *fakeTransitioner) *KafkaConsumer {
	return &KafkaConsumer{
		reader:       reader,
		orders:       orders,
		logger:       logging.NewNopLogger(),
		stopCh:       make(chan struct{}),
		retryBackoff: time.Millisecond,
	}
}

func TestKafkaConsumer_RetriesTransientFailuresBeforeCommitting(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 7, Value: []byte(`{"order_id":"ord_1","status":"preparing"}`)},
		{Offset: 8, Value: []byte(`{"order_id":"ord_2","status":"ready"}`)},
	}}
	orders := &fakeTransitioner{errs: []error{
		stderrors.New("connection refused"),
		stderrors.New("connection refused"),
	}}
	c := newTestConsumer(reader, orders)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{7, 8}, reader.committedOffsets())
	assert.Equal(t, 4, orders.callCount(), "two failures, then one success per message")
}

func TestKafkaConsumer_CommitsRejectedCommands(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 3, Value: []byte(`{"order_id":"ord_1","status":"ready"}`)},
		{Offset: 4, Value: []byte(`not json`)},
	}}
	orders := &fakeTransitioner{err: &errors.IllegalTransitionError{From: "completed", To: "ready"}}
	c := newTestConsumer(reader, orders)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{3, 4}, reader.committedOffsets())
	assert.Equal(t, 1, orders.callCount(), "rejected commands are not retried")
}

func TestKafkaConsumer_StopDuringRetryLeavesOffsetUncommitted(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 9, Value: []byte(`{"order_id":"ord_1","status":"ready"}`)},
	}}
	orders := &fakeTransitioner{err: stderrors.New("connection refused")}
	c := newTestConsumer(reader, orders)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	require.Eventually(t, func() bool { return orders.callCount() >= 2 }, time.Second, time.Millisecond)
	c.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Empty(t, reader.committedOffsets())
}
