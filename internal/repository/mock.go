package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
)

var (
	_ OrderRepository = (*MockOrderRepository)(nil)
	_ OrderCache      = (*MockOrderCache)(nil)
)

// StatusLogEntry is one row the mock would have written to order_status_log.
type StatusLogEntry struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
	Actor   models.Actor
	Reason  string
}

// MockOrderRepository is an in-memory OrderRepository for tests. It applies
// the same conditional-update rules as the Postgres implementation.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	Log    []StatusLogEntry

	// BeforeUpdate, if set, runs inside UpdateTransition before the status
	// check. Tests use it to simulate a concurrent writer.
	BeforeUpdate func(id string)
	Err          error
}

func NewMockOrderRepository(orders ...*models.Order) *MockOrderRepository {
	m := &MockOrderRepository{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o.Clone()
	}
	return m
}

func (m *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if order.ID == "" {
		order.ID = "ord_" + uuid.NewString()
	}
	if _, ok := m.orders[order.ID]; ok {
		return &errors.ConflictError{OrderID: order.ID, Message: "order " + order.ID + " already exists"}
	}
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.NewNotFoundError("order", id)
	}
	return o.Clone(), nil
}

func (m *MockOrderRepository) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}

	var matched []*models.Order
	for _, o := range m.orders {
		if matches(o, filter) {
			matched = append(matched, o.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	if filter.Offset >= len(matched) {
		return []*models.Order{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func matches(o *models.Order, f *models.OrderListFilter) bool {
	switch {
	case f.UserID != "" && o.UserID != f.UserID:
		return false
	case f.CafeteriaID != "" && o.CafeteriaID != f.CafeteriaID:
		return false
	case f.Status != nil && o.Status != *f.Status:
		return false
	case f.StartDate != nil && o.CreatedAt.Before(*f.StartDate):
		return false
	case f.EndDate != nil && !o.CreatedAt.Before(*f.EndDate):
		return false
	}
	return true
}

func (m *MockOrderRepository) UpdateTransition(ctx context.Context, order *models.Order, expected models.OrderStatus, actor models.Actor, reason string) (int64, error) {
	if m.BeforeUpdate != nil {
		m.BeforeUpdate(order.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	current, ok := m.orders[order.ID]
	if !ok || current.Status != expected {
		return 0, nil
	}
	m.orders[order.ID] = order.Clone()
	m.Log = append(m.Log, StatusLogEntry{OrderID: order.ID, From: expected, To: order.Status, Actor: actor, Reason: reason})
	return 1, nil
}

func (m *MockOrderRepository) UpdateRevenue(ctx context.Context, order *models.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	current, ok := m.orders[order.ID]
	if !ok || current.Status != order.Status || current.Status == models.OrderStatusCancelled {
		return 0, nil
	}
	updated := current.Clone()
	updated.ServiceFee = order.ServiceFee
	updated.Commission = order.Commission
	updated.AdminRevenue = order.AdminRevenue
	updated.CafeteriaRevenue = order.CafeteriaRevenue
	updated.TotalAmount = order.TotalAmount
	m.orders[order.ID] = updated
	return 1, nil
}

func (m *MockOrderRepository) ListForRevenueRepair(ctx context.Context, afterID string, limit int) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []*models.Order
	for _, o := range m.orders {
		if o.Status != models.OrderStatusCancelled && o.ID > afterID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus changes a stored order behind the service's back.
func (m *MockOrderRepository) SetStatus(id string, status models.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
}

// MockOrderCache is an in-memory OrderCache for tests.
type MockOrderCache struct {
	mu         sync.Mutex
	orders     map[string]*models.Order
	userOrders map[string][]*models.Order
}

func NewMockOrderCache() *MockOrderCache {
	return &MockOrderCache{
		orders:     make(map[string]*models.Order),
		userOrders: make(map[string][]*models.Order),
	}
}

func (c *MockOrderCache) Get(ctx context.Context, id string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.orders[id]; ok {
		return o.Clone(), nil
	}
	return nil, nil
}

func (c *MockOrderCache) Set(ctx context.Context, order *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[order.ID] = order.Clone()
	return nil
}

func (c *MockOrderCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
	return nil
}

func (c *MockOrderCache) GetByUserID(ctx context.Context, userID string) ([]*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userOrders[userID], nil
}

func (c *MockOrderCache) SetByUserID(ctx context.Context, userID string, orders []*models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userOrders[userID] = orders
	return nil
}

func (c *MockOrderCache) InvalidateByUserID(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.userOrders, userID)
	return nil
}
