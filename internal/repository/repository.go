package repository

import (
	"context"

	"github.com/unieats/unieats-orders-service/internal/models"
)

// Ensure the concrete types satisfy the interfaces the service depends on.
var (
	_ OrderRepository = (*PostgresOrderRepository)(nil)
	_ OrderCache      = (*RedisOrderCache)(nil)
)

// OrderRepository is the order store. Writes that change status are
// conditional on the status the caller last saw and report the affected row
// count so that lost updates can be detected.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error)
	UpdateTransition(ctx context.Context, order *models.Order, expected models.OrderStatus, actor models.Actor, reason string) (int64, error)
	UpdateRevenue(ctx context.Context, order *models.Order) (int64, error)
	ListForRevenueRepair(ctx context.Context, afterID string, limit int) ([]*models.Order, error)
}

// OrderCache defines caching operations for orders.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
	GetByUserID(ctx context.Context, userID string) ([]*models.Order, error)
	SetByUserID(ctx context.Context, userID string, orders []*models.Order) error
	InvalidateByUserID(ctx context.Context, userID string) error
}
