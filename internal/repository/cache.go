package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const (
	orderKeyPrefix   = "order:"
	userOrdersPrefix = "user_orders:"
	defaultCacheTTL  = 5 * time.Minute
)

// NewRedisClient builds the shared client used by the cache and the rate source.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisOrderCache implements OrderCache using Redis.
type RedisOrderCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisOrderCache creates a new Redis-based order cache.
func NewRedisOrderCache(client redis.Cmdable, ttl time.Duration, logger *logging.Logger) *RedisOrderCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}

	return &RedisOrderCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get retrieves an order from cache. A miss returns nil, nil.
func (c *RedisOrderCache) Get(ctx context.Context, id string) (*models.Order, error) {
	data, err := c.client.Get(ctx, orderKeyPrefix+id).Bytes()
	if err == redis.Nil {
		c.logger.Debug("Cache miss", logging.Fields{"order_id": id})
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Cache get error", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}

	c.logger.Debug("Cache hit", logging.Fields{"order_id": id})
	return &order, nil
}

// Set stores an order in cache.
func (c *RedisOrderCache) Set(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, orderKeyPrefix+order.ID, data, c.ttl).Err(); err != nil {
		c.logger.Error("Cache set error", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return err
	}

	return nil
}

// Delete removes an order from cache.
func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, orderKeyPrefix+id).Err(); err != nil {
		c.logger.Error("Cache delete error", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return err
	}
	return nil
}

// GetByUserID retrieves cached orders for a user.
func (c *RedisOrderCache) GetByUserID(ctx context.Context, userID string) ([]*models.Order, error) {
	data, err := c.client.Get(ctx, userOrdersPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var orders []*models.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// SetByUserID caches the first page of a user's orders.
func (c *RedisOrderCache) SetByUserID(ctx context.Context, userID string, orders []*models.Order) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, userOrdersPrefix+userID, data, c.ttl).Err()
}

// InvalidateByUserID removes cached orders for a user.
func (c *RedisOrderCache) InvalidateByUserID(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userOrdersPrefix+userID).Err()
}
