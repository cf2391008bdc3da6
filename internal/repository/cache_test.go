package repository

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/models"
)

// fakeRedis implements the handful of commands the cache and rate source use.
// Any other command panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	strings map[string]string
	hashes  map[string]map[string]string
	err     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.strings[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.strings[k]; ok {
			delete(f.strings, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	return redis.NewMapStringStringResult(f.hashes[key], nil)
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), f.err)
}

func TestRedisOrderCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewRedisOrderCache(newFakeRedis(), 0, logging.NewNopLogger())

	miss, err := cache.Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	order := &models.Order{ID: "ord_1", UserID: "user_1", Status: models.OrderStatusPending}
	order.ApplyFees(models.Fees{
		Subtotal:         decimal.NewFromInt(100),
		ServiceFee:       decimal.NewFromInt(4),
		Commission:       decimal.NewFromInt(10),
		AdminRevenue:     decimal.NewFromInt(14),
		CafeteriaRevenue: decimal.NewFromInt(90),
		TotalAmount:      decimal.NewFromInt(104),
	})
	require.NoError(t, cache.Set(ctx, order))

	got, err := cache.Get(ctx, "ord_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalAmount.Valid)
	assert.True(t, got.TotalAmount.Decimal.Equal(decimal.NewFromInt(104)))

	require.NoError(t, cache.Delete(ctx, "ord_1"))
	got, err = cache.Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisOrderCache_UserOrders(t *testing.T) {
	ctx := context.Background()
	cache := NewRedisOrderCache(newFakeRedis(), time.Minute, logging.NewNopLogger())

	orders := []*models.Order{{ID: "ord_1", UserID: "user_1"}, {ID: "ord_2", UserID: "user_1"}}
	require.NoError(t, cache.SetByUserID(ctx, "user_1", orders))

	got, err := cache.GetByUserID(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, cache.InvalidateByUserID(ctx, "user_1"))
	got, err = cache.GetByUserID(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisOrderCache_Error(t *testing.T) {
	fake := newFakeRedis()
	fake.err = stderrors.New("connection refused")
	cache := NewRedisOrderCache(fake, 0, logging.NewNopLogger())

	_, err := cache.Get(context.Background(), "ord_1")
	assert.Error(t, err)
}

func TestRedisRateSource(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	source := NewRedisRateSource(fake, "unieats:rates")

	_, err := source.Rates(ctx)
	assert.ErrorIs(t, err, ErrRatesNotConfigured)

	want := models.Rates{
		ServiceFeeRate: decimal.RequireFromString("0.05"),
		ServiceFeeCap:  decimal.NewFromInt(15),
		CommissionRate: decimal.RequireFromString("0.12"),
	}
	require.NoError(t, source.SetRates(ctx, want))

	got, err := source.Rates(ctx)
	require.NoError(t, err)
	assert.True(t, got.ServiceFeeRate.Equal(want.ServiceFeeRate))
	assert.True(t, got.ServiceFeeCap.Equal(want.ServiceFeeCap))
	assert.True(t, got.CommissionRate.Equal(want.CommissionRate))
}

func TestRedisRateSource_Malformed(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.hashes["unieats:rates"] = map[string]string{
		"service_fee_rate": "0.04",
		"service_fee_cap":  "twenty",
		"commission_rate":  "0.10",
	}

	_, err := NewRedisRateSource(fake, "unieats:rates").Rates(ctx)
	assert.ErrorContains(t, err, "service_fee_cap")

	delete(fake.hashes["unieats:rates"], "service_fee_cap")
	_, err = NewRedisRateSource(fake, "unieats:rates").Rates(ctx)
	assert.ErrorContains(t, err, "missing field service_fee_cap")
}

func TestRedisRateSource_Unavailable(t *testing.T) {
	fake := newFakeRedis()
	fake.err = stderrors.New("dial tcp: connection refused")

	_, err := NewRedisRateSource(fake, "unieats:rates").Rates(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}
