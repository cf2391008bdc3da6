package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const (
	fieldServiceFeeRate = "service_fee_rate"
	fieldServiceFeeCap  = "service_fee_cap"
	fieldCommissionRate = "commission_rate"
)

// ErrRatesNotConfigured is returned when the rates hash does not exist.
var ErrRatesNotConfigured = fmt.Errorf("rates not configured")

// RedisRateSource reads the fee policy from a Redis hash so that rates can be
// changed at runtime without a deploy.
type RedisRateSource struct {
	client redis.Cmdable
	key    string
}

func NewRedisRateSource(client redis.Cmdable, key string) *RedisRateSource {
	return &RedisRateSource{client: client, key: key}
}

// Rates returns the stored policy. Every field must be present and parse.
func (s *RedisRateSource) Rates(ctx context.Context) (models.Rates, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return models.Rates{}, fmt.Errorf("read rates %s: %w", s.key, err)
	}
	if len(values) == 0 {
		return models.Rates{}, ErrRatesNotConfigured
	}

	var rates models.Rates
	for field, dst := range map[string]*decimal.Decimal{
		fieldServiceFeeRate: &rates.ServiceFeeRate,
		fieldServiceFeeCap:  &rates.ServiceFeeCap,
		fieldCommissionRate: &rates.CommissionRate,
	} {
		raw, ok := values[field]
		if !ok {
			return models.Rates{}, fmt.Errorf("rates %s: missing field %s", s.key, field)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return models.Rates{}, fmt.Errorf("rates %s: field %s: %w", s.key, field, err)
		}
		*dst = d
	}

	return rates, nil
}

// SetRates replaces the stored policy.
func (s *RedisRateSource) SetRates(ctx context.Context, rates models.Rates) error {
	return s.client.HSet(ctx, s.key,
		fieldServiceFeeRate, rates.ServiceFeeRate.String(),
		fieldServiceFeeCap, rates.ServiceFeeCap.String(),
		fieldCommissionRate, rates.CommissionRate.String(),
	).Err()
}
