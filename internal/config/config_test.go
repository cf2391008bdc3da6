package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.True(t, cfg.Rates.ServiceFeeRate.Equal(decimal.RequireFromString("0.04")))
	assert.True(t, cfg.Rates.ServiceFeeCap.Equal(decimal.NewFromInt(20)))
	assert.True(t, cfg.Rates.CommissionRate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "kafka", cfg.Events.Broker)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.RevenueRepairSpec)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("RATES_SERVICE_FEE_RATE", "0.05")
	t.Setenv("RATES_SERVICE_FEE_CAP", "15")
	t.Setenv("RATES_COMMISSION_RATE", "0.12")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("REDIS_CACHE_TTL", "60")
	t.Setenv("FEATURE_ENABLE_AUTH", "false")

	cfg := Load()

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Rates.ServiceFeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, cfg.Rates.ServiceFeeCap.Equal(decimal.NewFromInt(15)))
	assert.True(t, cfg.Rates.CommissionRate.Equal(decimal.RequireFromString("0.12")))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.Features.EnableAuth)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("RATES_COMMISSION_RATE", "ten percent")
	t.Setenv("FEATURE_ENABLE_ORDER_EVENTS", "maybe")

	cfg := Load()

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.True(t, cfg.Rates.CommissionRate.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, cfg.Features.EnableOrderEvents)
}

func TestDatabaseConfig_Strings(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "orders", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=orders sslmode=disable", d.ConnectionString())
	assert.Equal(t, "postgres://u:p@db:5432/orders?sslmode=disable", d.MigrationURL())
}
