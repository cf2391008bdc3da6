package service

import (
	"context"
	stderrors "errors"
	"iter"
	"math"

	"github.com/shopspring/decimal"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/metrics"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/repository"
)

// RateSource supplies the fee policy currently in force.
type RateSource interface {
	Rates(ctx context.Context) (models.Rates, error)
}

// DefaultRates is the canonical policy: 4% service fee capped at 20, 10% commission.
func DefaultRates() models.Rates {
	return models.Rates{
		ServiceFeeRate: decimal.RequireFromString("0.04"),
		ServiceFeeCap:  decimal.NewFromInt(20),
		CommissionRate: decimal.RequireFromString("0.10"),
	}
}

// RatesFromConfig converts the configured defaults.
func RatesFromConfig(cfg config.RatesConfig) models.Rates {
	return models.Rates{
		ServiceFeeRate: cfg.ServiceFeeRate,
		ServiceFeeCap:  cfg.ServiceFeeCap,
		CommissionRate: cfg.CommissionRate,
	}
}

// ValidateRates checks that both rates lie in [0, 1] and the cap is not negative.
func ValidateRates(r models.Rates) error {
	one := decimal.NewFromInt(1)
	if r.ServiceFeeRate.IsNegative() || r.ServiceFeeRate.GreaterThan(one) {
		return errors.NewInvalidInputError("service_fee_rate", "must be between 0 and 1")
	}
	if r.ServiceFeeCap.IsNegative() {
		return errors.NewInvalidInputError("service_fee_cap", "must not be negative")
	}
	if r.CommissionRate.IsNegative() || r.CommissionRate.GreaterThan(one) {
		return errors.NewInvalidInputError("commission_rate", "must be between 0 and 1")
	}
	return nil
}

// MoneyFromFloat converts a float read from an untyped source, rejecting NaN and infinities.
func MoneyFromFloat(field string, v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, errors.NewInvalidInputError(field, "must be a finite number")
	}
	return decimal.NewFromFloat(v), nil
}

// ComputeFees derives every monetary field from subtotal.
// Service fee and commission are rounded to cents independently; the
// remaining fields are exact sums and differences so they always balance.
func ComputeFees(subtotal decimal.Decimal, rates models.Rates) (models.Fees, error) {
	if subtotal.IsNegative() {
		return models.Fees{}, errors.NewInvalidInputError("subtotal", "must not be negative")
	}

	serviceFee := decimal.Min(subtotal.Mul(rates.ServiceFeeRate), rates.ServiceFeeCap).Round(2)
	commission := subtotal.Mul(rates.CommissionRate).Round(2)

	return models.Fees{
		Subtotal:         subtotal,
		ServiceFee:       serviceFee,
		Commission:       commission,
		AdminRevenue:     serviceFee.Add(commission),
		CafeteriaRevenue: subtotal.Sub(commission),
		TotalAmount:      subtotal.Add(serviceFee),
	}, nil
}

// RecomputeForExistingOrder returns a copy of order with every monetary field
// re-derived from its subtotal. The input is left untouched.
func RecomputeForExistingOrder(order *models.Order, rates models.Rates) (*models.Order, error) {
	if !order.Subtotal.Valid {
		return nil, errors.NewInvalidInputError("subtotal", "missing on order "+order.ID)
	}

	fees, err := ComputeFees(order.Subtotal.Decimal, rates)
	if err != nil {
		return nil, err
	}

	updated := order.Clone()
	updated.ApplyFees(fees)
	return updated, nil
}

// NeedsRepair reports whether the stored fee columns are missing or disagree
// with what rates would produce today.
func NeedsRepair(order *models.Order, rates models.Rates) bool {
	if !order.Subtotal.Valid {
		return false
	}
	stored, ok := order.StoredFees()
	if !ok {
		return true
	}
	expected, err := ComputeFees(order.Subtotal.Decimal, rates)
	if err != nil {
		return false
	}
	return !stored.Equal(expected)
}

// Summarize aggregates revenue in a single pass over orders, skipping cancelled
// ones. Stored fee columns are used when complete; otherwise the fees are
// derived from the subtotal. Orders without a usable subtotal are listed in
// Unpriced instead of being counted.
func Summarize(orders iter.Seq[*models.Order], rates models.Rates) models.RevenueSummary {
	summary := models.RevenueSummary{
		TotalRevenue:     decimal.Zero,
		TotalCommission:  decimal.Zero,
		TotalServiceFees: decimal.Zero,
		AdminRevenue:     decimal.Zero,
		CafeteriaRevenue: decimal.Zero,
	}

	for order := range orders {
		if order == nil || order.Status == models.OrderStatusCancelled {
			continue
		}

		fees, ok := order.StoredFees()
		if !ok {
			var err error
			if !order.Subtotal.Valid {
				summary.Unpriced = append(summary.Unpriced, order.ID)
				continue
			}
			fees, err = ComputeFees(order.Subtotal.Decimal, rates)
			if err != nil {
				summary.Unpriced = append(summary.Unpriced, order.ID)
				continue
			}
		}

		summary.TotalOrders++
		summary.TotalRevenue = summary.TotalRevenue.Add(fees.TotalAmount)
		summary.TotalCommission = summary.TotalCommission.Add(fees.Commission)
		summary.TotalServiceFees = summary.TotalServiceFees.Add(fees.ServiceFee)
		summary.AdminRevenue = summary.AdminRevenue.Add(fees.AdminRevenue)
		summary.CafeteriaRevenue = summary.CafeteriaRevenue.Add(fees.CafeteriaRevenue)
	}

	return summary
}

// RevenueCalculator binds the pure fee functions to a rate source.
type RevenueCalculator struct {
	source   RateSource
	defaults models.Rates
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewRevenueCalculator creates a calculator. source may be nil, in which case
// defaults are always used.
func NewRevenueCalculator(source RateSource, defaults models.Rates, m *metrics.Metrics, logger *logging.Logger) *RevenueCalculator {
	return &RevenueCalculator{
		source:   source,
		defaults: defaults,
		metrics:  m,
		logger:   logger,
	}
}

// Rates returns the current policy. An unconfigured source means the defaults
// are in force; an unavailable source or an invalid policy also falls back to
// the defaults, with a warning.
func (c *RevenueCalculator) Rates(ctx context.Context) models.Rates {
	if c.source == nil {
		return c.defaults
	}

	rates, err := c.source.Rates(ctx)
	if stderrors.Is(err, repository.ErrRatesNotConfigured) {
		return c.defaults
	}
	if err == nil {
		err = ValidateRates(rates)
	}
	if err != nil {
		c.logger.Warn("Rate source unavailable, using default rates", logging.Fields{
			"error":            err.Error(),
			"service_fee_rate": c.defaults.ServiceFeeRate.String(),
			"service_fee_cap":  c.defaults.ServiceFeeCap.String(),
			"commission_rate":  c.defaults.CommissionRate.String(),
		})
		c.metrics.ObserveRateFallback()
		return c.defaults
	}

	return rates
}

func (c *RevenueCalculator) ComputeFees(ctx context.Context, subtotal decimal.Decimal) (models.Fees, error) {
	fees, err := ComputeFees(subtotal, c.Rates(ctx))
	if err != nil {
		c.metrics.ObserveFeeComputation("invalid")
		return models.Fees{}, err
	}
	c.metrics.ObserveFeeComputation("ok")
	return fees, nil
}

func (c *RevenueCalculator) RecomputeForExistingOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	return RecomputeForExistingOrder(order, c.Rates(ctx))
}

func (c *RevenueCalculator) Summarize(ctx context.Context, orders iter.Seq[*models.Order]) models.RevenueSummary {
	return Summarize(orders, c.Rates(ctx))
}
