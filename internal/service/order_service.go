package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/metrics"
	"github.com/unieats/unieats-orders-service/internal/models"
	"github.com/unieats/unieats-orders-service/internal/repository"
)

// EventSink receives committed order events. Failures come back as warnings
// and never undo the write that produced the event.
type EventSink interface {
	Dispatch(ctx context.Context, event *models.TransitionEvent) []models.Warning
	OrderCreated(ctx context.Context, order *models.Order) []models.Warning
}

// RateStore is a RateSource that can also be updated at runtime.
type RateStore interface {
	RateSource
	SetRates(ctx context.Context, rates models.Rates) error
}

// TransitionOutcome is what a caller sees after a status change request.
type TransitionOutcome struct {
	Order    *models.Order      `json:"order"`
	Previous models.OrderStatus `json:"previous_status"`
	NoOp     bool               `json:"no_op"`
	Warnings []models.Warning   `json:"warnings,omitempty"`
}

// OrderService handles order business logic.
type OrderService struct {
	orderRepo  repository.OrderRepository
	orderCache repository.OrderCache
	calculator *RevenueCalculator
	lifecycle  *Lifecycle
	events     EventSink
	rateStore  RateStore
	metrics    *metrics.Metrics
	config     *config.Config
	logger     *logging.Logger
	now        func() time.Time
}

// NewOrderService creates a new order service. orderCache, events and
// rateStore may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	calculator *RevenueCalculator,
	lifecycle *Lifecycle,
	events EventSink,
	rateStore RateStore,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *logging.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		orderCache: orderCache,
		calculator: calculator,
		lifecycle:  lifecycle,
		events:     events,
		rateStore:  rateStore,
		metrics:    m,
		config:     cfg,
		logger:     logger,
		now:        lifecycle.now,
	}
}

func (s *OrderService) cachingEnabled() bool {
	return s.orderCache != nil && s.config.Features.EnableOrderCaching
}

// CreateOrder prices and stores a new pending order.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	s.logger.Info("Creating order", logging.Fields{
		"user_id":      req.UserID,
		"cafeteria_id": req.CafeteriaID,
		"item_count":   len(req.Items),
	})

	if err := ValidateCreateOrderRequest(req); err != nil {
		return nil, err
	}

	items := make([]models.LineItem, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		items[i] = models.LineItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		}
		subtotal = subtotal.Add(items[i].Total())
	}

	fees, err := s.calculator.ComputeFees(ctx, subtotal)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		UserID:        req.UserID,
		CafeteriaID:   req.CafeteriaID,
		CustomerEmail: req.CustomerEmail,
		Items:         items,
		Status:        models.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.ApplyFees(fees)

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("Failed to create order", logging.Fields{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return nil, err
	}

	if s.cachingEnabled() {
		if err := s.orderCache.Set(ctx, order); err != nil {
			s.logger.Warn("Failed to cache order", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
		s.invalidateUserOrders(ctx, order.UserID)
	}

	if s.events != nil {
		// Warnings are already logged by the sink.
		s.events.OrderCreated(ctx, order)
	}

	s.logger.Info("Order created successfully", logging.Fields{
		"order_id": order.ID,
		"total":    fees.TotalAmount.String(),
	})

	return order, nil
}

// GetOrder retrieves an order by ID, from the cache when possible.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.logger.Debug("Getting order", logging.Fields{"order_id": id})

	if s.cachingEnabled() {
		if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
			return order, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cachingEnabled() {
		if err := s.orderCache.Set(ctx, order); err != nil {
			s.logger.Warn("Failed to cache order", logging.Fields{
				"order_id": id,
				"error":    err.Error(),
			})
		}
	}

	return order, nil
}

// ListOrders retrieves one page of orders. The first page of a plain per-user
// listing is served from the cache.
func (s *OrderService) ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	if err := ValidateOrderListFilter(filter); err != nil {
		return nil, 0, err
	}

	s.logger.Debug("Listing orders", logging.Fields{
		"user_id":      filter.UserID,
		"cafeteria_id": filter.CafeteriaID,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})

	userPage := s.cachingEnabled() && isFirstUserPage(filter)
	if userPage {
		// Only complete listings are cached, so the cached slice is every
		// order the user has.
		if orders, err := s.orderCache.GetByUserID(ctx, filter.UserID); err == nil && orders != nil {
			total := len(orders)
			if total > filter.Limit {
				orders = orders[:filter.Limit]
			}
			return orders, total, nil
		}
	}

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if userPage && total <= filter.Limit {
		if err := s.orderCache.SetByUserID(ctx, filter.UserID, orders); err != nil {
			s.logger.Warn("Failed to cache user orders", logging.Fields{
				"user_id": filter.UserID,
				"error":   err.Error(),
			})
		}
	}

	return orders, total, nil
}

func isFirstUserPage(filter *models.OrderListFilter) bool {
	return filter.UserID != "" && filter.CafeteriaID == "" && filter.Status == nil &&
		filter.StartDate == nil && filter.EndDate == nil && filter.Offset == 0
}

// TransitionOrder moves an order to next on behalf of actor. The write is
// conditional on the status that was read; if another writer got there first
// the call fails with a ConflictError and nothing is retried. Side effects run
// only after the write is committed and their failures are returned as
// warnings.
func (s *OrderService) TransitionOrder(ctx context.Context, id string, next models.OrderStatus, actor models.Actor, reason string) (*TransitionOutcome, error) {
	s.logger.Info("Transitioning order", logging.Fields{
		"order_id":   id,
		"new_status": next,
		"actor_id":   actor.ID,
		"actor_role": actor.Role,
	})

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.lifecycle.ApplyTransition(order, next, actor, SanitizeReason(reason))
	if err != nil {
		s.metrics.ObserveTransition(string(order.Status), string(next), "rejected")
		return nil, err
	}

	if result.NoOp {
		s.metrics.ObserveTransition(string(order.Status), string(next), "noop")
		return &TransitionOutcome{Order: order, Previous: result.Previous, NoOp: true}, nil
	}

	var warnings []models.Warning
	updated := result.Order
	if result.SideEffects.RecomputeRevenue {
		recomputed, err := s.calculator.RecomputeForExistingOrder(ctx, updated)
		if err != nil {
			s.logger.Warn("Could not recompute revenue on confirmation", logging.Fields{
				"order_id": id,
				"error":    err.Error(),
			})
			warnings = append(warnings, models.Warning{Effect: "recompute_revenue", Message: err.Error()})
		} else {
			updated = recomputed
		}
	}

	rows, err := s.orderRepo.UpdateTransition(ctx, updated, result.Previous, actor, result.Reason)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		s.metrics.ObserveTransition(string(result.Previous), string(next), "conflict")
		return nil, &errors.ConflictError{OrderID: id, ExpectedStatus: string(result.Previous)}
	}
	s.metrics.ObserveTransition(string(result.Previous), string(next), "applied")

	if s.cachingEnabled() {
		if err := s.orderCache.Delete(ctx, id); err != nil {
			s.logger.Warn("Failed to invalidate cached order", logging.Fields{
				"order_id": id,
				"error":    err.Error(),
			})
		}
		s.invalidateUserOrders(ctx, updated.UserID)
	}

	if s.events != nil {
		warnings = append(warnings, s.events.Dispatch(ctx, newTransitionEvent(result, updated))...)
	}

	return &TransitionOutcome{
		Order:    updated,
		Previous: result.Previous,
		Warnings: warnings,
	}, nil
}

func newTransitionEvent(result *TransitionResult, order *models.Order) *models.TransitionEvent {
	occurredAt := order.UpdatedAt
	if result.StampedAt != nil {
		occurredAt = *result.StampedAt
	}

	return &models.TransitionEvent{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		CafeteriaID:   order.CafeteriaID,
		CustomerEmail: order.CustomerEmail,
		Items:         order.Items,
		Previous:      result.Previous,
		Next:          result.Next,
		Actor:         result.Actor,
		Reason:        result.Reason,
		SideEffects:   result.SideEffects,
		OccurredAt:    occurredAt,
	}
}

// CancelOrder cancels an order. A reason is required.
func (s *OrderService) CancelOrder(ctx context.Context, id string, actor models.Actor, reason string) (*TransitionOutcome, error) {
	return s.TransitionOrder(ctx, id, models.OrderStatusCancelled, actor, reason)
}

// RevenueSummary aggregates revenue over every order matching filter,
// ignoring its paging fields.
func (s *OrderService) RevenueSummary(ctx context.Context, filter models.OrderListFilter) (models.RevenueSummary, error) {
	filter.Limit = 0
	filter.Offset = 0
	if err := validateDateRange(&filter); err != nil {
		return models.RevenueSummary{}, err
	}

	orders, _, err := s.orderRepo.List(ctx, &filter)
	if err != nil {
		return models.RevenueSummary{}, err
	}

	summary := s.calculator.Summarize(ctx, slices.Values(orders))
	if len(summary.Unpriced) > 0 {
		s.logger.Warn("Orders without a subtotal left out of revenue summary", logging.Fields{
			"cafeteria_id": filter.CafeteriaID,
			"order_ids":    summary.Unpriced,
		})
	}

	return summary, nil
}

// QuoteFees prices a subtotal under the rates currently in force.
func (s *OrderService) QuoteFees(ctx context.Context, subtotal decimal.Decimal) (models.Fees, error) {
	return s.calculator.ComputeFees(ctx, subtotal)
}

// Rates returns the rates currently in force.
func (s *OrderService) Rates(ctx context.Context) models.Rates {
	return s.calculator.Rates(ctx)
}

// UpdateRates stores a new fee policy. Existing orders keep their stored fees
// until they are repaired.
func (s *OrderService) UpdateRates(ctx context.Context, actor models.Actor, rates models.Rates) error {
	if s.rateStore == nil {
		return errors.NewValidationError("rates", "runtime rate updates are not configured")
	}
	if err := ValidateRates(rates); err != nil {
		return err
	}
	if err := s.rateStore.SetRates(ctx, rates); err != nil {
		return err
	}

	s.logger.Info("Rates updated", logging.Fields{
		"actor_id":         actor.ID,
		"service_fee_rate": rates.ServiceFeeRate.String(),
		"service_fee_cap":  rates.ServiceFeeCap.String(),
		"commission_rate":  rates.CommissionRate.String(),
	})
	return nil
}

// RepairRevenue walks every non-cancelled order in pages of batchSize and
// rewrites the monetary columns of those whose stored values are missing or
// disagree with the current rates. Each order is written on its own, so one
// failure does not stop the run. This is the only path that may change the
// money of a completed order.
func (s *OrderService) RepairRevenue(ctx context.Context, batchSize int) (*models.RepairReport, error) {
	if batchSize <= 0 {
		batchSize = s.config.Scheduler.RevenueRepairBatch
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	rates := s.calculator.Rates(ctx)
	report := &models.RepairReport{}
	afterID := ""

	for {
		orders, err := s.orderRepo.ListForRevenueRepair(ctx, afterID, batchSize)
		if err != nil {
			return report, err
		}

		for _, order := range orders {
			report.Scanned++
			afterID = order.ID
			if !NeedsRepair(order, rates) {
				continue
			}

			if err := s.repairOne(ctx, order, rates); err != nil {
				s.logger.Warn("Revenue repair failed", logging.Fields{
					"order_id": order.ID,
					"error":    err.Error(),
				})
				s.metrics.ObserveRevenueRepair("failed")
				report.Failed = append(report.Failed, order.ID)
				continue
			}
			s.metrics.ObserveRevenueRepair("repaired")
			report.Repaired++
		}

		if len(orders) < batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	s.logger.Info("Revenue repair finished", logging.Fields{
		"scanned":  report.Scanned,
		"repaired": report.Repaired,
		"failed":   len(report.Failed),
	})

	return report, nil
}

func (s *OrderService) repairOne(ctx context.Context, order *models.Order, rates models.Rates) error {
	repaired, err := RecomputeForExistingOrder(order, rates)
	if err != nil {
		return err
	}

	rows, err := s.orderRepo.UpdateRevenue(ctx, repaired)
	if err != nil {
		return err
	}
	if rows == 0 {
		return &errors.ConflictError{OrderID: order.ID, ExpectedStatus: string(order.Status)}
	}

	if s.cachingEnabled() {
		if err := s.orderCache.Delete(ctx, order.ID); err != nil {
			s.logger.Warn("Failed to invalidate cached order", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
		s.invalidateUserOrders(ctx, order.UserID)
	}
	return nil
}

func (s *OrderService) invalidateUserOrders(ctx context.Context, userID string) {
	if err := s.orderCache.InvalidateByUserID(ctx, userID); err != nil {
		s.logger.Warn("Failed to invalidate cached user orders", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
