package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const (
	maxListLimit     = 100
	defaultListLimit = 20
	maxReasonLength  = 500
)

// RegisterValidators adds the order_status tag to gin's binding validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return models.OrderStatus(fl.Field().String()).IsValid()
	})
}

// ValidateCreateOrderRequest validates an order creation request.
func ValidateCreateOrderRequest(req *models.CreateOrderRequest) error {
	if req.UserID == "" {
		return errors.NewValidationError("user_id", "user ID is required")
	}

	if req.CafeteriaID == "" {
		return errors.NewValidationError("cafeteria_id", "cafeteria ID is required")
	}

	if len(req.Items) == 0 {
		return errors.NewValidationError("items", "at least one item is required")
	}

	for i := range req.Items {
		if err := validateLineItem(&req.Items[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateLineItem(item *models.LineItemRequest) error {
	if item.MenuItemID == "" {
		return errors.NewValidationError("items", "menu item ID is required for item")
	}

	if item.Quantity <= 0 {
		return errors.NewValidationError("items", "quantity must be positive")
	}

	if item.UnitPrice.IsNegative() {
		return errors.NewInvalidInputError("unit_price", "must not be negative")
	}

	if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
		return errors.NewInvalidInputError("unit_price", "must not have more than two decimal places")
	}

	return nil
}

// ValidateOrderListFilter validates a list filter and applies the page limits.
func ValidateOrderListFilter(filter *models.OrderListFilter) error {
	if filter.Limit < 0 {
		return errors.NewValidationError("limit", "limit cannot be negative")
	}

	if filter.Offset < 0 {
		return errors.NewValidationError("offset", "offset cannot be negative")
	}

	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	return validateDateRange(filter)
}

func validateDateRange(filter *models.OrderListFilter) error {
	if filter.StartDate != nil && filter.EndDate != nil {
		if filter.StartDate.After(*filter.EndDate) {
			return errors.NewValidationError("start_date", "start date cannot be after end date")
		}
	}
	return nil
}

// SanitizeReason trims a free-text reason, drops control characters and
// bounds it to maxReasonLength characters. Markup is left alone: it is
// escaped by whatever renders the reason.
func SanitizeReason(reason string) string {
	reason = strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, reason)
	reason = strings.TrimSpace(reason)

	if utf8.RuneCountInString(reason) > maxReasonLength {
		reason = strings.TrimSpace(string([]rune(reason)[:maxReasonLength]))
	}

	return reason
}
