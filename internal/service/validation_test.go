package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
)

func TestSanitizeReason(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{"trims", "  out of noodles \n", "out of noodles"},
		{"keeps markup for the renderer", "<b>kitchen</b> closed", "<b>kitchen</b> closed"},
		{"drops control characters", "out\x00 of\x07 rice", "out of rice"},
		{"keeps inner newlines", "line one\nline two", "line one\nline two"},
		{"short multibyte", "закрыто на обед", "закрыто на обед"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeReason(tt.reason))
		})
	}
}

func TestSanitizeReason_TruncatesOnCharacterBoundary(t *testing.T) {
	tests := []struct {
		name   string
		reason string
	}{
		{"euro signs", strings.Repeat("€", maxReasonLength+100)},
		{"mixed widths", strings.Repeat("a€😀", maxReasonLength)},
		{"ascii", strings.Repeat("x", maxReasonLength*2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeReason(tt.reason)

			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, maxReasonLength, utf8.RuneCountInString(got))
			assert.True(t, strings.HasPrefix(tt.reason, got))
		})
	}

	fits := strings.Repeat("€", 200)
	assert.Equal(t, fits, SanitizeReason(fits), "600 bytes but only 200 characters")
}

func TestValidateCreateOrderRequest_UnitPrice(t *testing.T) {
	tests := []struct {
		name    string
		price   string
		wantErr bool
	}{
		{"whole", "250", false},
		{"cents", "12.50", false},
		{"trailing zeros", "3.500", false},
		{"zero", "0", false},
		{"sub-cent", "9.999", true},
		{"negative", "-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreateOrderRequest(&models.CreateOrderRequest{
				UserID:      "user_1",
				CafeteriaID: "caf_1",
				Items: []models.LineItemRequest{
					{MenuItemID: "m1", Name: "Ramen", Quantity: 1, UnitPrice: dec(tt.price)},
				},
			})

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, errors.KindInvalidInput, errors.Kind(err))
			assert.Equal(t, "unit_price", errors.Field(err))
		})
	}
}
