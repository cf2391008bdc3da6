package repository

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/models"
)

func TestPostgresOrderRepository_Create(t *testing.T) {
	t.Skip("Integration test - requires database")
}

func TestPostgresOrderRepository_UpdateTransition(t *testing.T) {
	t.Skip("Integration test - requires database")
}

func TestPostgresOrderRepository_ListForRevenueRepair(t *testing.T) {
	t.Skip("Integration test - requires database")
}

func TestGenerateOrderID(t *testing.T) {
	id := generateOrderID()

	assert.True(t, strings.HasPrefix(id, "ord_"), "got %s", id)
	assert.Len(t, id, len("ord_")+36)
	assert.NotEqual(t, id, generateOrderID())
}

func TestBuildFilter(t *testing.T) {
	status := models.OrderStatusCompleted
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	tests := []struct {
		name   string
		filter models.OrderListFilter
		where  string
		args   int
	}{
		{"empty", models.OrderListFilter{}, "", 0},
		{"user", models.OrderListFilter{UserID: "u1"}, " WHERE user_id = $1", 1},
		{
			"cafeteria status and range",
			models.OrderListFilter{CafeteriaID: "caf_1", Status: &status, StartDate: &start, EndDate: &end},
			" WHERE cafeteria_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4",
			4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildFilter(&tt.filter)
			assert.Equal(t, tt.where, where)
			assert.Len(t, args, tt.args)
		})
	}
}

type fakeRow struct {
	values []interface{}
	err    error
}

func (f *fakeRow) Scan(dest ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.values[i].(string)
		case *models.OrderStatus:
			*p = models.OrderStatus(f.values[i].(string))
		case *[]byte:
			*p = []byte(f.values[i].(string))
		case *decimal.NullDecimal:
			if err := p.Scan(f.values[i]); err != nil {
				return err
			}
		case *time.Time:
			*p = f.values[i].(time.Time)
		default:
			if s, ok := d.(interface{ Scan(interface{}) error }); ok {
				if err := s.Scan(f.values[i]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func orderRow(subtotal interface{}, status string, items string) *fakeRow {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &fakeRow{values: []interface{}{
		"ord_1", "user_1", "caf_1", "student@campus.edu", items,
		subtotal, "4.00", "10.00", "14.00", "90.00", "104.00",
		status, nil, now, now, now, nil,
	}}
}

func TestScanOrder(t *testing.T) {
	order, err := scanOrder(orderRow("100.00", "completed", `[{"menu_item_id":"m1","name":"Ramen","quantity":2,"unit_price":"50"}]`))
	require.NoError(t, err)

	assert.Equal(t, "ord_1", order.ID)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.True(t, order.Subtotal.Valid)
	assert.True(t, order.Subtotal.Decimal.Equal(decimal.NewFromInt(100)))
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	require.NotNil(t, order.CompletedAt)
	assert.Nil(t, order.CancelledAt)
	assert.Equal(t, "student@campus.edu", order.CustomerEmail)
}

func TestScanOrder_NullSubtotalStaysNull(t *testing.T) {
	order, err := scanOrder(orderRow(nil, "pending", `[]`))
	require.NoError(t, err)
	assert.False(t, order.Subtotal.Valid)
}

func TestScanOrder_RejectsMalformedRows(t *testing.T) {
	_, err := scanOrder(orderRow("10", "shipped", `[]`))
	assert.Equal(t, errors.KindInvalidInput, errors.Kind(err))

	_, err = scanOrder(orderRow("10", "pending", `{not json`))
	assert.Equal(t, errors.KindInvalidInput, errors.Kind(err))
	assert.Equal(t, "items", errors.Field(err))
}

func TestScanOrder_PropagatesScanError(t *testing.T) {
	boom := stderrors.New("boom")
	_, err := scanOrder(&fakeRow{err: boom})
	assert.ErrorIs(t, err, boom)
}

func BenchmarkGenerateOrderID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		generateOrderID()
	}
}
