package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/unieats/unieats-orders-service/internal/errors"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const orderColumns = `
	id, user_id, cafeteria_id, customer_email, items,
	subtotal, service_fee, commission, admin_revenue, cafeteria_revenue, total_amount,
	status, cancellation_reason, created_at, updated_at, completed_at, cancelled_at
`

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *logging.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an order by its unique identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.logger.Debug("Fetching order by ID", logging.Fields{"order_id": id})

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("order", id)
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, err
	}

	return order, nil
}

// Create inserts a new order. A duplicate ID is reported as a conflict.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.logger.Debug("Creating new order", logging.Fields{"user_id": order.UserID})

	if order.ID == "" {
		order.ID = generateOrderID()
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.CafeteriaID,
		nullString(order.CustomerEmail),
		itemsJSON,
		order.Subtotal,
		order.ServiceFee,
		order.Commission,
		order.AdminRevenue,
		order.CafeteriaRevenue,
		order.TotalAmount,
		order.Status,
		nullString(order.CancellationReason),
		order.CreatedAt,
		order.UpdatedAt,
		order.CompletedAt,
		order.CancelledAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
			return &errors.ConflictError{OrderID: order.ID, Message: "order " + order.ID + " already exists"}
		}
		r.logger.Error("Failed to create order", logging.Fields{
			"user_id": order.UserID,
			"error":   err.Error(),
		})
		return err
	}

	r.logger.Info("Order created", logging.Fields{
		"order_id":     order.ID,
		"cafeteria_id": order.CafeteriaID,
		"total":        order.TotalAmount.Decimal.String(),
	})

	return nil
}

// UpdateTransition writes a status change only if the row still has status
// expected, and records it in the status log. It returns the number of
// orders updated, so 0 means someone else changed the order first.
func (r *PostgresOrderRepository) UpdateTransition(ctx context.Context, order *models.Order, expected models.OrderStatus, actor models.Actor, reason string) (int64, error) {
	r.logger.Debug("Updating order status", logging.Fields{
		"order_id":   order.ID,
		"expected":   expected,
		"new_status": order.Status,
	})

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		UPDATE orders
		SET status = $3, updated_at = $4,
		    subtotal = $5, service_fee = $6, commission = $7,
		    admin_revenue = $8, cafeteria_revenue = $9, total_amount = $10,
		    completed_at = COALESCE($11, completed_at),
		    cancelled_at = COALESCE($12, cancelled_at),
		    cancellation_reason = COALESCE($13, cancellation_reason)
		WHERE id = $1 AND status = $2
	`

	result, err := tx.ExecContext(ctx, query,
		order.ID,
		expected,
		order.Status,
		order.UpdatedAt,
		order.Subtotal,
		order.ServiceFee,
		order.Commission,
		order.AdminRevenue,
		order.CafeteriaRevenue,
		order.TotalAmount,
		order.CompletedAt,
		order.CancelledAt,
		nullString(order.CancellationReason),
	)
	if err != nil {
		r.logger.Error("Failed to update order status", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rowsAffected == 0 {
		return 0, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, changed_by, changed_by_role, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, expected, order.Status, actor.ID, actor.Role, nullString(reason), order.UpdatedAt)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	r.logger.Info("Order status updated", logging.Fields{
		"order_id":   order.ID,
		"old_status": expected,
		"new_status": order.Status,
		"actor":      actor.ID,
	})

	return rowsAffected, nil
}

// UpdateRevenue overwrites the monetary columns of an order whose status has
// not changed since it was read. Cancelled orders are never touched.
func (r *PostgresOrderRepository) UpdateRevenue(ctx context.Context, order *models.Order) (int64, error) {
	query := `
		UPDATE orders
		SET service_fee = $3, commission = $4, admin_revenue = $5,
		    cafeteria_revenue = $6, total_amount = $7, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND status <> 'cancelled'
	`

	result, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.Status,
		order.ServiceFee,
		order.Commission,
		order.AdminRevenue,
		order.CafeteriaRevenue,
		order.TotalAmount,
	)
	if err != nil {
		r.logger.Error("Failed to update order revenue", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return 0, err
	}

	return result.RowsAffected()
}

// List retrieves orders based on filter criteria. A zero limit returns every
// matching row.
func (r *PostgresOrderRepository) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	r.logger.Debug("Listing orders", logging.Fields{
		"user_id":      filter.UserID,
		"cafeteria_id": filter.CafeteriaID,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})

	where, args := buildFilter(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + orderColumns + " FROM orders" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ListForRevenueRepair pages through non-cancelled orders by ID.
func (r *PostgresOrderRepository) ListForRevenueRepair(ctx context.Context, afterID string, limit int) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status <> 'cancelled' AND id > $1
		ORDER BY id
		LIMIT $2
	`
	return r.queryOrders(ctx, query, afterID, limit)
}

func (r *PostgresOrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

func buildFilter(filter *models.OrderListFilter) (string, []interface{}) {
	conds := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.CafeteriaID != "" {
		add("cafeteria_id = $%d", filter.CafeteriaID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.StartDate != nil {
		add("created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("created_at < $%d", *filter.EndDate)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var itemsJSON []byte
	var email, reason sql.NullString
	var completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.CafeteriaID,
		&email,
		&itemsJSON,
		&order.Subtotal,
		&order.ServiceFee,
		&order.Commission,
		&order.AdminRevenue,
		&order.CafeteriaRevenue,
		&order.TotalAmount,
		&order.Status,
		&reason,
		&order.CreatedAt,
		&order.UpdatedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, errors.NewInvalidInputError("items", "stored line items are malformed on order "+order.ID)
		}
	}
	if !order.Status.IsValid() {
		return nil, errors.NewInvalidInputError("status", fmt.Sprintf("unknown stored status %q on order %s", order.Status, order.ID))
	}

	order.CustomerEmail = email.String
	order.CancellationReason = reason.String
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = &cancelledAt.Time
	}

	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func generateOrderID() string {
	return "ord_" + uuid.NewString()
}
