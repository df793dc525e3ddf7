package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"go.uber.org/zap"
)

// OrderRepository implements port.OrderFeed over the locally synced copy of
// the marketplace order feed.
type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order feed adapter.
func NewOrderRepository(db *sql.DB, logger *zap.Logger) port.OrderFeed {
	return &OrderRepository{db: db, logger: logger}
}

// GetOrder returns one order by id.
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	query := `
		SELECT id, supplier_id, restaurant_id, order_number, items_json, ordered_at
		FROM orders
		WHERE id = ?
	`

	var order entity.Order
	var itemsJSON string
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID,
		&order.SupplierID,
		&order.RestaurantID,
		&order.OrderNumber,
		&itemsJSON,
		&order.OrderedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if err := json.Unmarshal([]byte(itemsJSON), &order.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	return &order, nil
}

// ListOrdersDue returns ids of orders due for reconciliation in the period.
func (r *OrderRepository) ListOrdersDue(ctx context.Context, supplierID string, from, to time.Time) ([]string, error) {
	query := `
		SELECT id FROM orders
		WHERE supplier_id = ? AND ordered_at >= ? AND ordered_at < ?
		ORDER BY ordered_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, supplierID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ port.OrderFeed = (*OrderRepository)(nil)
