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

// DeliveryRepository implements port.DeliveryFeed over the locally synced
// copy of the marketplace delivery feed.
type DeliveryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeliveryRepository creates a new delivery feed adapter.
func NewDeliveryRepository(db *sql.DB, logger *zap.Logger) port.DeliveryFeed {
	return &DeliveryRepository{db: db, logger: logger}
}

// ListReceipts returns candidate receipts for a supplier/restaurant pair
// delivered within [from, to).
func (r *DeliveryRepository) ListReceipts(ctx context.Context, supplierID, restaurantID string, from, to time.Time) ([]*entity.DeliveryReceipt, error) {
	query := `
		SELECT id, order_ref, supplier_id, restaurant_id, items_json, delivered_at
		FROM delivery_receipts
		WHERE supplier_id = ? AND restaurant_id = ? AND delivered_at >= ? AND delivered_at < ?
		ORDER BY delivered_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, supplierID, restaurantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*entity.DeliveryReceipt
	for rows.Next() {
		var receipt entity.DeliveryReceipt
		var itemsJSON string
		err := rows.Scan(
			&receipt.ID,
			&receipt.OrderRef,
			&receipt.SupplierID,
			&receipt.RestaurantID,
			&itemsJSON,
			&receipt.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &receipt.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipt items: %w", err)
		}
		receipts = append(receipts, &receipt)
	}
	return receipts, rows.Err()
}

var _ port.DeliveryFeed = (*DeliveryRepository)(nil)
