package port

import (
	"context"
	"time"

	"github.com/forkline/reconciliation/internal/domain/entity"
)

// OrderFeed is the external data layer supplying normalized purchase orders.
// Calls may block and are the engine's only suspension points, so every method
// takes a context and is retried per the tenant retry policy.
type OrderFeed interface {
	// GetOrder returns one order by id.
	GetOrder(ctx context.Context, orderID string) (*entity.Order, error)

	// ListOrdersDue returns the ids of orders due for reconciliation for a
	// supplier within the given period.
	ListOrdersDue(ctx context.Context, supplierID string, from, to time.Time) ([]string, error)
}

// DeliveryFeed is the external data layer supplying normalized delivery receipts.
type DeliveryFeed interface {
	// ListReceipts returns candidate receipts for a supplier/restaurant pair
	// delivered within [from, to).
	ListReceipts(ctx context.Context, supplierID, restaurantID string, from, to time.Time) ([]*entity.DeliveryReceipt, error)
}
