package port

import (
	"context"

	"github.com/forkline/reconciliation/internal/domain/entity"
)

// RecordRepository persists reconciliation records. Mutations are always
// single-record upserts keyed by order id, never batch-wide transactions, so a
// partial batch failure cannot corrupt unrelated records.
type RecordRepository interface {
	// Upsert inserts or replaces the record keyed by its order id.
	Upsert(ctx context.Context, record *entity.ReconciliationRecord) error

	// GetByOrderID returns the record for an order, or (nil, nil) when the
	// order has never been reconciled.
	GetByOrderID(ctx context.Context, orderID string) (*entity.ReconciliationRecord, error)

	// ListBySupplier returns records for a supplier, newest first.
	ListBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]*entity.ReconciliationRecord, error)
}

// AuditRepository persists the append-only state transition trail.
type AuditRepository interface {
	// Append adds one transition entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *entity.TransitionEntry) error

	// GetByRecordID returns a record's trail in chronological order.
	GetByRecordID(ctx context.Context, recordID string) ([]*entity.TransitionEntry, error)
}
