package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"go.uber.org/zap"
)

// RecordRepository implements port.RecordRepository over sqlite. All writes
// are single-record upserts keyed by order id.
type RecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sql.DB, logger *zap.Logger) port.RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

// Upsert inserts or replaces the record keyed by its order id.
func (r *RecordRepository) Upsert(ctx context.Context, record *entity.ReconciliationRecord) error {
	candidateJSON, err := marshalNullable(record.Candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}
	discrepanciesJSON, err := json.Marshal(record.Discrepancies)
	if err != nil {
		return fmt.Errorf("failed to marshal discrepancies: %w", err)
	}
	resolutionsJSON, err := json.Marshal(record.Resolutions)
	if err != nil {
		return fmt.Errorf("failed to marshal resolutions: %w", err)
	}

	query := `
		INSERT INTO reconciliation_records (
			id, order_id, supplier_id, state, candidate_json,
			discrepancies_json, resolutions_json, confidence,
			auto_resolvable, human_resolved_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			state = excluded.state,
			candidate_json = excluded.candidate_json,
			discrepancies_json = excluded.discrepancies_json,
			resolutions_json = excluded.resolutions_json,
			confidence = excluded.confidence,
			auto_resolvable = excluded.auto_resolvable,
			human_resolved_by = excluded.human_resolved_by,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.OrderID,
		record.SupplierID,
		record.State,
		candidateJSON,
		string(discrepanciesJSON),
		string(resolutionsJSON),
		record.Confidence,
		record.AutoResolvable,
		record.HumanResolvedBy,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert reconciliation record",
			zap.String("order_id", record.OrderID), zap.Error(err))
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// GetByOrderID returns the record for an order, or (nil, nil) when absent.
func (r *RecordRepository) GetByOrderID(ctx context.Context, orderID string) (*entity.ReconciliationRecord, error) {
	query := `
		SELECT id, order_id, supplier_id, state, candidate_json,
			discrepancies_json, resolutions_json, confidence,
			auto_resolvable, human_resolved_by, created_at, updated_at
		FROM reconciliation_records
		WHERE order_id = ?
	`

	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// ListBySupplier returns records for a supplier, newest first.
func (r *RecordRepository) ListBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]*entity.ReconciliationRecord, error) {
	query := `
		SELECT id, order_id, supplier_id, state, candidate_json,
			discrepancies_json, resolutions_json, confidence,
			auto_resolvable, human_resolved_by, created_at, updated_at
		FROM reconciliation_records
		WHERE supplier_id = ?
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, supplierID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*entity.ReconciliationRecord
	for rows.Next() {
		record, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *RecordRepository) scanRecord(row rowScanner) (*entity.ReconciliationRecord, error) {
	var record entity.ReconciliationRecord
	var candidateJSON sql.NullString
	var discrepanciesJSON, resolutionsJSON string

	err := row.Scan(
		&record.ID,
		&record.OrderID,
		&record.SupplierID,
		&record.State,
		&candidateJSON,
		&discrepanciesJSON,
		&resolutionsJSON,
		&record.Confidence,
		&record.AutoResolvable,
		&record.HumanResolvedBy,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if candidateJSON.Valid && candidateJSON.String != "" {
		var candidate entity.MatchCandidate
		if err := json.Unmarshal([]byte(candidateJSON.String), &candidate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
		}
		record.Candidate = &candidate
	}
	if err := json.Unmarshal([]byte(discrepanciesJSON), &record.Discrepancies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal discrepancies: %w", err)
	}
	if err := json.Unmarshal([]byte(resolutionsJSON), &record.Resolutions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolutions: %w", err)
	}
	return &record, nil
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if c, ok := v.(*entity.MatchCandidate); ok && c == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

var _ port.RecordRepository = (*RecordRepository)(nil)
