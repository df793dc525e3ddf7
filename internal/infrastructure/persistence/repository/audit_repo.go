package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository over sqlite. The table is
// append-only; there is deliberately no update or delete path.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append adds one transition entry.
func (r *AuditRepository) Append(ctx context.Context, entry *entity.TransitionEntry) error {
	query := `
		INSERT INTO reconciliation_transitions (
			record_id, previous_state, new_state, "trigger", actor, detail, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.RecordID,
		entry.PreviousState,
		entry.NewState,
		entry.Trigger,
		entry.Actor,
		entry.Detail,
		entry.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append transition entry",
			zap.String("record_id", entry.RecordID), zap.Error(err))
		return fmt.Errorf("failed to append transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetByRecordID returns a record's trail in chronological order.
func (r *AuditRepository) GetByRecordID(ctx context.Context, recordID string) ([]*entity.TransitionEntry, error) {
	query := `
		SELECT id, record_id, previous_state, new_state, "trigger", actor, detail, timestamp
		FROM reconciliation_transitions
		WHERE record_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transitions: %w", err)
	}
	defer rows.Close()

	var entries []*entity.TransitionEntry
	for rows.Next() {
		var entry entity.TransitionEntry
		err := rows.Scan(
			&entry.ID,
			&entry.RecordID,
			&entry.PreviousState,
			&entry.NewState,
			&entry.Trigger,
			&entry.Actor,
			&entry.Detail,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

var _ port.AuditRepository = (*AuditRepository)(nil)
