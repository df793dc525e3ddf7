package entity

import (
	"time"
)

// TransitionEntry is one row of a record's append-only audit trail.
type TransitionEntry struct {
	ID            int64     `json:"id"`
	RecordID      string    `json:"record_id"`
	PreviousState string    `json:"previous_state"`
	NewState      string    `json:"new_state"`
	Trigger       string    `json:"trigger"`
	Actor         string    `json:"actor"`
	Detail        string    `json:"detail,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReconciliationRecord is the lifecycle record for a single order's reconciliation.
// Created when the order becomes eligible, mutated only by the engine's own
// transitions, never deleted.
type ReconciliationRecord struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	SupplierID     string          `json:"supplier_id"`
	State          string          `json:"state"`
	Candidate      *MatchCandidate `json:"candidate,omitempty"`
	Discrepancies  []Discrepancy   `json:"discrepancies"`
	Resolutions    []Resolution    `json:"resolutions"`
	Confidence     float64         `json:"confidence"`
	AutoResolvable bool            `json:"auto_resolvable"`
	// HumanResolvedBy is set when a disputed record was closed by a human action.
	// The automated confidence score is frozen at dispute time; the human
	// decision lives in Resolutions and here, never in Confidence.
	HumanResolvedBy string    `json:"human_resolved_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OutstandingDiscrepancies returns the indexes of discrepancies whose resolution
// still requires a human decision.
func (r *ReconciliationRecord) OutstandingDiscrepancies() []int {
	var out []int
	for i := range r.Discrepancies {
		if i >= len(r.Resolutions) || r.Resolutions[i].Action == ActionManualReview {
			out = append(out, i)
		}
	}
	return out
}
