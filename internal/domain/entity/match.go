package entity

// MatchMethod records how a delivery receipt was paired with an order.
type MatchMethod string

const (
	// MatchByOrderRef means the receipt carried an explicit order reference.
	MatchByOrderRef MatchMethod = "ORDER_REF"

	// MatchByTotalValue means the closest-total heuristic selected the receipt.
	MatchByTotalValue MatchMethod = "TOTAL_VALUE"
)

// MatchCandidate links exactly one order to exactly one delivery receipt.
// Immutable once a reconciliation record is finalized from it.
type MatchCandidate struct {
	OrderID   string      `json:"order_id"`
	ReceiptID string      `json:"receipt_id"`
	Method    MatchMethod `json:"method"`
	// TieBreak documents a deterministic tie-break decision so the match is
	// reproducible from the audit trail. Empty when no tie occurred.
	TieBreak string `json:"tie_break,omitempty"`
}
