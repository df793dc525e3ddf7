package event

// Type identifies the type of reconciliation event emitted at the
// ledger/notification boundary.
type Type string

const (
	TypeReconciliationStarted   Type = "reconciliation.started"
	TypeReconciliationCompleted Type = "reconciliation.completed"
	TypeReconciliationDisputed  Type = "reconciliation.disputed"
	TypeReconciliationResolved  Type = "reconciliation.resolved"
	TypeReconciliationFailed    Type = "reconciliation.failed"
)

// String returns the string representation of the event type.
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants.
func (t Type) IsValid() bool {
	switch t {
	case TypeReconciliationStarted,
		TypeReconciliationCompleted,
		TypeReconciliationDisputed,
		TypeReconciliationResolved,
		TypeReconciliationFailed:
		return true
	default:
		return false
	}
}
