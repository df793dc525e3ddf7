package workflow

// Trigger represents an event that can cause a state transition.
type Trigger string

const (
	// TriggerClaim fires when the batch orchestrator claims the order.
	TriggerClaim Trigger = "CLAIM"

	// TriggerAutoResolve fires when every discrepancy resolved automatically.
	TriggerAutoResolve Trigger = "AUTO_RESOLVE"

	// TriggerDispute fires when manual review is required or the delivery is
	// missing after the lookback window elapsed.
	TriggerDispute Trigger = "DISPUTE"

	// TriggerFail fires on a non-business error during matching or detection.
	TriggerFail Trigger = "FAIL"

	// TriggerResolve fires when a human supplies a final resolution for every
	// outstanding discrepancy of a disputed record.
	TriggerResolve Trigger = "RESOLVE"

	// TriggerAdminReopen is the explicit administrative override out of FAILED
	// after upstream data has been corrected.
	TriggerAdminReopen Trigger = "ADMIN_REOPEN"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
