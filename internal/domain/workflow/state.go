package workflow

// State represents a reconciliation lifecycle state.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateDisputed   State = "DISPUTED"
	StateFailed     State = "FAILED"
)

var validStates = map[State]bool{
	StateNotStarted: true,
	StateProcessing: true,
	StateCompleted:  true,
	StateDisputed:   true,
	StateFailed:     true,
}

// DISPUTED is terminal-pending-human-action, not terminal: a human resolution
// still moves it to COMPLETED. COMPLETED and FAILED admit no business
// transitions; FAILED can only be left through the administrative override.
var terminalStates = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
}

// IsTerminal returns true if the state admits no further business transitions.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a defined lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
