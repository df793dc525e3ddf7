package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationMachine_LegalTransitions(t *testing.T) {
	tests := []struct {
		name     string
		initial  State
		trigger  Trigger
		expected State
	}{
		{
			name:     "claim moves not started to processing",
			initial:  StateNotStarted,
			trigger:  TriggerClaim,
			expected: StateProcessing,
		},
		{
			name:     "auto resolve moves processing to completed",
			initial:  StateProcessing,
			trigger:  TriggerAutoResolve,
			expected: StateCompleted,
		},
		{
			name:     "dispute moves processing to disputed",
			initial:  StateProcessing,
			trigger:  TriggerDispute,
			expected: StateDisputed,
		},
		{
			name:     "fail moves processing to failed",
			initial:  StateProcessing,
			trigger:  TriggerFail,
			expected: StateFailed,
		},
		{
			name:     "resolve moves disputed to completed",
			initial:  StateDisputed,
			trigger:  TriggerResolve,
			expected: StateCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewReconciliationMachine(tt.initial, nil)
			err := m.Fire(context.Background(), tt.trigger)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.State())
		})
	}
}

func TestReconciliationMachine_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		initial State
		trigger Trigger
	}{
		{
			name:    "cannot auto resolve before claiming",
			initial: StateNotStarted,
			trigger: TriggerAutoResolve,
		},
		{
			name:    "cannot dispute before claiming",
			initial: StateNotStarted,
			trigger: TriggerDispute,
		},
		{
			name:    "cannot claim twice",
			initial: StateProcessing,
			trigger: TriggerClaim,
		},
		{
			name:    "completed admits no transitions",
			initial: StateCompleted,
			trigger: TriggerClaim,
		},
		{
			name:    "completed cannot be disputed after the fact",
			initial: StateCompleted,
			trigger: TriggerDispute,
		},
		{
			name:    "failed cannot be claimed without the override",
			initial: StateFailed,
			trigger: TriggerClaim,
		},
		{
			name:    "failed cannot reopen without the override guard configured",
			initial: StateFailed,
			trigger: TriggerAdminReopen,
		},
		{
			name:    "disputed cannot fail",
			initial: StateDisputed,
			trigger: TriggerFail,
		},
		{
			name:    "disputed cannot regress to processing",
			initial: StateDisputed,
			trigger: TriggerClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewReconciliationMachine(tt.initial, nil)
			err := m.Fire(context.Background(), tt.trigger)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.initial, m.State(), "state must not change on a rejected trigger")
		})
	}
}

func TestReconciliationMachine_AdminReopen(t *testing.T) {
	t.Run("override guard passing reopens failed record", func(t *testing.T) {
		m := NewReconciliationMachine(StateFailed, func(ctx context.Context) bool { return true })
		err := m.Fire(context.Background(), TriggerAdminReopen)
		require.NoError(t, err)
		assert.Equal(t, StateProcessing, m.State())
	})

	t.Run("override guard failing keeps record failed", func(t *testing.T) {
		m := NewReconciliationMachine(StateFailed, func(ctx context.Context) bool { return false })
		err := m.Fire(context.Background(), TriggerAdminReopen)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGuardFailed)
		assert.Equal(t, StateFailed, m.State())
	})
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateNotStarted.IsTerminal())
	assert.False(t, StateProcessing.IsTerminal())
	// Disputed still admits the human resolution transition.
	assert.False(t, StateDisputed.IsTerminal())
}

func TestStateMachine_CanFire(t *testing.T) {
	m := NewReconciliationMachine(StateProcessing, nil)

	assert.True(t, m.CanFire(TriggerAutoResolve))
	assert.True(t, m.CanFire(TriggerDispute))
	assert.True(t, m.CanFire(TriggerFail))
	assert.False(t, m.CanFire(TriggerClaim))
	assert.False(t, m.CanFire(TriggerResolve))
}

func TestStateMachine_PermittedTriggers(t *testing.T) {
	m := NewReconciliationMachine(StateProcessing, nil)
	triggers := m.PermittedTriggers()
	assert.ElementsMatch(t, []Trigger{TriggerAutoResolve, TriggerDispute, TriggerFail}, triggers)

	done := NewReconciliationMachine(StateCompleted, nil)
	assert.Empty(t, done.PermittedTriggers())
}
