package workflow

import (
	"context"
	"fmt"
)

// GuardFunc evaluates whether a transition should be allowed.
type GuardFunc func(ctx context.Context) bool

// StateMachine tracks the current lifecycle state and validates transitions.
type StateMachine interface {
	// State returns the current state.
	State() State

	// CanFire returns true if the trigger is permitted in the current state.
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state.
	PermittedTriggers() []Trigger
}

// Builder assembles the transition table before any machine instance exists.
type Builder struct {
	configurations map[State]*stateConfig
}

// StateConfiguration configures outgoing transitions for a single state.
type StateConfiguration struct {
	config *stateConfig
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger][]transition
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates an empty state machine builder.
func NewBuilder() *Builder {
	return &Builder{configurations: make(map[State]*stateConfig)}
}

// Configure returns the configuration for the given state, creating it if needed.
func (b *Builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}

	return StateConfiguration{config: config}
}

// Build creates a new state machine instance with the given initial state.
// The transition table is copied so machines built from the same builder do
// not share mutable configuration.
func (b *Builder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition, len(config.transitions))
		for trigger, ts := range config.transitions {
			transitionsCopy[trigger] = append([]transition{}, ts...)
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target state.
func (c StateConfiguration) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state when the guard passes.
func (c StateConfiguration) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.config.transitions[trigger] = append(c.config.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

// State returns the current state.
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the trigger has at least one configured transition
// from the current state. Guards are evaluated at Fire time, not here.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}

	ts, exists := config.transitions[trigger]
	return exists && len(ts) > 0
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed.
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s (no configuration)", ErrInvalidTransition, trigger, m.currentState)
	}

	ts, exists := config.transitions[trigger]
	if !exists || len(ts) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	for _, t := range ts {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
}

// PermittedTriggers returns all triggers that can be fired in the current state.
func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}

	return triggers
}

// NewReconciliationMachine builds the lifecycle machine for a reconciliation
// record starting from the given state. The transition table is the single
// source of truth for legal lifecycle moves; everything else must go through
// Fire and gets rejected here.
func NewReconciliationMachine(initial State, adminOverride GuardFunc) StateMachine {
	b := NewBuilder()

	b.Configure(StateNotStarted).
		Permit(TriggerClaim, StateProcessing)

	b.Configure(StateProcessing).
		Permit(TriggerAutoResolve, StateCompleted).
		Permit(TriggerDispute, StateDisputed).
		Permit(TriggerFail, StateFailed)

	b.Configure(StateDisputed).
		Permit(TriggerResolve, StateCompleted)

	// FAILED can only be left through the explicit administrative override.
	if adminOverride != nil {
		b.Configure(StateFailed).
			PermitIf(TriggerAdminReopen, StateProcessing, adminOverride)
	}

	return b.Build(initial)
}
