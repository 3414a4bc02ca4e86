// Package opstate models a single phase operation's Pending/Incomplete/
// Complete lifecycle (spec §3 Phase state, §4.7 step 5) as a
// stateless.StateMachine, grounded on the teacher's
// internal/statechart.Machine wrapper pattern (cli/internal/statechart/
// machine.go's Configure/Permit/OnEntry/Fire shape), generalized from the
// teacher's one fixed project lifecycle to a small machine instantiated
// per phase operation.
package opstate

import (
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/makerpnp/planner/internal/planning"
)

// Event drives a Machine's transitions.
type Event string

const (
	// EventEligible fires when an operation's placed/total counts (and
	// its phase's prior operations) currently qualify it for Complete.
	EventEligible Event = "eligible"
	// EventNotEligible fires when they no longer do.
	EventNotEligible Event = "not_eligible"
	// EventManualComplete fires on an explicit record-phase-operation
	// command (spec §4.8 RecordPhaseOperation, set=Completed).
	EventManualComplete Event = "manual_complete"
	// EventReset returns the operation to Pending, clearing any manual
	// override (spec §4.8 ResetOperations).
	EventReset Event = "reset"
)

// Machine wraps a stateless.StateMachine seeded at one operation's current
// status. It has no memory of ManualOverride itself; the caller decides
// whether to fire EventEligible/EventNotEligible at all (refresh.go skips
// them once an operation carries a manual override) and sets
// ManualOverride alongside EventManualComplete/EventReset.
type Machine struct {
	sm *stateless.StateMachine
}

// New creates a machine for one operation, starting at status.
func New(status planning.OperationStatus) *Machine {
	sm := stateless.NewStateMachine(status)
	m := &Machine{sm: sm}
	m.configure()
	return m
}

func (m *Machine) configure() {
	m.sm.Configure(planning.OperationPending).
		Permit(EventEligible, planning.OperationComplete).
		Ignore(EventNotEligible).
		Permit(EventManualComplete, planning.OperationComplete).
		Ignore(EventReset)

	m.sm.Configure(planning.OperationIncomplete).
		Permit(EventEligible, planning.OperationComplete).
		Ignore(EventNotEligible).
		Permit(EventManualComplete, planning.OperationComplete).
		Permit(EventReset, planning.OperationPending)

	m.sm.Configure(planning.OperationComplete).
		Ignore(EventEligible).
		Permit(EventNotEligible, planning.OperationPending).
		Ignore(EventManualComplete).
		Permit(EventReset, planning.OperationPending)
}

// Fire triggers event, returning the resulting status.
func (m *Machine) Fire(event Event) (planning.OperationStatus, error) {
	if err := m.sm.Fire(event); err != nil {
		return "", fmt.Errorf("operation state: firing %s: %w", event, err)
	}
	return m.Status(), nil
}

// Status returns the machine's current status.
func (m *Machine) Status() planning.OperationStatus {
	state := m.sm.MustState()
	if s, ok := state.(planning.OperationStatus); ok {
		return s
	}
	return planning.OperationPending
}
