package pipeline

import "fmt"

// State of a single generation run. A run advances through the phase states
// in order and ends in exactly one of the terminal states.
type State string

const (
	StateInit        State = "init"
	StateExplanation State = "explanation"
	StateMapping     State = "mapping"
	StateDiagram     State = "diagram"
	StateAborted     State = "aborted"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

type transition struct {
	From State
	To   State
}

// allowedTransitions defines the legal run lifecycle:
// init -> explanation -> mapping -> diagram -> completed
// explanation -> aborted (sentinel found)
// any non-terminal state -> failed
var allowedTransitions = map[transition]bool{
	{StateInit, StateExplanation}:    true,
	{StateExplanation, StateMapping}: true,
	{StateMapping, StateDiagram}:     true,
	{StateDiagram, StateCompleted}:   true,
	{StateExplanation, StateAborted}: true,
	{StateInit, StateFailed}:         true,
	{StateExplanation, StateFailed}:  true,
	{StateMapping, StateFailed}:      true,
	{StateDiagram, StateFailed}:      true,
}

// IsTerminal reports whether a run in this state can never advance again.
func IsTerminal(s State) bool {
	return s == StateAborted || s == StateCompleted || s == StateFailed
}

// InvalidStateTransitionError reports an illegal run state transition.
type InvalidStateTransitionError struct {
	From State
	To   State
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition: %s -> %s", e.From, e.To)
}

// machine tracks the state of one run.
type machine struct {
	current State
}

func newMachine() *machine { return &machine{current: StateInit} }

// to advances the machine, rejecting transitions the table does not allow.
func (m *machine) to(next State) error {
	if !allowedTransitions[transition{m.current, next}] {
		return &InvalidStateTransitionError{From: m.current, To: next}
	}
	m.current = next
	return nil
}
