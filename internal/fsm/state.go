package fsm

import "time"

// StateID identifies a state. IDs are dense and zero-based.
type StateID int

// Phases is the lifecycle a mode implements.
// Enter runs once per activation, Act once per tick while the state is current,
// and Exit once when the state is replaced. None of them may block indefinitely.
type Phases interface {
	Enter()
	Act()
	Exit()
}

// PhaseFuncs adapts plain functions to Phases. Nil fields are no-ops.
type PhaseFuncs struct {
	EnterFn func()
	ActFn   func()
	ExitFn  func()
}

func (p PhaseFuncs) Enter() {
	if p.EnterFn != nil {
		p.EnterFn()
	}
}

func (p PhaseFuncs) Act() {
	if p.ActFn != nil {
		p.ActFn()
	}
}

func (p PhaseFuncs) Exit() {
	if p.ExitFn != nil {
		p.ExitFn()
	}
}

// State is an immutable mode descriptor. States are created once at startup
// and only referenced afterwards.
type State struct {
	ID     StateID
	Name   string
	Tick   time.Duration // wait after each Act before the next sample
	Phases Phases
}

func (s State) String() string {
	if s.Name != "" {
		return s.Name
	}
	return "state"
}
