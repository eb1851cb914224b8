package fsm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTable is returned when a transition table fails validation.
	// It is the only condition that should stop the controller.
	ErrInvalidTable = errors.New("invalid transition table")

	// ErrUnknownTransition is returned by Table.Next for a pair the table does
	// not cover. A validated table never produces it.
	ErrUnknownTransition = errors.New("unknown transition")
)

// Rule is one declarative table entry: in state From, event Event leads to To.
type Rule struct {
	From  StateID
	Event Event
	To    StateID
}

func (r Rule) String() string {
	return fmt.Sprintf("%d --%s--> %d", r.From, r.Event, r.To)
}

// Table maps (state, event) to the next state. It is total over the declared
// states and events and is read-only once built.
type Table struct {
	states []State
	events []Event
	index  [Button3 + 1]int // event -> column, -1 if undeclared
	next   [][]StateID
}

// NewTable validates the catalog and rules and builds a total table.
//
// State IDs must be dense and zero-based, matching their position in states.
// events must contain None. (s, None) defaults to a self-loop when no rule
// overrides it; every other declared pair needs exactly one rule.
func NewTable(states []State, events []Event, rules []Rule) (*Table, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no states declared", ErrInvalidTable)
	}
	for i, s := range states {
		if s.ID != StateID(i) {
			return nil, fmt.Errorf("%w: state at position %d has id %d", ErrInvalidTable, i, s.ID)
		}
		if s.Phases == nil {
			return nil, fmt.Errorf("%w: state %d (%s) has no phases", ErrInvalidTable, s.ID, s)
		}
		if s.Tick < 0 {
			return nil, fmt.Errorf("%w: state %d (%s) has negative tick %v", ErrInvalidTable, s.ID, s, s.Tick)
		}
	}

	t := &Table{
		states: append([]State(nil), states...),
		events: append([]Event(nil), events...),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	hasNone := false
	for col, e := range events {
		if !e.Valid() {
			return nil, fmt.Errorf("%w: undefined event %s", ErrInvalidTable, e)
		}
		if t.index[e] != -1 {
			return nil, fmt.Errorf("%w: event %s declared twice", ErrInvalidTable, e)
		}
		t.index[e] = col
		if e == None {
			hasNone = true
		}
	}
	if !hasNone {
		return nil, fmt.Errorf("%w: event set must include %s", ErrInvalidTable, None)
	}

	set := make([][]bool, len(states))
	t.next = make([][]StateID, len(states))
	for i := range t.next {
		t.next[i] = make([]StateID, len(events))
		set[i] = make([]bool, len(events))
	}

	for _, r := range rules {
		if !t.hasState(r.From) {
			return nil, fmt.Errorf("%w: rule %v: source state %d not declared", ErrInvalidTable, r, r.From)
		}
		if !t.hasState(r.To) {
			return nil, fmt.Errorf("%w: rule %v: target state %d not declared", ErrInvalidTable, r, r.To)
		}
		if !r.Event.Valid() || t.index[r.Event] == -1 {
			return nil, fmt.Errorf("%w: rule %v: event %s not declared", ErrInvalidTable, r, r.Event)
		}
		col := t.index[r.Event]
		if set[r.From][col] {
			return nil, fmt.Errorf("%w: rule %v: duplicate entry for (%d, %s)", ErrInvalidTable, r, r.From, r.Event)
		}
		t.next[r.From][col] = r.To
		set[r.From][col] = true
	}

	none := t.index[None]
	var missing []string
	for s := range t.next {
		if !set[s][none] {
			t.next[s][none] = StateID(s)
			set[s][none] = true
		}
		for col, e := range events {
			if !set[s][col] {
				missing = append(missing, fmt.Sprintf("(%d, %s)", s, e))
			}
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing entries %s", ErrInvalidTable, strings.Join(missing, " "))
	}

	return t, nil
}

func (t *Table) hasState(id StateID) bool {
	return id >= 0 && int(id) < len(t.states)
}

// Next returns the successor of (from, e).
func (t *Table) Next(from StateID, e Event) (State, error) {
	if !t.hasState(from) || !e.Valid() || t.index[e] == -1 {
		return State{}, fmt.Errorf("%w: (%d, %s)", ErrUnknownTransition, from, e)
	}
	return t.states[t.next[from][t.index[e]]], nil
}

// State returns the descriptor for id.
func (t *Table) State(id StateID) (State, bool) {
	if !t.hasState(id) {
		return State{}, false
	}
	return t.states[id], true
}

// Initial returns the default state (id 0).
func (t *Table) Initial() State {
	return t.states[0]
}

// States returns a copy of the state catalog.
func (t *Table) States() []State {
	return append([]State(nil), t.states...)
}

// Events returns a copy of the declared event set.
func (t *Table) Events() []Event {
	return append([]Event(nil), t.events...)
}

// Rules returns every entry of the table, row by row in declared event order.
func (t *Table) Rules() []Rule {
	rules := make([]Rule, 0, len(t.states)*len(t.events))
	for s, row := range t.next {
		for col, to := range row {
			rules = append(rules, Rule{From: StateID(s), Event: t.events[col], To: to})
		}
	}
	return rules
}
