// Package fsm contains the event-driven mode engine: the bounded event queue,
// the transition table and the Enter/Act/Exit lifecycle loop.
// This package has NO external dependencies (no GPIO, MQTT or OS access).
// Time is injectable through the engine's sleep function.
package fsm

import "fmt"

// Event is a discrete input consumed by the engine.
// None is only ever returned by an empty queue; producers never push it.
type Event uint8

const (
	None Event = iota
	Timeout
	Button1
	Button2
	Button3
)

// MaxButtons is the largest button arity the event enumeration supports.
const MaxButtons = 3

// ButtonEvent returns the event for the zero-based logical button k.
func ButtonEvent(k int) (Event, error) {
	if k < 0 || k >= MaxButtons {
		return None, fmt.Errorf("button %d out of range [0,%d)", k, MaxButtons)
	}
	return Button1 + Event(k), nil
}

// Button returns the zero-based button index for button events.
func (e Event) Button() (int, bool) {
	if e < Button1 || e > Button3 {
		return 0, false
	}
	return int(e - Button1), true
}

// Valid reports whether e is a member of the enumeration.
func (e Event) Valid() bool {
	return e <= Button3
}

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case Timeout:
		return "timeout"
	}
	if k, ok := e.Button(); ok {
		return fmt.Sprintf("b%d", k+1)
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// ParseEvent is the inverse of String for producer-visible events.
// "none" is rejected: it is not something a producer may emit.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "timeout":
		return Timeout, nil
	case "b1":
		return Button1, nil
	case "b2":
		return Button2, nil
	case "b3":
		return Button3, nil
	}
	return None, fmt.Errorf("unknown event %q", s)
}

// Events returns the declared event set for a configuration with the given
// button arity: None, Timeout and one event per button.
func Events(buttons int) ([]Event, error) {
	if buttons < 1 || buttons > MaxButtons {
		return nil, fmt.Errorf("button arity %d out of range [1,%d]", buttons, MaxButtons)
	}
	events := []Event{None, Timeout}
	for k := 0; k < buttons; k++ {
		events = append(events, Button1+Event(k))
	}
	return events, nil
}
