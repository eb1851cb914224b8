package modes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/ledmodes/internal/fsm"
	"github.com/sweeney/ledmodes/internal/gpio"
	"github.com/sweeney/ledmodes/internal/led"
	"github.com/sweeney/ledmodes/internal/timer"
)

// Variant selects the mode catalog and transition table.
type Variant string

const (
	// Three has modes 0-2 and buttons b1, b2.
	Three Variant = "three"
	// Four adds the locked mode 3 and button b3.
	Four Variant = "four"
)

// Mode names, also used as keys for per-mode tick overrides.
const (
	NameClockwise        = "clockwise"
	NameFlash            = "flash"
	NameCounterClockwise = "counterclockwise"
	NameLocked           = "locked"
)

// Mode ids.
const (
	Clockwise fsm.StateID = iota
	Flash
	CounterClockwise
	Locked
)

// Defaults from the board firmware.
const (
	DefaultTick        = 200 * time.Millisecond
	DefaultLockTimeout = 10 * time.Second
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case Three, Four:
		return v, nil
	}
	return "", fmt.Errorf("unknown variant %q (want %q or %q)", s, Three, Four)
}

// Buttons returns the number of buttons the variant uses.
func (v Variant) Buttons() int {
	if v == Four {
		return 3
	}
	return 2
}

// Deps are the collaborators the modes drive.
type Deps struct {
	LEDs   gpio.LEDs
	Fader  led.Fader
	Timer  timer.Service
	Logger *slog.Logger
}

// Settings tune mode timing.
type Settings struct {
	Tick        time.Duration            // default tick for every mode
	Ticks       map[string]time.Duration // per-mode override, keyed by mode name
	LockTimeout time.Duration
}

// DefaultSettings returns the board firmware's timing.
func DefaultSettings() Settings {
	return Settings{Tick: DefaultTick, LockTimeout: DefaultLockTimeout}
}

func (s Settings) tick(name string) time.Duration {
	if d, ok := s.Ticks[name]; ok {
		return d
	}
	return s.Tick
}

var threeRules = []fsm.Rule{
	{From: Clockwise, Event: fsm.Button1, To: CounterClockwise},
	{From: Clockwise, Event: fsm.Button2, To: Flash},
	{From: Clockwise, Event: fsm.Timeout, To: Clockwise},

	{From: Flash, Event: fsm.Button1, To: Clockwise},
	{From: Flash, Event: fsm.Button2, To: CounterClockwise},
	{From: Flash, Event: fsm.Timeout, To: Flash},

	{From: CounterClockwise, Event: fsm.Button1, To: Flash},
	{From: CounterClockwise, Event: fsm.Button2, To: Clockwise},
	{From: CounterClockwise, Event: fsm.Timeout, To: CounterClockwise},
}

// The locked mode ignores every button and leaves only on timeout.
var fourRules = []fsm.Rule{
	{From: Clockwise, Event: fsm.Button3, To: Locked},
	{From: Flash, Event: fsm.Button3, To: Locked},
	{From: CounterClockwise, Event: fsm.Button3, To: Locked},

	{From: Locked, Event: fsm.Button1, To: Locked},
	{From: Locked, Event: fsm.Button2, To: Locked},
	{From: Locked, Event: fsm.Button3, To: Locked},
	{From: Locked, Event: fsm.Timeout, To: Clockwise},
}

// Rules returns the declarative transition rules of a variant.
// (state, none) entries are left to the table's self-loop default.
func Rules(v Variant) []fsm.Rule {
	rules := append([]fsm.Rule(nil), threeRules...)
	if v == Four {
		rules = append(rules, fourRules...)
	}
	return rules
}

// Build creates the validated transition table for a variant.
func Build(v Variant, d Deps, s Settings) (*fsm.Table, error) {
	if _, err := ParseVariant(string(v)); err != nil {
		return nil, err
	}
	if d.LEDs == nil {
		return nil, fmt.Errorf("modes: no LEDs")
	}
	if n := d.LEDs.Count(); n < len(ClockwiseOrder) {
		return nil, fmt.Errorf("modes: need %d LEDs, have %d", len(ClockwiseOrder), n)
	}
	if v == Four && (d.Fader == nil || d.Timer == nil) {
		return nil, fmt.Errorf("modes: variant %s needs a fader and a timer", v)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	states := []fsm.State{
		{
			ID:     Clockwise,
			Name:   NameClockwise,
			Tick:   s.tick(NameClockwise),
			Phases: &rotation{name: NameClockwise, order: ClockwiseOrder, leds: d.LEDs, logger: logger},
		},
		{
			ID:     Flash,
			Name:   NameFlash,
			Tick:   s.tick(NameFlash),
			Phases: &flash{name: NameFlash, leds: d.LEDs, logger: logger},
		},
		{
			ID:     CounterClockwise,
			Name:   NameCounterClockwise,
			Tick:   s.tick(NameCounterClockwise),
			Phases: &rotation{name: NameCounterClockwise, order: CounterClockwiseOrder, leds: d.LEDs, logger: logger},
		},
	}
	if v == Four {
		states = append(states, fsm.State{
			ID:   Locked,
			Name: NameLocked,
			Tick: s.tick(NameLocked),
			Phases: &locked{
				name:    NameLocked,
				timeout: s.LockTimeout,
				leds:    d.LEDs,
				fader:   d.Fader,
				timer:   d.Timer,
				logger:  logger,
			},
		})
	}

	events, err := fsm.Events(v.Buttons())
	if err != nil {
		return nil, err
	}

	table, err := fsm.NewTable(states, events, Rules(v))
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", v, err)
	}
	return table, nil
}
