package fsm

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Transition describes one activation of a state.
type Transition struct {
	From    StateID
	To      StateID
	Event   Event
	Initial bool // first activation after start; From equals the initial state
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSleep replaces the tick wait. Tests use it to run on a virtual clock.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithTransitionHook sets a callback invoked after each state's Enter.
func WithTransitionHook(fn func(Transition)) Option {
	return func(e *Engine) {
		e.onTransition = fn
	}
}

// WithTickHook sets a callback invoked after each Act.
func WithTickHook(fn func(StateID)) Option {
	return func(e *Engine) {
		e.onTick = fn
	}
}

// Engine drives the Enter/Act/Exit lifecycle from queued events.
// Run must be called from a single goroutine; the queue is the only thing it
// shares with producers.
type Engine struct {
	table        *Table
	queue        *Queue
	logger       *slog.Logger
	sleep        SleepFunc
	onTransition func(Transition)
	onTick       func(StateID)

	current atomic.Int64
	latest  atomic.Uint32
}

// NewEngine creates an engine over a validated table and a queue.
func NewEngine(table *Table, queue *Queue, opts ...Option) *Engine {
	e := &Engine{
		table:  table,
		queue:  queue,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.current.Store(int64(table.Initial().ID))
	return e
}

// Current returns the id of the active state.
func (e *Engine) Current() StateID {
	return StateID(e.current.Load())
}

// Latest returns the event that caused the most recent activation.
func (e *Engine) Latest() Event {
	return Event(e.latest.Load())
}

// Run executes the control loop until ctx is done. Each iteration looks up
// the successor of (current, latest event), enters it, then acts, samples the
// queue and waits the state's tick until an event arrives, and finally exits
// it. A transition whose target is the current state is a full re-entry.
//
// On cancellation the active state's Exit runs once and ctx.Err() is returned.
func (e *Engine) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current := e.table.Initial()
	latest := None
	initial := true

	for {
		next, err := e.table.Next(current.ID, latest)
		if err != nil {
			e.logger.Error("no transition for event, staying in state",
				"state", current.ID, "event", latest.String(), "error", err)
			next = current
		}

		e.current.Store(int64(next.ID))
		e.latest.Store(uint32(latest))
		if !initial {
			e.logger.Info("transition",
				"from", current.String(), "to", next.String(), "event", latest.String())
		}

		next.Phases.Enter()
		e.logger.Debug("state entered", "state", next.String(), "id", next.ID)
		if e.onTransition != nil {
			e.onTransition(Transition{From: current.ID, To: next.ID, Event: latest, Initial: initial})
		}
		initial = false

		ev, err := e.sample(ctx, next)
		next.Phases.Exit()
		e.logger.Debug("state exited", "state", next.String(), "id", next.ID)
		if err != nil {
			return err
		}

		current = next
		latest = ev
	}
}

// sample repeats Act, one queue pop and the tick wait until a real event is
// popped.
func (e *Engine) sample(ctx context.Context, s State) (Event, error) {
	for {
		s.Phases.Act()
		if e.onTick != nil {
			e.onTick(s.ID)
		}
		ev := e.queue.TryPop()
		if err := e.sleep(ctx, s.Tick); err != nil {
			return None, err
		}
		if ev != None {
			return ev, nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
