package fsm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// recorder collects the phase call trace of every state.
type recorder struct {
	calls []string
}

func (r *recorder) states(n int, tick time.Duration) []State {
	states := make([]State, n)
	for i := range states {
		id := i
		states[i] = State{
			ID:   StateID(i),
			Name: fmt.Sprintf("s%d", i),
			Tick: tick,
			Phases: PhaseFuncs{
				EnterFn: func() { r.calls = append(r.calls, fmt.Sprintf("enter(%d)", id)) },
				ActFn:   func() { r.calls = append(r.calls, fmt.Sprintf("act(%d)", id)) },
				ExitFn:  func() { r.calls = append(r.calls, fmt.Sprintf("exit(%d)", id)) },
			},
		}
	}
	return states
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

// virtualClock replaces the tick wait. It runs scripted actions on given
// sleep calls (1-based) and cancels the run at stopAt.
type virtualClock struct {
	calls  int
	slept  []time.Duration
	at     map[int]func()
	stopAt int
	cancel context.CancelFunc
}

func (c *virtualClock) sleep(ctx context.Context, d time.Duration) error {
	c.calls++
	c.slept = append(c.slept, d)
	if fn := c.at[c.calls]; fn != nil {
		fn()
	}
	if c.calls >= c.stopAt {
		c.cancel()
		return ctx.Err()
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runScripted runs an engine over the locked four-state table with the given
// clock and returns the engine and Run's error.
func runScripted(t *testing.T, rec *recorder, q *Queue, clock *virtualClock, opts ...Option) (*Engine, error) {
	t.Helper()
	tbl, err := NewTable(rec.states(4, 10*time.Millisecond), fourEvents(t), lockedRules())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.cancel = cancel

	opts = append([]Option{WithSleep(clock.sleep), WithLogger(quietLogger())}, opts...)
	e := NewEngine(tbl, q, opts...)
	return e, e.Run(ctx)
}

func TestEngineLifecycleOrdering(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(DefaultQueueCapacity)
	clock := &virtualClock{
		stopAt: 5,
		at: map[int]func(){
			1: func() { q.Push(Button2) }, // s0 -> s1
			3: func() { q.Push(Button1) }, // s1 -> s0
		},
	}

	_, err := runScripted(t, rec, q, clock)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}

	want := []string{
		"enter(0)", "act(0)", "act(0)", "exit(0)",
		"enter(1)", "act(1)", "act(1)", "exit(1)",
		"enter(0)", "act(0)", "exit(0)",
	}
	if strings.Join(rec.calls, " ") != strings.Join(want, " ") {
		t.Errorf("trace:\n got  %v\n want %v", rec.calls, want)
	}
}

func TestEngineActNeverOutsideActivation(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(DefaultQueueCapacity)
	script := []Event{Button3, Button1, Timeout, Button2, Button2, Button1, Button3, Timeout}
	at := make(map[int]func())
	for i, e := range script {
		e := e
		at[2*i+1] = func() { q.Push(e) }
	}
	clock := &virtualClock{stopAt: 2*len(script) + 2, at: at}

	runScripted(t, rec, q, clock)

	active := -1
	for i, c := range rec.calls {
		var id int
		switch {
		case strings.HasPrefix(c, "enter"):
			fmt.Sscanf(c, "enter(%d)", &id)
			if active != -1 {
				t.Fatalf("call %d: %s while state %d still active", i, c, active)
			}
			active = id
		case strings.HasPrefix(c, "act"):
			fmt.Sscanf(c, "act(%d)", &id)
			if id != active {
				t.Fatalf("call %d: %s outside its activation (active %d)", i, c, active)
			}
		case strings.HasPrefix(c, "exit"):
			fmt.Sscanf(c, "exit(%d)", &id)
			if id != active {
				t.Fatalf("call %d: %s for inactive state (active %d)", i, c, active)
			}
			active = -1
		}
	}
	if active != -1 {
		t.Errorf("state %d never exited", active)
	}
}

func TestEngineLockedStateReentersOnIgnoredButtons(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(DefaultQueueCapacity)
	var transitions []Transition
	clock := &virtualClock{
		stopAt: 9,
		at: map[int]func(){
			1: func() { q.Push(Button3) }, // s0 -> s3 (locked)
			3: func() { q.Push(Button1) }, // ignored: s3 -> s3
			5: func() { q.Push(Button2) }, // ignored: s3 -> s3
			7: func() { q.Push(Timeout) }, // s3 -> s0
		},
	}

	e, _ := runScripted(t, rec, q, clock, WithTransitionHook(func(tr Transition) {
		transitions = append(transitions, tr)
	}))

	// Same-id transitions are full re-entries: enter(3) once from s0 plus once per ignored button.
	if got := rec.count("enter(3)"); got != 3 {
		t.Errorf("enter(3) count: got %d, want 3", got)
	}
	if got := rec.count("exit(3)"); got != 3 {
		t.Errorf("exit(3) count: got %d, want 3", got)
	}

	wantTo := []StateID{0, 3, 3, 3, 0}
	if len(transitions) != len(wantTo) {
		t.Fatalf("transitions: got %d, want %d (%+v)", len(transitions), len(wantTo), transitions)
	}
	for i, to := range wantTo {
		if transitions[i].To != to {
			t.Errorf("transition %d: To got %d, want %d", i, transitions[i].To, to)
		}
	}
	if !transitions[0].Initial {
		t.Error("first transition should be marked Initial")
	}
	if transitions[2].Event != Button1 || transitions[2].From != 3 {
		t.Errorf("transition 2: got %+v, want from 3 on b1", transitions[2])
	}
	if transitions[4].Event != Timeout {
		t.Errorf("transition 4: Event got %s, want timeout", transitions[4].Event)
	}
	if e.Current() != 0 {
		t.Errorf("Current: got %d, want 0", e.Current())
	}
}

func TestEngineIdleStaysInInitialState(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(DefaultQueueCapacity)
	clock := &virtualClock{stopAt: 50}
	ticks := 0

	e, err := runScripted(t, rec, q, clock, WithTickHook(func(id StateID) {
		if id != 0 {
			t.Errorf("tick in state %d, want 0", id)
		}
		ticks++
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}

	if got := rec.count("enter(0)"); got != 1 {
		t.Errorf("enter(0): got %d, want 1", got)
	}
	if got := rec.count("act(0)"); got != 50 {
		t.Errorf("act(0): got %d, want 50", got)
	}
	if ticks != 50 {
		t.Errorf("ticks: got %d, want 50", ticks)
	}
	if e.Latest() != None {
		t.Errorf("Latest: got %s, want none", e.Latest())
	}
	if e.Current() != 0 {
		t.Errorf("Current: got %d, want 0", e.Current())
	}
	for i, d := range clock.slept {
		if d != 10*time.Millisecond {
			t.Fatalf("sleep %d: got %v, want 10ms", i, d)
		}
	}
}

func TestEngineUsesPerStateTick(t *testing.T) {
	rec := &recorder{}
	states := rec.states(4, 10*time.Millisecond)
	states[1].Tick = 50 * time.Millisecond
	tbl, err := NewTable(states, fourEvents(t), lockedRules())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	q := NewQueue(DefaultQueueCapacity)
	q.Push(Button2) // s0 -> s1 after the first tick
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &virtualClock{stopAt: 3, cancel: cancel}

	NewEngine(tbl, q, WithSleep(clock.sleep), WithLogger(quietLogger())).Run(ctx)

	want := []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}
	if len(clock.slept) != len(want) {
		t.Fatalf("sleeps: got %v, want %v", clock.slept, want)
	}
	for i := range want {
		if clock.slept[i] != want[i] {
			t.Errorf("sleep %d: got %v, want %v", i, clock.slept[i], want[i])
		}
	}
}

func TestEngineInitialLookupHonorsNoneOverride(t *testing.T) {
	rec := &recorder{}
	rules := append(lockedRules(), Rule{From: 0, Event: None, To: 2})
	tbl, err := NewTable(rec.states(4, time.Millisecond), fourEvents(t), rules)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &virtualClock{stopAt: 1, cancel: cancel}
	NewEngine(tbl, NewQueue(4), WithSleep(clock.sleep), WithLogger(quietLogger())).Run(ctx)

	if len(rec.calls) == 0 || rec.calls[0] != "enter(2)" {
		t.Errorf("first call: got %v, want enter(2)", rec.calls)
	}
}

func TestEngineUnknownEventFallsBackToSelfLoop(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(DefaultQueueCapacity)
	clock := &virtualClock{
		stopAt: 4,
		at: map[int]func(){
			1: func() { q.Push(Event(42)) },
		},
	}

	e, err := runScripted(t, rec, q, clock)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}

	if got := rec.count("enter(0)"); got != 2 {
		t.Errorf("enter(0): got %d, want 2 (re-entry after unknown event)", got)
	}
	if e.Current() != 0 {
		t.Errorf("Current: got %d, want 0", e.Current())
	}
}

func TestEngineDrainsOneEventPerTick(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(DefaultQueueCapacity)
	// Two events queued before start: each activation consumes exactly one.
	q.Push(Button2) // s0 -> s1
	q.Push(Button2) // s1 -> s2
	clock := &virtualClock{stopAt: 3}

	e, _ := runScripted(t, rec, q, clock)

	want := "enter(0) act(0) exit(0) enter(1) act(1) exit(1) enter(2) act(2) exit(2)"
	if got := strings.Join(rec.calls, " "); got != want {
		t.Errorf("trace:\n got  %s\n want %s", got, want)
	}
	if e.Latest() != Button2 {
		t.Errorf("Latest: got %s, want b2", e.Latest())
	}
}

func TestEngineRunCancelledBeforeStart(t *testing.T) {
	rec := &recorder{}
	tbl, err := NewTable(rec.states(4, time.Millisecond), fourEvents(t), lockedRules())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewEngine(tbl, NewQueue(1), WithLogger(quietLogger())).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v, want context.Canceled", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("expected no phase calls, got %v", rec.calls)
	}
}

func TestEngineRealSleepStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	tbl, err := NewTable(rec.states(4, time.Hour), fourEvents(t), lockedRules())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewEngine(tbl, NewQueue(1), WithLogger(quietLogger())).Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
