package input

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sweeney/ledmodes/internal/fsm"
)

type fakeRecorder struct {
	mu        sync.Mutex
	pushed    []string
	dropped   []string
	throttled int
}

func (r *fakeRecorder) EventPushed(e fsm.Event, src string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, src+":"+e.String())
}

func (r *fakeRecorder) EventDropped(e fsm.Event, src string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, src+":"+e.String())
}

func (r *fakeRecorder) CommandThrottled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttled++
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAdapter(t *testing.T, q *fsm.Queue, buttons int, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithLogger(quiet())}, opts...)
	a, err := NewAdapter(q, buttons, opts...)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return a
}

func TestAdapterButtonMapping(t *testing.T) {
	q := fsm.NewQueue(10)
	a := newAdapter(t, q, 3)

	a.Button(0)
	a.Button(2)
	a.Button(1)

	for i, want := range []fsm.Event{fsm.Button1, fsm.Button3, fsm.Button2} {
		if got := q.TryPop(); got != want {
			t.Errorf("pop %d: got %s, want %s", i, got, want)
		}
	}
}

func TestAdapterIgnoresUnmappedButton(t *testing.T) {
	q := fsm.NewQueue(10)
	a := newAdapter(t, q, 2)

	a.Button(2) // third button on a two-button board
	a.Button(-1)

	if q.Len() != 0 {
		t.Errorf("Len: got %d, want 0", q.Len())
	}
}

func TestAdapterTimeout(t *testing.T) {
	q := fsm.NewQueue(10)
	a := newAdapter(t, q, 2)

	a.Timeout()
	if got := q.TryPop(); got != fsm.Timeout {
		t.Errorf("got %s, want timeout", got)
	}
}

func TestAdapterDropsWhenFull(t *testing.T) {
	q := fsm.NewQueue(2)
	rec := &fakeRecorder{}
	a := newAdapter(t, q, 3, WithRecorder(rec))

	a.Button(0)
	a.Button(1)
	a.Button(2) // dropped
	a.Timeout() // dropped

	stats := a.Stats()
	if stats.Pushed["b1"] != 1 || stats.Pushed["b2"] != 1 {
		t.Errorf("Pushed: got %v", stats.Pushed)
	}
	if stats.Dropped["b3"] != 1 || stats.Dropped["timeout"] != 1 {
		t.Errorf("Dropped: got %v", stats.Dropped)
	}
	if len(rec.dropped) != 2 || rec.dropped[0] != "button:b3" || rec.dropped[1] != "timer:timeout" {
		t.Errorf("recorder dropped: got %v", rec.dropped)
	}

	// Earliest events survive
	if got := q.TryPop(); got != fsm.Button1 {
		t.Errorf("got %s, want b1", got)
	}
	if got := q.TryPop(); got != fsm.Button2 {
		t.Errorf("got %s, want b2", got)
	}

	// Accepts again once drained
	a.Button(2)
	if got := q.TryPop(); got != fsm.Button3 {
		t.Errorf("got %s, want b3", got)
	}
}

func TestAdapterCommand(t *testing.T) {
	q := fsm.NewQueue(10)
	rec := &fakeRecorder{}
	a := newAdapter(t, q, 3, WithRecorder(rec))

	if err := a.Command("b3"); err != nil {
		t.Fatalf("Command(b3): %v", err)
	}
	if err := a.Command("timeout"); err != nil {
		t.Fatalf("Command(timeout): %v", err)
	}

	if got := q.TryPop(); got != fsm.Button3 {
		t.Errorf("got %s, want b3", got)
	}
	if got := q.TryPop(); got != fsm.Timeout {
		t.Errorf("got %s, want timeout", got)
	}
	if len(rec.pushed) != 2 || rec.pushed[0] != "remote:b3" {
		t.Errorf("recorder pushed: got %v", rec.pushed)
	}
}

func TestAdapterCommandNormalizesName(t *testing.T) {
	q := fsm.NewQueue(10)
	a := newAdapter(t, q, 2)

	for _, name := range []string{"B1", " b2\n", "\tTimeout "} {
		if err := a.Command(name); err != nil {
			t.Errorf("Command(%q): %v", name, err)
		}
	}
	for i, want := range []fsm.Event{fsm.Button1, fsm.Button2, fsm.Timeout} {
		if got := q.TryPop(); got != want {
			t.Errorf("pop %d: got %s, want %s", i, got, want)
		}
	}
}

func TestAdapterCommandRejectsUnknown(t *testing.T) {
	q := fsm.NewQueue(10)
	a := newAdapter(t, q, 2)

	for _, name := range []string{"none", "b4", "", " ", "b 1"} {
		if err := a.Command(name); err == nil {
			t.Errorf("Command(%q): expected error", name)
		}
	}
	if err := a.Command("b3"); err == nil {
		t.Error("Command(b3) on a two-button board: expected error")
	}
	if q.Len() != 0 {
		t.Errorf("Len: got %d, want 0", q.Len())
	}
}

func TestAdapterCommandThrottled(t *testing.T) {
	q := fsm.NewQueue(10)
	rec := &fakeRecorder{}
	// One command per hour with a burst of two
	a := newAdapter(t, q, 2, WithRecorder(rec), WithCommandRate(1.0/3600, 2))

	if err := a.Command("b1"); err != nil {
		t.Fatalf("first command: %v", err)
	}
	if err := a.Command("b2"); err != nil {
		t.Fatalf("second command: %v", err)
	}
	err := a.Command("b1")
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("third command: got %v, want ErrThrottled", err)
	}

	if q.Len() != 2 {
		t.Errorf("Len: got %d, want 2", q.Len())
	}
	if a.Stats().Throttled != 1 {
		t.Errorf("Throttled: got %d, want 1", a.Stats().Throttled)
	}
	if rec.throttled != 1 {
		t.Errorf("recorder throttled: got %d, want 1", rec.throttled)
	}

	// Buttons are never throttled
	a.Button(0)
	if q.Len() != 3 {
		t.Errorf("Len after button: got %d, want 3", q.Len())
	}
}

func TestAdapterUnlimitedCommands(t *testing.T) {
	q := fsm.NewQueue(100)
	a := newAdapter(t, q, 2, WithCommandRate(0, 0))

	for i := 0; i < 50; i++ {
		if err := a.Command("b1"); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}
}

func TestNewAdapterRejectsArity(t *testing.T) {
	q := fsm.NewQueue(1)
	if _, err := NewAdapter(q, 0); err == nil {
		t.Error("NewAdapter(0 buttons): expected error")
	}
	if _, err := NewAdapter(q, fsm.MaxButtons+1); err == nil {
		t.Error("NewAdapter(too many buttons): expected error")
	}
}

func TestAdapterConcurrentProducers(t *testing.T) {
	q := fsm.NewQueue(10)
	a := newAdapter(t, q, 3)

	var wg sync.WaitGroup
	for k := 0; k < 3; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				a.Button(k)
			}
		}(k)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			a.Timeout()
		}
	}()
	wg.Wait()

	stats := a.Stats()
	var pushed, dropped uint64
	for _, n := range stats.Pushed {
		pushed += n
	}
	for _, n := range stats.Dropped {
		dropped += n
	}
	if pushed+dropped != 400 {
		t.Errorf("pushed+dropped: got %d, want 400", pushed+dropped)
	}
	if pushed != uint64(q.Len()) {
		t.Errorf("pushed %d but queue holds %d", pushed, q.Len())
	}
}
