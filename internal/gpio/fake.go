package gpio

import (
	"fmt"
	"sync"
)

// FakeButtons is a test double that delivers presses on demand.
type FakeButtons struct {
	handler PressHandler

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeButtons creates FakeButtons that deliver presses to h.
func NewFakeButtons(h PressHandler) *FakeButtons {
	return &FakeButtons{handler: h}
}

// Press simulates a debounced press of button k.
// Presses after Close are ignored, like a released GPIO line.
func (f *FakeButtons) Press(k int) {
	if f.Closed || f.handler == nil {
		return
	}
	f.handler(k)
}

// Close marks the buttons as closed.
func (f *FakeButtons) Close() error {
	f.Closed = true
	return nil
}

// FakeLEDs records LED output for test assertions.
// Safe for concurrent use; the fading driver writes from its own goroutine.
type FakeLEDs struct {
	mu     sync.Mutex
	state  []bool
	writes int
	closed bool

	// SetError, if set, will be returned by every write.
	SetError error
}

// NewFakeLEDs creates n LEDs, all off.
func NewFakeLEDs(n int) *FakeLEDs {
	return &FakeLEDs{state: make([]bool, n)}
}

// Set switches a single LED.
func (f *FakeLEDs) Set(led int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	if led < 0 || led >= len(f.state) {
		return fmt.Errorf("led %d out of range [0,%d)", led, len(f.state))
	}
	f.state[led] = on
	f.writes++
	return nil
}

// AllOn switches every LED on.
func (f *FakeLEDs) AllOn() error {
	return f.setAll(true)
}

// AllOff switches every LED off.
func (f *FakeLEDs) AllOff() error {
	return f.setAll(false)
}

func (f *FakeLEDs) setAll(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	for i := range f.state {
		f.state[i] = on
	}
	f.writes++
	return nil
}

// Count returns the number of LEDs.
func (f *FakeLEDs) Count() int {
	return len(f.state)
}

// Close switches every LED off and marks the fake closed.
func (f *FakeLEDs) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.state {
		f.state[i] = false
	}
	f.closed = true
	return nil
}

// State returns a copy of the current LED states.
func (f *FakeLEDs) State() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.state...)
}

// Lit returns the indices of LEDs that are on.
func (f *FakeLEDs) Lit() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var lit []int
	for i, on := range f.state {
		if on {
			lit = append(lit, i)
		}
	}
	return lit
}

// Writes returns the number of successful write operations.
func (f *FakeLEDs) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Closed reports whether Close was called.
func (f *FakeLEDs) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
