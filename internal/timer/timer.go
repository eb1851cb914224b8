// Package timer provides the one-shot countdown used for mode timeouts.
package timer

import (
	"log/slog"
	"sync"
	"time"
)

// Service is a re-armable single-shot countdown.
type Service interface {
	// Arm starts (or restarts) the countdown. Exactly one fire follows,
	// unless Arm or Disarm is called again first.
	Arm(d time.Duration)

	// Disarm cancels a pending countdown. No-op if none is pending.
	Disarm()

	// Armed reports whether a countdown is pending.
	Armed() bool
}

// OneShot implements Service on top of time.AfterFunc. The fire callback runs
// on the timer's own goroutine.
type OneShot struct {
	mu     sync.Mutex
	fire   func()
	t      *time.Timer
	gen    uint64 // bumped on every Arm/Disarm so a superseded timer never fires
	armed  bool
	logger *slog.Logger
}

// NewOneShot creates a countdown that calls fire when it expires.
func NewOneShot(fire func(), logger *slog.Logger) *OneShot {
	if logger == nil {
		logger = slog.Default()
	}
	return &OneShot{fire: fire, logger: logger}
}

// Arm starts the countdown, replacing any pending one.
func (o *OneShot) Arm(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.t != nil {
		o.t.Stop()
	}
	o.gen++
	gen := o.gen
	o.armed = true
	o.t = time.AfterFunc(d, func() { o.expire(gen) })

	o.logger.Debug("timer armed", "duration", d)
}

func (o *OneShot) expire(gen uint64) {
	o.mu.Lock()
	if gen != o.gen || !o.armed {
		// Re-armed or disarmed after this timer was already running.
		o.mu.Unlock()
		return
	}
	o.armed = false
	o.t = nil
	o.mu.Unlock()

	o.logger.Debug("timer fired")
	o.fire()
}

// Disarm cancels a pending countdown.
func (o *OneShot) Disarm() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.armed {
		return
	}
	if o.t != nil {
		o.t.Stop()
		o.t = nil
	}
	o.gen++
	o.armed = false
	o.logger.Debug("timer disarmed")
}

// Armed reports whether a countdown is pending.
func (o *OneShot) Armed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.armed
}
