// Package modes defines the LED operating modes and the two board variants
// that combine them.
package modes

import (
	"log/slog"
	"time"

	"github.com/sweeney/ledmodes/internal/gpio"
	"github.com/sweeney/ledmodes/internal/led"
	"github.com/sweeney/ledmodes/internal/timer"
)

// LED visiting orders for the 2x2 LED block.
var (
	ClockwiseOrder        = []int{0, 1, 3, 2}
	CounterClockwiseOrder = []int{0, 2, 3, 1}
)

// rotation lights one LED at a time, advancing once per tick. The position
// persists across activations.
type rotation struct {
	name   string
	order  []int
	pos    int
	leds   gpio.LEDs
	logger *slog.Logger
}

func (r *rotation) Enter() {
	r.logger.Info("state entered", "state", r.name)
}

func (r *rotation) Act() {
	if err := r.leds.AllOff(); err != nil {
		r.logger.Warn("led write failed", "state", r.name, "error", err)
		return
	}
	if err := r.leds.Set(r.order[r.pos], true); err != nil {
		r.logger.Warn("led write failed", "state", r.name, "error", err)
	}
	r.pos = (r.pos + 1) % len(r.order)
}

func (r *rotation) Exit() {
	r.logger.Info("state exited", "state", r.name)
}

// flash blinks every LED together, toggling once per tick.
type flash struct {
	name   string
	on     bool
	leds   gpio.LEDs
	logger *slog.Logger
}

func (f *flash) Enter() {
	f.logger.Info("state entered", "state", f.name)
}

func (f *flash) Act() {
	var err error
	if f.on {
		err = f.leds.AllOff()
	} else {
		err = f.leds.AllOn()
	}
	if err != nil {
		f.logger.Warn("led write failed", "state", f.name, "error", err)
		return
	}
	f.on = !f.on
}

func (f *flash) Exit() {
	f.logger.Info("state exited", "state", f.name)
}

// locked hands the LEDs to the fading driver and arms the unlock timeout.
// Entering again on an ignored button keeps the running window.
type locked struct {
	name    string
	timeout time.Duration
	leds    gpio.LEDs
	fader   led.Fader
	timer   timer.Service
	logger  *slog.Logger
}

func (l *locked) Enter() {
	l.logger.Info("state entered", "state", l.name, "timeout", l.timeout)
	if err := l.leds.AllOff(); err != nil {
		l.logger.Warn("led write failed", "state", l.name, "error", err)
	}
	l.fader.Start(led.AllMask(l.leds.Count()))
	if !l.timer.Armed() {
		l.timer.Arm(l.timeout)
	}
}

// Act does nothing: the fader runs on its own.
func (l *locked) Act() {}

// Exit leaves a pending countdown alone: the only way out of the locked mode
// is its expiry, and a re-entry keeps the window opened by the first lock.
func (l *locked) Exit() {
	l.fader.Stop()
	l.logger.Info("state exited", "state", l.name)
}
