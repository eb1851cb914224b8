// Package led drives LED patterns that run independently of the mode loop.
package led

import (
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"github.com/sweeney/ledmodes/internal/gpio"
)

// Mask selects LEDs: bit i is LED i.
type Mask uint

// AllMask selects the first n LEDs.
func AllMask(n int) Mask {
	if n <= 0 {
		return 0
	}
	return Mask(1)<<uint(n) - 1
}

// Has reports whether LED i is selected.
func (m Mask) Has(i int) bool {
	return m&(Mask(1)<<uint(i)) != 0
}

// Len returns the number of selected LEDs.
func (m Mask) Len() int {
	return bits.OnesCount(uint(m))
}

// Fader runs a fade/blink pattern on a set of LEDs.
type Fader interface {
	// Start begins fading the LEDs in mask, replacing any running pattern.
	Start(mask Mask)

	// Stop ends the pattern. No LED writes happen after Stop returns.
	Stop()
}

// FadeConfig shapes one soft-blink cycle: ramp up, hold on, ramp down, hold off.
// Brightness is produced by software PWM with period Frame.
type FadeConfig struct {
	Frame   time.Duration
	Ramp    time.Duration
	OnTime  time.Duration
	OffTime time.Duration
	MaxDuty float64 // 0..1
	MinDuty float64 // 0..1
}

// DefaultFadeConfig returns the board firmware's soft-blink timing.
func DefaultFadeConfig() FadeConfig {
	return FadeConfig{
		Frame:   20 * time.Millisecond,
		Ramp:    time.Second,
		OnTime:  5 * time.Second,
		OffTime: 5 * time.Second,
		MaxDuty: 1,
		MinDuty: 0,
	}
}

func (c FadeConfig) cycle() time.Duration {
	return 2*c.Ramp + c.OnTime + c.OffTime
}

// Duty returns the PWM duty at elapsed time into the pattern.
func (c FadeConfig) Duty(elapsed time.Duration) float64 {
	cycle := c.cycle()
	if cycle <= 0 {
		return c.MaxDuty
	}
	t := elapsed % cycle
	span := c.MaxDuty - c.MinDuty

	switch {
	case t < c.Ramp:
		return c.MinDuty + span*float64(t)/float64(c.Ramp)
	case t < c.Ramp+c.OnTime:
		return c.MaxDuty
	case t < 2*c.Ramp+c.OnTime:
		return c.MaxDuty - span*float64(t-c.Ramp-c.OnTime)/float64(c.Ramp)
	default:
		return c.MinDuty
	}
}

// SoftBlink is a software Fader over gpio.LEDs. The pattern runs on its own
// goroutine; Start and Stop may be called from any goroutine.
type SoftBlink struct {
	leds   gpio.LEDs
	cfg    FadeConfig
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
	mask Mask
}

// NewSoftBlink creates a stopped soft-blink driver.
func NewSoftBlink(leds gpio.LEDs, cfg FadeConfig, logger *slog.Logger) *SoftBlink {
	if cfg.Frame <= 0 {
		cfg.Frame = DefaultFadeConfig().Frame
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SoftBlink{leds: leds, cfg: cfg, logger: logger}
}

// Start begins fading the LEDs in mask.
func (s *SoftBlink) Start(mask Mask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mask = mask
	go s.run(mask, s.stop, s.done)

	s.logger.Debug("fade started", "mask", uint(mask))
}

// Stop ends the pattern and switches the faded LEDs off.
func (s *SoftBlink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked() {
		s.logger.Debug("fade stopped")
	}
}

// Running reports whether a pattern is active.
func (s *SoftBlink) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *SoftBlink) stopLocked() bool {
	if s.stop == nil {
		return false
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
	return true
}

func (s *SoftBlink) run(mask Mask, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.write(mask, false)

	start := time.Now()
	for {
		duty := s.cfg.Duty(time.Since(start))
		on := time.Duration(duty * float64(s.cfg.Frame))

		if on > 0 {
			s.write(mask, true)
			if !wait(stop, on) {
				return
			}
		}
		if on < s.cfg.Frame {
			s.write(mask, false)
			if !wait(stop, s.cfg.Frame-on) {
				return
			}
		}
	}
}

func (s *SoftBlink) write(mask Mask, on bool) {
	for i := 0; i < s.leds.Count(); i++ {
		if !mask.Has(i) {
			continue
		}
		if err := s.leds.Set(i, on); err != nil {
			s.logger.Warn("fade write failed", "led", i, "error", err)
			return
		}
	}
}

// wait sleeps for d and reports false if stop closed first.
func wait(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
