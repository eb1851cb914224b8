package led

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sweeney/ledmodes/internal/gpio"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllMask(t *testing.T) {
	m := AllMask(4)
	if m != 0b1111 {
		t.Errorf("AllMask(4): got %b, want 1111", m)
	}
	if m.Len() != 4 {
		t.Errorf("Len: got %d, want 4", m.Len())
	}
	if !m.Has(3) || m.Has(4) {
		t.Errorf("Has: unexpected membership for %b", m)
	}
	if AllMask(0) != 0 {
		t.Errorf("AllMask(0): got %b, want 0", AllMask(0))
	}
}

func TestFadeConfigDuty(t *testing.T) {
	cfg := FadeConfig{
		Frame:   10 * time.Millisecond,
		Ramp:    100 * time.Millisecond,
		OnTime:  200 * time.Millisecond,
		OffTime: 300 * time.Millisecond,
		MaxDuty: 1,
		MinDuty: 0,
	}

	cases := []struct {
		at   time.Duration
		want float64
	}{
		{0, 0},
		{50 * time.Millisecond, 0.5},
		{100 * time.Millisecond, 1},
		{250 * time.Millisecond, 1},
		{350 * time.Millisecond, 0.5},
		{400 * time.Millisecond, 0},
		{600 * time.Millisecond, 0},
		{700 * time.Millisecond, 0}, // next cycle starts
		{750 * time.Millisecond, 0.5},
	}
	for _, c := range cases {
		if got := cfg.Duty(c.at); got != c.want {
			t.Errorf("Duty(%v): got %v, want %v", c.at, got, c.want)
		}
	}
}

func TestFadeConfigDutyZeroCycle(t *testing.T) {
	cfg := FadeConfig{MaxDuty: 0.8}
	if got := cfg.Duty(time.Second); got != 0.8 {
		t.Errorf("Duty: got %v, want 0.8", got)
	}
}

func TestSoftBlinkTogglesLEDs(t *testing.T) {
	leds := gpio.NewFakeLEDs(4)
	cfg := FadeConfig{
		Frame:   2 * time.Millisecond,
		Ramp:    10 * time.Millisecond,
		OnTime:  5 * time.Millisecond,
		OffTime: 5 * time.Millisecond,
		MaxDuty: 1,
	}
	s := NewSoftBlink(leds, cfg, quiet())

	s.Start(AllMask(4))
	if !s.Running() {
		t.Error("expected Running() after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for leds.Writes() < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	if leds.Writes() < 10 {
		t.Fatalf("Writes: got %d, want at least 10", leds.Writes())
	}
	if s.Running() {
		t.Error("expected not Running() after Stop")
	}
	if lit := leds.Lit(); len(lit) != 0 {
		t.Errorf("LEDs lit after Stop: %v", lit)
	}

	// No writes after Stop returns
	after := leds.Writes()
	time.Sleep(20 * time.Millisecond)
	if leds.Writes() != after {
		t.Errorf("Writes after Stop: got %d, want %d", leds.Writes(), after)
	}
}

func TestSoftBlinkOnlyTouchesMask(t *testing.T) {
	leds := gpio.NewFakeLEDs(4)
	leds.Set(3, true)
	cfg := FadeConfig{Frame: time.Millisecond, Ramp: time.Millisecond, OnTime: time.Millisecond, OffTime: time.Millisecond, MaxDuty: 1}
	s := NewSoftBlink(leds, cfg, quiet())

	s.Start(Mask(0b0011))
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	state := leds.State()
	if !state[3] {
		t.Error("LED 3 is outside the mask and should be untouched")
	}
	if state[0] || state[1] {
		t.Errorf("masked LEDs should be off after Stop: %v", state)
	}
}

func TestSoftBlinkRestart(t *testing.T) {
	leds := gpio.NewFakeLEDs(4)
	s := NewSoftBlink(leds, FadeConfig{Frame: time.Millisecond, Ramp: time.Millisecond, MaxDuty: 1}, quiet())

	s.Start(AllMask(4))
	s.Start(AllMask(2))
	if !s.Running() {
		t.Error("expected Running() after restart")
	}
	s.Stop()
	s.Stop() // idempotent
}
