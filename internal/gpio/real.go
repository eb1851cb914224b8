//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealButtons watches push buttons on the Linux GPIO character device.
// Buttons are wired active-low with the internal pull-up enabled, so a press
// is a logical rising edge.
type RealButtons struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// NewRealButtons requests pins as inputs and calls h for every debounced press.
// A zero debounce leaves debouncing to the caller.
func NewRealButtons(chipName string, pins []int, debounce time.Duration, h PressHandler) (*RealButtons, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	index := make(map[int]int, len(pins))
	for k, pin := range pins {
		index[pin] = k
	}

	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventRisingEdge {
			return
		}
		if k, ok := index[evt.Offset]; ok {
			h(k)
		}
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.AsActiveLow,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	lines, err := chip.RequestLines(pins, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button pins %v: %w", pins, err)
	}

	return &RealButtons{chip: chip, lines: lines}, nil
}

// Close stops edge detection and releases the pins.
func (b *RealButtons) Close() error {
	var errs []error
	if b.lines != nil {
		if err := b.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button lines: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLEDs drives LEDs through GPIO output lines.
type RealLEDs struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealLEDs requests pins as outputs, initially off. activeLow inverts the
// physical level for boards that sink LED current.
func NewRealLEDs(chipName string, pins []int, activeLow bool) (*RealLEDs, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	values := make([]int, len(pins))
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(values...)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	lines, err := chip.RequestLines(pins, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request led pins %v: %w", pins, err)
	}

	return &RealLEDs{chip: chip, lines: lines, values: values}, nil
}

// Set switches a single LED.
func (l *RealLEDs) Set(led int, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if led < 0 || led >= len(l.values) {
		return fmt.Errorf("led %d out of range [0,%d)", led, len(l.values))
	}
	l.values[led] = boolToValue(on)
	return l.flush()
}

// AllOn switches every LED on.
func (l *RealLEDs) AllOn() error {
	return l.setAll(1)
}

// AllOff switches every LED off.
func (l *RealLEDs) AllOff() error {
	return l.setAll(0)
}

func (l *RealLEDs) setAll(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.values {
		l.values[i] = v
	}
	return l.flush()
}

func (l *RealLEDs) flush() error {
	if err := l.lines.SetValues(l.values); err != nil {
		return fmt.Errorf("set led values: %w", err)
	}
	return nil
}

// Count returns the number of LEDs.
func (l *RealLEDs) Count() int {
	return len(l.values)
}

// Close switches the LEDs off and returns the pins to inputs with pull-down,
// matching Pi boot defaults.
func (l *RealLEDs) Close() error {
	var errs []error

	if l.lines != nil {
		if err := l.AllOff(); err != nil {
			errs = append(errs, err)
		}
		if err := l.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure led lines: %w", err))
		}
		if err := l.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led lines: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
