//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealButtons is not available on non-Linux platforms.
type RealButtons struct{}

// NewRealButtons returns an error on non-Linux platforms.
func NewRealButtons(chipName string, pins []int, debounce time.Duration, h PressHandler) (*RealButtons, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (b *RealButtons) Close() error {
	return nil
}

// RealLEDs is not available on non-Linux platforms.
type RealLEDs struct{}

// NewRealLEDs returns an error on non-Linux platforms.
func NewRealLEDs(chipName string, pins []int, activeLow bool) (*RealLEDs, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (l *RealLEDs) Set(led int, on bool) error {
	return errors.New("gpio: not supported")
}

// AllOn is not implemented on non-Linux platforms.
func (l *RealLEDs) AllOn() error {
	return errors.New("gpio: not supported")
}

// AllOff is not implemented on non-Linux platforms.
func (l *RealLEDs) AllOff() error {
	return errors.New("gpio: not supported")
}

// Count returns zero on non-Linux platforms.
func (l *RealLEDs) Count() int {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (l *RealLEDs) Close() error {
	return nil
}
