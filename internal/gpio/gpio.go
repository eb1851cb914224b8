// Package gpio provides button and LED access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// PressHandler is called once per debounced press of logical button k
// (zero-based, in pin order). It runs on the GPIO event goroutine and must
// not block.
type PressHandler func(k int)

// Buttons delivers debounced presses to the PressHandler given at construction.
type Buttons interface {
	// Close stops event delivery and releases GPIO resources.
	Close() error
}

// LEDs drives the board LEDs, indexed from 0.
type LEDs interface {
	// Set switches a single LED.
	Set(led int, on bool) error

	// AllOn switches every LED on.
	AllOn() error

	// AllOff switches every LED off.
	AllOff() error

	// Count returns the number of LEDs.
	Count() int

	// Close switches LEDs off and releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Default pin assignments (BCM numbering).
var (
	DefaultButtonPins = []int{17, 27, 22}
	DefaultLEDPins    = []int{5, 6, 13, 19}
)
