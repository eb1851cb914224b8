// Package input turns button presses, timer expiries and remote commands into
// engine events. Every method is safe to call from any goroutine and never
// blocks: when the queue is full the event is dropped and counted.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/sweeney/ledmodes/internal/fsm"
)

// ErrThrottled is returned by Command when the remote command rate is exceeded.
var ErrThrottled = errors.New("command rate exceeded")

// Source names the producer of an event, for logs and metrics.
type Source string

const (
	SourceButton Source = "button"
	SourceTimer  Source = "timer"
	SourceRemote Source = "remote"
)

// Sink accepts events without blocking. *fsm.Queue implements it.
type Sink interface {
	Push(e fsm.Event) bool
}

// Recorder observes producer outcomes. *metrics.Metrics implements it.
type Recorder interface {
	EventPushed(e fsm.Event, src string)
	EventDropped(e fsm.Event, src string)
	CommandThrottled()
}

// Stats is a point-in-time copy of the adapter counters.
type Stats struct {
	Pushed    map[string]uint64
	Dropped   map[string]uint64
	Throttled uint64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger for the adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithRecorder sets a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Adapter) {
		a.rec = r
	}
}

// WithCommandRate limits remote commands to perSecond with the given burst.
// A non-positive rate disables the limit.
func WithCommandRate(perSecond float64, burst int) Option {
	return func(a *Adapter) {
		if perSecond <= 0 {
			a.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Adapter is the producer side of the event queue.
type Adapter struct {
	sink    Sink
	buttons int
	logger  *slog.Logger
	rec     Recorder
	limiter *rate.Limiter

	pushed    [fsm.Button3 + 1]atomic.Uint64
	dropped   [fsm.Button3 + 1]atomic.Uint64
	throttled atomic.Uint64
	dropping  atomic.Bool // set while a drop storm is in progress
}

// NewAdapter creates an adapter for a board with the given number of buttons.
func NewAdapter(sink Sink, buttons int, opts ...Option) (*Adapter, error) {
	if buttons < 1 || buttons > fsm.MaxButtons {
		return nil, fmt.Errorf("button count %d out of range [1,%d]", buttons, fsm.MaxButtons)
	}
	a := &Adapter{
		sink:    sink,
		buttons: buttons,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Button handles a debounced press of button k. It matches gpio.PressHandler.
func (a *Adapter) Button(k int) {
	if k < 0 || k >= a.buttons {
		a.logger.Warn("press on unmapped button ignored", "button", k)
		return
	}
	e, _ := fsm.ButtonEvent(k)
	a.logger.Info("button pressed", "button", k+1)
	a.push(e, SourceButton)
}

// Timeout handles a timer expiry.
func (a *Adapter) Timeout() {
	a.push(fsm.Timeout, SourceTimer)
}

// Command handles a remote command such as "b1" or "timeout". Names are
// case-insensitive and surrounding whitespace is ignored.
// Unknown names, buttons the board does not have, and commands over the rate
// limit are rejected with an error; a full queue is not an error.
func (a *Adapter) Command(name string) error {
	e, err := fsm.ParseEvent(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return err
	}
	if k, ok := e.Button(); ok && k >= a.buttons {
		return fmt.Errorf("button %s not present on this board", e)
	}
	if !a.limiter.Allow() {
		a.throttled.Add(1)
		if a.rec != nil {
			a.rec.CommandThrottled()
		}
		return ErrThrottled
	}
	a.push(e, SourceRemote)
	return nil
}

func (a *Adapter) push(e fsm.Event, src Source) bool {
	if a.sink.Push(e) {
		a.pushed[e].Add(1)
		if a.rec != nil {
			a.rec.EventPushed(e, string(src))
		}
		if a.dropping.Swap(false) {
			a.logger.Info("event queue accepting again", "event", e.String())
		}
		return true
	}

	a.dropped[e].Add(1)
	if a.rec != nil {
		a.rec.EventDropped(e, string(src))
	}
	if !a.dropping.Swap(true) {
		a.logger.Warn("event queue full, dropping event", "event", e.String(), "source", string(src))
	}
	return false
}

// Stats returns the adapter counters.
func (a *Adapter) Stats() Stats {
	s := Stats{
		Pushed:    make(map[string]uint64),
		Dropped:   make(map[string]uint64),
		Throttled: a.throttled.Load(),
	}
	for e := fsm.Timeout; e <= fsm.Button3; e++ {
		if n := a.pushed[e].Load(); n > 0 {
			s.Pushed[e.String()] = n
		}
		if n := a.dropped[e].Load(); n > 0 {
			s.Dropped[e.String()] = n
		}
	}
	return s
}
