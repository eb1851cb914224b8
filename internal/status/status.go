// Package status provides a thread-safe status tracker for the ledmodes daemon.
// It is written by engine hooks and read by HTTP handlers and heartbeats.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	Variant       string
	TickMs        int64
	LockTimeoutMs int64
	QueueCapacity int
	DebounceMs    int64
	HeartbeatMs   int64
	Broker        string
	TopicPrefix   string
	HTTPAddr      string
	WSBroker      string // Websocket broker URL for browser MQTT (empty = disabled)
}

// InputCounts mirrors the input adapter counters. This is a local copy to
// avoid importing internal/input from status.
type InputCounts struct {
	Pushed    map[string]uint64
	Dropped   map[string]uint64
	Throttled uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID         string
	Ready          bool // initial activation done
	Mode           string
	ModeID         int
	LastEvent      string
	LastTransition time.Time
	Transitions    uint64
	Ticks          uint64 // Act calls in the current activation
	Inputs         InputCounts
	QueueDepth     int
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordTransition notes a mode activation. Called from the engine's
// transition hook.
func (t *Tracker) RecordTransition(to string, toID int, event string, at time.Time) {
	t.mu.Lock()
	t.snap.Ready = true
	t.snap.Mode = to
	t.snap.ModeID = toID
	t.snap.LastEvent = event
	t.snap.LastTransition = at
	t.snap.Transitions++
	t.snap.Ticks = 0
	t.mu.Unlock()
}

// RecordTick counts one Act of the current mode.
func (t *Tracker) RecordTick() {
	t.mu.Lock()
	t.snap.Ticks++
	t.mu.Unlock()
}

// SetInputs replaces the input counters.
func (t *Tracker) SetInputs(c InputCounts) {
	t.mu.Lock()
	t.snap.Inputs = c
	t.mu.Unlock()
}

// SetQueueDepth records the number of queued events.
func (t *Tracker) SetQueueDepth(n int) {
	t.mu.Lock()
	t.snap.QueueDepth = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Inputs = InputCounts{
		Pushed:    copyCounts(t.snap.Inputs.Pushed),
		Dropped:   copyCounts(t.snap.Inputs.Dropped),
		Throttled: t.snap.Inputs.Throttled,
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
