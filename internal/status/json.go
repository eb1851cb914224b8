package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string     `json:"event,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	BootID         string     `json:"boot_id"`
	Mode           string     `json:"mode"`
	ModeID         int        `json:"mode_id"`
	LastEvent      string     `json:"last_event"`
	LastTransition string     `json:"last_transition,omitempty"`
	Transitions    uint64     `json:"transitions"`
	Ticks          uint64     `json:"ticks"`
	Ready          bool       `json:"ready"`
	UptimeSeconds  int64      `json:"uptime_seconds"`
	StartTime      string     `json:"start_time"`
	Timestamp      string     `json:"timestamp"`
	MQTT           MQTTStatus `json:"mqtt"`
	Inputs         InputsJSON `json:"inputs"`
	QueueDepth     int        `json:"queue_depth"`
	Config         ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// InputsJSON is the JSON representation of input counters.
type InputsJSON struct {
	Pushed    map[string]uint64 `json:"pushed"`
	Dropped   map[string]uint64 `json:"dropped"`
	Throttled uint64            `json:"throttled"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Variant       string `json:"variant"`
	TickMs        int64  `json:"tick_ms"`
	LockTimeoutMs int64  `json:"lock_timeout_ms"`
	QueueCapacity int    `json:"queue_capacity"`
	DebounceMs    int64  `json:"debounce_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	TopicPrefix   string `json:"topic_prefix"`
	HTTPAddr      string `json:"http_addr"`
	WSBroker      string `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	mode := snap.Mode
	if mode == "" {
		mode = "UNKNOWN"
	}
	inner := StatusInner{
		BootID:        snap.BootID,
		Mode:          mode,
		ModeID:        snap.ModeID,
		LastEvent:     snap.LastEvent,
		Transitions:   snap.Transitions,
		Ticks:         snap.Ticks,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Inputs: InputsJSON{
			Pushed:    nonNil(snap.Inputs.Pushed),
			Dropped:   nonNil(snap.Inputs.Dropped),
			Throttled: snap.Inputs.Throttled,
		},
		QueueDepth: snap.QueueDepth,
		Config: ConfigJSON{
			Variant:       snap.Config.Variant,
			TickMs:        snap.Config.TickMs,
			LockTimeoutMs: snap.Config.LockTimeoutMs,
			QueueCapacity: snap.Config.QueueCapacity,
			DebounceMs:    snap.Config.DebounceMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			TopicPrefix:   snap.Config.TopicPrefix,
			HTTPAddr:      snap.Config.HTTPAddr,
			WSBroker:      snap.Config.WSBroker,
		},
	}
	if !snap.LastTransition.IsZero() {
		inner.LastTransition = snap.LastTransition.UTC().Format(time.RFC3339)
	}
	return inner
}

func nonNil(m map[string]uint64) map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	return m
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
