// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// Topic suffixes appended to the configured prefix.
const (
	SuffixEvents  = "events"
	SuffixSystem  = "system"
	SuffixCommand = "command"
)

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
	EventTransition  = "TRANSITION"
)

// Topics holds the fully qualified topic names for one device.
type Topics struct {
	Events  string
	System  string
	Command string
}

// NewTopics builds the topic set under prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	return Topics{
		Events:  prefix + "/" + SuffixEvents,
		System:  prefix + "/" + SuffixSystem,
		Command: prefix + "/" + SuffixCommand,
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a mode transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event TransitionEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives the payload of a message on the command topic,
// e.g. "b1" or "timeout".
type CommandHandler func(name string) error

// TransitionEvent is one mode activation.
type TransitionEvent struct {
	Timestamp time.Time
	From      string
	To        string
	Trigger   string // event that caused it; "none" for the initial activation
	Initial   bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	BootID     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Mode ModePayload `json:"mode"`
}

// ModePayload contains the transition details.
type ModePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Trigger   string `json:"trigger"`
	From      string `json:"from"`
	To        string `json:"to"`
	Initial   bool   `json:"initial,omitempty"`
}

// FormatPayload creates the JSON payload for a mode transition.
func FormatPayload(event TransitionEvent) ([]byte, error) {
	payload := Payload{
		Mode: ModePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventTransition,
			Trigger:   event.Trigger,
			From:      event.From,
			To:        event.To,
			Initial:   event.Initial,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			BootID:    event.BootID,
		},
	}
	return json.Marshal(payload)
}
