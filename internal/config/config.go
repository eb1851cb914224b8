// Package config holds the daemon configuration, its defaults and file loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/ledmodes/internal/fsm"
	"github.com/sweeney/ledmodes/internal/gpio"
	"github.com/sweeney/ledmodes/internal/led"
	"github.com/sweeney/ledmodes/internal/modes"
)

// Config is the complete daemon configuration.
type Config struct {
	Variant       string                   `yaml:"variant" toml:"variant"`
	Tick          time.Duration            `yaml:"tick" toml:"tick"`
	Ticks         map[string]time.Duration `yaml:"ticks" toml:"ticks"`
	LockTimeout   time.Duration            `yaml:"lock_timeout" toml:"lock_timeout"`
	QueueCapacity int                      `yaml:"queue_capacity" toml:"queue_capacity"`
	GPIO          GPIO                     `yaml:"gpio" toml:"gpio"`
	Fade          Fade                     `yaml:"fade" toml:"fade"`
	MQTT          MQTT                     `yaml:"mqtt" toml:"mqtt"`
	HTTPAddr      string                   `yaml:"http" toml:"http"`
	Heartbeat     time.Duration            `yaml:"heartbeat" toml:"heartbeat"`
	Log           Log                      `yaml:"log" toml:"log"`
}

// GPIO configures the button and LED pins.
type GPIO struct {
	Chip         string        `yaml:"chip" toml:"chip"`
	Buttons      []int         `yaml:"buttons" toml:"buttons"`
	LEDs         []int         `yaml:"leds" toml:"leds"`
	LEDActiveLow bool          `yaml:"led_active_low" toml:"led_active_low"`
	Debounce     time.Duration `yaml:"debounce" toml:"debounce"`
}

// Fade configures the locked mode's soft-blink.
type Fade struct {
	Frame   time.Duration `yaml:"frame" toml:"frame"`
	Ramp    time.Duration `yaml:"ramp" toml:"ramp"`
	OnTime  time.Duration `yaml:"on_time" toml:"on_time"`
	OffTime time.Duration `yaml:"off_time" toml:"off_time"`
}

// MQTT configures the broker connection and remote commands.
type MQTT struct {
	Broker       string  `yaml:"broker" toml:"broker"`
	ClientID     string  `yaml:"client_id" toml:"client_id"`
	TopicPrefix  string  `yaml:"topic_prefix" toml:"topic_prefix"`
	CommandRate  float64 `yaml:"command_rate" toml:"command_rate"`
	CommandBurst int     `yaml:"command_burst" toml:"command_burst"`
	BufferSize   int     `yaml:"buffer_size" toml:"buffer_size"`
	WSBroker     string  `yaml:"ws_broker" toml:"ws_broker"` // browser live view, empty disables
}

// Log configures logging output.
type Log struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	fade := led.DefaultFadeConfig()
	return Config{
		Variant:       string(modes.Four),
		Tick:          modes.DefaultTick,
		LockTimeout:   modes.DefaultLockTimeout,
		QueueCapacity: fsm.DefaultQueueCapacity,
		GPIO: GPIO{
			Chip:     gpio.DefaultChip,
			Buttons:  append([]int(nil), gpio.DefaultButtonPins...),
			LEDs:     append([]int(nil), gpio.DefaultLEDPins...),
			Debounce: 50 * time.Millisecond,
		},
		Fade: Fade{
			Frame:   fade.Frame,
			Ramp:    fade.Ramp,
			OnTime:  fade.OnTime,
			OffTime: fade.OffTime,
		},
		MQTT: MQTT{
			Broker:       "tcp://192.168.1.200:1883",
			TopicPrefix:  "home/ledmodes",
			CommandRate:  5,
			CommandBurst: 3,
			BufferSize:   100,
		},
		HTTPAddr:  ":80",
		Heartbeat: 15 * time.Minute,
		Log:       Log{Level: "info"},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file on top of base.
// Keys absent from the file keep their base values.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}

	cfg := base
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return base, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return base, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return base, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return base, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. A configuration that passes
// still has to produce a valid transition table at startup.
func (c Config) Validate() error {
	v, err := modes.ParseVariant(c.Variant)
	if err != nil {
		return err
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.Tick)
	}
	for name, d := range c.Ticks {
		if !knownMode(name) {
			return fmt.Errorf("tick override for unknown mode %q", name)
		}
		if d <= 0 {
			return fmt.Errorf("tick for %s must be positive, got %v", name, d)
		}
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %v", c.LockTimeout)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if got, want := len(c.GPIO.Buttons), v.Buttons(); got != want {
		return fmt.Errorf("variant %s needs %d button pins, got %d", v, want, got)
	}
	if got, want := len(c.GPIO.LEDs), len(modes.ClockwiseOrder); got < want {
		return fmt.Errorf("need at least %d led pins, got %d", want, got)
	}
	if err := uniquePins(c.GPIO.Buttons, c.GPIO.LEDs); err != nil {
		return err
	}
	if c.GPIO.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %v", c.GPIO.Debounce)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat)
	}
	if c.MQTT.BufferSize < 1 {
		return fmt.Errorf("mqtt buffer size must be at least 1, got %d", c.MQTT.BufferSize)
	}
	if strings.TrimSpace(c.MQTT.TopicPrefix) == "" {
		return errors.New("mqtt topic prefix must not be empty")
	}
	return nil
}

// ModeSettings converts the timing fields for the mode catalog.
func (c Config) ModeSettings() modes.Settings {
	return modes.Settings{Tick: c.Tick, Ticks: c.Ticks, LockTimeout: c.LockTimeout}
}

// FadeConfig converts the fade fields for the soft-blink driver.
func (c Config) FadeConfig() led.FadeConfig {
	fc := led.DefaultFadeConfig()
	fc.Frame = c.Fade.Frame
	fc.Ramp = c.Fade.Ramp
	fc.OnTime = c.Fade.OnTime
	fc.OffTime = c.Fade.OffTime
	return fc
}

func knownMode(name string) bool {
	switch name {
	case modes.NameClockwise, modes.NameFlash, modes.NameCounterClockwise, modes.NameLocked:
		return true
	}
	return false
}

func uniquePins(groups ...[]int) error {
	seen := make(map[int]bool)
	for _, pins := range groups {
		for _, p := range pins {
			if p < 0 {
				return fmt.Errorf("invalid pin %d", p)
			}
			if seen[p] {
				return fmt.Errorf("pin %d assigned twice", p)
			}
			seen[p] = true
		}
	}
	return nil
}
