package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
	if cfg.Tick != 200*time.Millisecond {
		t.Errorf("Tick: got %v, want 200ms", cfg.Tick)
	}
	if cfg.LockTimeout != 10*time.Second {
		t.Errorf("LockTimeout: got %v, want 10s", cfg.LockTimeout)
	}
	if cfg.QueueCapacity != 10 {
		t.Errorf("QueueCapacity: got %d, want 10", cfg.QueueCapacity)
	}
	if cfg.GPIO.Debounce != 50*time.Millisecond {
		t.Errorf("Debounce: got %v, want 50ms", cfg.GPIO.Debounce)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ledmodes.yaml", `
variant: three
tick: 100ms
ticks:
  flash: 300ms
gpio:
  buttons: [23, 24]
mqtt:
  topic_prefix: lab/leds
log:
  level: debug
`)

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Variant != "three" {
		t.Errorf("Variant: got %q, want three", cfg.Variant)
	}
	if cfg.Tick != 100*time.Millisecond {
		t.Errorf("Tick: got %v, want 100ms", cfg.Tick)
	}
	if cfg.Ticks["flash"] != 300*time.Millisecond {
		t.Errorf("Ticks[flash]: got %v, want 300ms", cfg.Ticks["flash"])
	}
	if len(cfg.GPIO.Buttons) != 2 || cfg.GPIO.Buttons[0] != 23 {
		t.Errorf("Buttons: got %v, want [23 24]", cfg.GPIO.Buttons)
	}
	if cfg.MQTT.TopicPrefix != "lab/leds" {
		t.Errorf("TopicPrefix: got %q", cfg.MQTT.TopicPrefix)
	}
	// Untouched keys keep their defaults
	if cfg.LockTimeout != 10*time.Second {
		t.Errorf("LockTimeout: got %v, want default 10s", cfg.LockTimeout)
	}
	if cfg.GPIO.Chip != "gpiochip0" {
		t.Errorf("Chip: got %q, want default", cfg.GPIO.Chip)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "ledmodes.toml", `
variant = "four"
lock_timeout = "30s"
queue_capacity = 16

[gpio]
leds = [5, 6, 13, 19, 26]
led_active_low = true

[mqtt]
broker = "tcp://localhost:1883"
command_rate = 1.5
`)

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout: got %v, want 30s", cfg.LockTimeout)
	}
	if cfg.QueueCapacity != 16 {
		t.Errorf("QueueCapacity: got %d, want 16", cfg.QueueCapacity)
	}
	if len(cfg.GPIO.LEDs) != 5 || !cfg.GPIO.LEDActiveLow {
		t.Errorf("GPIO: got %+v", cfg.GPIO)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.CommandRate != 1.5 {
		t.Errorf("MQTT: got %+v", cfg.MQTT)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEmptyYAMLKeepsBase(t *testing.T) {
	path := writeFile(t, "empty.yml", "")
	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tick != Default().Tick {
		t.Errorf("Tick: got %v, want default", cfg.Tick)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	yamlPath := writeFile(t, "bad.yaml", "tik: 100ms\n")
	if _, err := Load(yamlPath, Default()); err == nil {
		t.Error("yaml: expected error for unknown key")
	}

	tomlPath := writeFile(t, "bad.toml", "tik = \"100ms\"\n")
	if _, err := Load(tomlPath, Default()); err == nil {
		t.Error("toml: expected error for unknown key")
	}
}

func TestLoadRejectsExtension(t *testing.T) {
	path := writeFile(t, "ledmodes.json", "{}")
	_, err := Load(path, Default())
	if err == nil || !strings.Contains(err.Error(), "unsupported extension") {
		t.Errorf("expected unsupported extension error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Default()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad variant", func(c *Config) { c.Variant = "five" }, "variant"},
		{"zero tick", func(c *Config) { c.Tick = 0 }, "tick must be positive"},
		{"unknown tick override", func(c *Config) {
			c.Ticks = map[string]time.Duration{"strobe": time.Second}
		}, "unknown mode"},
		{"negative tick override", func(c *Config) {
			c.Ticks = map[string]time.Duration{"flash": -time.Second}
		}, "tick for flash"},
		{"zero lock timeout", func(c *Config) { c.LockTimeout = 0 }, "lock timeout"},
		{"zero queue", func(c *Config) { c.QueueCapacity = 0 }, "queue capacity"},
		{"button arity", func(c *Config) { c.GPIO.Buttons = []int{17, 27} }, "needs 3 button pins"},
		{"too few leds", func(c *Config) { c.GPIO.LEDs = []int{5, 6, 13} }, "at least 4 led pins"},
		{"pin reused", func(c *Config) { c.GPIO.LEDs = []int{5, 6, 13, 17} }, "pin 17 assigned twice"},
		{"negative pin", func(c *Config) { c.GPIO.LEDs = []int{5, 6, 13, -1} }, "invalid pin"},
		{"negative debounce", func(c *Config) { c.GPIO.Debounce = -time.Millisecond }, "debounce"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "heartbeat"},
		{"zero buffer", func(c *Config) { c.MQTT.BufferSize = 0 }, "buffer size"},
		{"blank prefix", func(c *Config) { c.MQTT.TopicPrefix = "  " }, "topic prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestModeSettingsAndFade(t *testing.T) {
	cfg := Default()
	cfg.Ticks = map[string]time.Duration{"locked": time.Second}
	cfg.Fade.Ramp = 2 * time.Second

	s := cfg.ModeSettings()
	if s.Tick != cfg.Tick || s.LockTimeout != cfg.LockTimeout || s.Ticks["locked"] != time.Second {
		t.Errorf("ModeSettings: got %+v", s)
	}

	fc := cfg.FadeConfig()
	if fc.Ramp != 2*time.Second {
		t.Errorf("FadeConfig.Ramp: got %v, want 2s", fc.Ramp)
	}
	if fc.MaxDuty != 1 {
		t.Errorf("FadeConfig.MaxDuty: got %v, want 1", fc.MaxDuty)
	}
}
