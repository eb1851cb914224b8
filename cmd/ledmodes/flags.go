package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/sweeney/ledmodes/internal/config"
)

// pinList is a comma-separated list of BCM pin numbers.
type pinList []int

func (p *pinList) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, len(*p))
	for i, n := range *p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (p *pinList) Set(s string) error {
	var pins []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid pin %q", part)
		}
		pins = append(pins, n)
	}
	*p = pins
	return nil
}

// options holds everything main reads from the command line.
type options struct {
	configPath  string
	printConfig bool
	wsBroker    string
	cfg         config.Config
}

// parseFlags defines the flags on fs with defaults from config.Default and
// parses args.
func parseFlags(fs *flag.FlagSet, args []string) (options, map[string]bool, error) {
	opts := options{cfg: config.Default()}
	c := &opts.cfg

	fs.StringVar(&opts.configPath, "config", "", "YAML or TOML config file; flags set explicitly override it")
	fs.BoolVar(&opts.printConfig, "print-config", false, "Print effective config and transition table and exit")
	fs.StringVar(&opts.wsBroker, "ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	fs.StringVar(&c.Variant, "variant", c.Variant, `Mode set: "three" (2 buttons) or "four" (3 buttons, locked mode)`)
	fs.DurationVar(&c.Tick, "tick", c.Tick, "Mode tick interval")
	fs.DurationVar(&c.LockTimeout, "lock-timeout", c.LockTimeout, "Locked mode timeout")
	fs.IntVar(&c.QueueCapacity, "queue", c.QueueCapacity, "Event queue capacity")
	fs.StringVar(&c.GPIO.Chip, "chip", c.GPIO.Chip, "GPIO character device")
	fs.Var((*pinList)(&c.GPIO.Buttons), "buttons", "BCM pins for buttons b1,b2[,b3]")
	fs.Var((*pinList)(&c.GPIO.LEDs), "leds", "BCM pins for LEDs 0..3")
	fs.BoolVar(&c.GPIO.LEDActiveLow, "led-active-low", c.GPIO.LEDActiveLow, "LEDs are lit by driving the pin low")
	fs.DurationVar(&c.GPIO.Debounce, "debounce", c.GPIO.Debounce, "Button debounce period")
	fs.StringVar(&c.MQTT.Broker, "broker", c.MQTT.Broker, "MQTT broker address")
	fs.StringVar(&c.MQTT.ClientID, "client-id", c.MQTT.ClientID, "MQTT client id (empty derives one from the boot id)")
	fs.StringVar(&c.MQTT.TopicPrefix, "topic-prefix", c.MQTT.TopicPrefix, "MQTT topic prefix")
	fs.Float64Var(&c.MQTT.CommandRate, "command-rate", c.MQTT.CommandRate, "Remote commands per second (0 for unlimited)")
	fs.IntVar(&c.MQTT.CommandBurst, "command-burst", c.MQTT.CommandBurst, "Remote command burst")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level: debug, info, warn, error")
	fs.StringVar(&c.Log.File, "log-file", c.Log.File, "Log file (empty logs to stdout)")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return opts, set, nil
}

// applyFlags copies the explicitly set flag values from src onto dst.
func applyFlags(dst *config.Config, src config.Config, set map[string]bool) {
	for name := range set {
		switch name {
		case "variant":
			dst.Variant = src.Variant
		case "tick":
			dst.Tick = src.Tick
		case "lock-timeout":
			dst.LockTimeout = src.LockTimeout
		case "queue":
			dst.QueueCapacity = src.QueueCapacity
		case "chip":
			dst.GPIO.Chip = src.GPIO.Chip
		case "buttons":
			dst.GPIO.Buttons = src.GPIO.Buttons
		case "leds":
			dst.GPIO.LEDs = src.GPIO.LEDs
		case "led-active-low":
			dst.GPIO.LEDActiveLow = src.GPIO.LEDActiveLow
		case "debounce":
			dst.GPIO.Debounce = src.GPIO.Debounce
		case "broker":
			dst.MQTT.Broker = src.MQTT.Broker
		case "client-id":
			dst.MQTT.ClientID = src.MQTT.ClientID
		case "topic-prefix":
			dst.MQTT.TopicPrefix = src.MQTT.TopicPrefix
		case "command-rate":
			dst.MQTT.CommandRate = src.MQTT.CommandRate
		case "command-burst":
			dst.MQTT.CommandBurst = src.MQTT.CommandBurst
		case "http":
			dst.HTTPAddr = src.HTTPAddr
		case "heartbeat":
			dst.Heartbeat = src.Heartbeat
		case "log-level":
			dst.Log.Level = src.Log.Level
		case "log-file":
			dst.Log.File = src.Log.File
		}
	}
}

// loadConfig resolves the effective configuration: defaults, then the config
// file if any, then explicitly set flags.
func loadConfig(opts options, set map[string]bool) (config.Config, error) {
	cfg := opts.cfg
	if opts.configPath != "" {
		fileCfg, err := config.Load(opts.configPath, config.Default())
		if err != nil {
			return cfg, err
		}
		applyFlags(&fileCfg, opts.cfg, set)
		cfg = fileCfg
	}
	if set["ws-broker"] || cfg.MQTT.WSBroker == "" {
		cfg.MQTT.WSBroker = resolveWSBroker(opts.wsBroker, cfg.MQTT.Broker)
	}
	return cfg, nil
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
