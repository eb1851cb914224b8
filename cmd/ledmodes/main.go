// Command ledmodes drives a board of LEDs through button-selected display
// modes and reports mode changes over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/ledmodes/internal/config"
	"github.com/sweeney/ledmodes/internal/fsm"
	"github.com/sweeney/ledmodes/internal/gpio"
	"github.com/sweeney/ledmodes/internal/input"
	"github.com/sweeney/ledmodes/internal/led"
	"github.com/sweeney/ledmodes/internal/logging"
	"github.com/sweeney/ledmodes/internal/metrics"
	"github.com/sweeney/ledmodes/internal/modes"
	"github.com/sweeney/ledmodes/internal/mqtt"
	"github.com/sweeney/ledmodes/internal/status"
	"github.com/sweeney/ledmodes/internal/timer"
	"github.com/sweeney/ledmodes/internal/web"
)

func main() {
	opts, set, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	cfg, err := loadConfig(opts, set)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	if opts.printConfig {
		if err := printConfig(os.Stdout, cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	os.Exit(serve(cfg, run))
}

// serve installs logging, runs start and returns the process exit code. The
// log file is closed before serve returns, also on failure.
func serve(cfg config.Config, start func(config.Config, *slog.Logger) error) int {
	logger, closer, err := logging.Setup(logging.Options{
		Service: "ledmodes",
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	if err != nil {
		log.Printf("fatal: %v", err)
		return 1
	}
	defer closer.Close()

	if err := start(cfg, logger); err != nil {
		log.Printf("fatal: %v", err)
		return 1
	}
	return 0
}

// transitionBuffer bounds the hand-off from the engine to the publisher.
const transitionBuffer = 32

// daemon wires the engine to its observers. Engine hooks run on the engine
// goroutine and only record; publishing happens on the runLoop goroutine.
type daemon struct {
	engine     *fsm.Engine
	table      *fsm.Table
	queue      *fsm.Queue
	adapter    *input.Adapter
	countdown  *timer.OneShot
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	bootID     string
	now        func() time.Time

	transitions chan fsm.Transition
}

// hardware is what the modes drive.
type hardware struct {
	leds  gpio.LEDs
	fader led.Fader
}

// newDaemon builds the queue, input adapter, countdown, mode table and
// engine. A publisher must be attached with setPublisher before runLoop.
func newDaemon(cfg config.Config, hw hardware, bootID string, logger *slog.Logger) (*daemon, error) {
	v, err := modes.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		queue:       fsm.NewQueue(cfg.QueueCapacity),
		metrics:     metrics.New(),
		bootID:      bootID,
		now:         time.Now,
		transitions: make(chan fsm.Transition, transitionBuffer),
	}

	d.adapter, err = input.NewAdapter(d.queue, v.Buttons(),
		input.WithLogger(logger),
		input.WithRecorder(d.metrics),
		input.WithCommandRate(cfg.MQTT.CommandRate, cfg.MQTT.CommandBurst),
	)
	if err != nil {
		return nil, err
	}
	d.countdown = timer.NewOneShot(d.adapter.Timeout, logger)

	d.table, err = modes.Build(v, modes.Deps{
		LEDs:   hw.leds,
		Fader:  hw.fader,
		Timer:  d.countdown,
		Logger: logger,
	}, cfg.ModeSettings())
	if err != nil {
		return nil, fmt.Errorf("build modes: %w", err)
	}

	d.tracker = status.NewTracker(d.now(), bootID, statusConfig(cfg))
	d.engine = fsm.NewEngine(d.table, d.queue,
		fsm.WithLogger(logger),
		fsm.WithTransitionHook(d.onTransition),
		fsm.WithTickHook(d.onTick),
	)
	return d, nil
}

func (d *daemon) setPublisher(p mqtt.Publisher) {
	d.publisher = p
	d.mqttStatus = nil
	if cs, ok := p.(mqtt.ConnectionStatus); ok {
		d.mqttStatus = cs
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Variant:       cfg.Variant,
		TickMs:        cfg.Tick.Milliseconds(),
		LockTimeoutMs: cfg.LockTimeout.Milliseconds(),
		QueueCapacity: cfg.QueueCapacity,
		DebounceMs:    cfg.GPIO.Debounce.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		TopicPrefix:   cfg.MQTT.TopicPrefix,
		HTTPAddr:      cfg.HTTPAddr,
		WSBroker:      cfg.MQTT.WSBroker,
	}
}

func (d *daemon) stateName(id fsm.StateID) string {
	if s, ok := d.table.State(id); ok {
		return s.Name
	}
	return fmt.Sprintf("state-%d", id)
}

func (d *daemon) onTransition(tr fsm.Transition) {
	from, to := d.stateName(tr.From), d.stateName(tr.To)
	d.tracker.RecordTransition(to, int(tr.To), tr.Event.String(), d.now())
	d.metrics.Transition(from, to, tr.To)

	select {
	case d.transitions <- tr:
	default:
		log.Printf("transition backlog full, not publishing %s -> %s", from, to)
	}
}

func (d *daemon) onTick(id fsm.StateID) {
	d.tracker.RecordTick()
	d.metrics.Tick(d.stateName(id))
	d.refresh()
}

// refresh copies the queue depth, input counters and connection state into
// the tracker and gauges.
func (d *daemon) refresh() {
	depth := d.queue.Len()
	d.metrics.SetQueueDepth(depth)
	d.tracker.SetQueueDepth(depth)

	stats := d.adapter.Stats()
	d.tracker.SetInputs(status.InputCounts{
		Pushed:    stats.Pushed,
		Dropped:   stats.Dropped,
		Throttled: stats.Throttled,
	})
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) publishTransition(tr fsm.Transition) {
	event := mqtt.TransitionEvent{
		Timestamp: d.now(),
		From:      d.stateName(tr.From),
		To:        d.stateName(tr.To),
		Trigger:   tr.Event.String(),
		Initial:   tr.Initial,
	}
	if err := d.publisher.Publish(event); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
}

func (d *daemon) publishSystem(name, reason string, retained bool) {
	d.refresh()
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      name,
		Reason:     reason,
		BootID:     d.bootID,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, name, reason),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", name, err)
		return
	}
	log.Printf("published %s event", name)
}

func run(cfg config.Config, logger *slog.Logger) error {
	bootID := uuid.NewString()

	leds, err := gpio.NewRealLEDs(cfg.GPIO.Chip, cfg.GPIO.LEDs, cfg.GPIO.LEDActiveLow)
	if err != nil {
		return fmt.Errorf("init leds: %w", err)
	}
	defer leds.Close()

	d, err := newDaemon(cfg, hardware{
		leds:  leds,
		fader: led.NewSoftBlink(leds, cfg.FadeConfig(), logger),
	}, bootID, logger)
	if err != nil {
		return err
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "ledmodes-" + bootID[:8]
	}
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   clientID,
		Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		BootID:     bootID,
		BufferSize: cfg.MQTT.BufferSize,
		OnCommand:  d.adapter.Command,
		OnPublish:  d.metrics.Published,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	d.setPublisher(publisher)

	buttons, err := gpio.NewRealButtons(cfg.GPIO.Chip, cfg.GPIO.Buttons, cfg.GPIO.Debounce, d.adapter.Button)
	if err != nil {
		return fmt.Errorf("init buttons: %w", err)
	}
	defer buttons.Close()

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, d.tracker, d.metrics, d.adapter.Command)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: variant=%s tick=%v broker=%s heartbeat=%v boot=%s",
		cfg.Variant, cfg.Tick, cfg.MQTT.Broker, cfg.Heartbeat, bootID)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(d, heartbeat, sigCh)
}

// runLoop runs the engine until a signal arrives, publishing transitions and
// lifecycle events as they happen.
func runLoop(d *daemon, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The locked mode leaves its countdown running across exits.
	defer d.countdown.Disarm()

	done := make(chan error, 1)
	go func() { done <- d.engine.Run(ctx) }()

	d.publishSystem(mqtt.EventStartup, "", true)

	for {
		select {
		case tr := <-d.transitions:
			d.publishTransition(tr)

		case <-heartbeat:
			snap := d.tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v mode=%s transitions=%d",
				snap.Uptime().Truncate(time.Second), snap.Mode, snap.Transitions)
			d.publishSystem(mqtt.EventHeartbeat, "", false)

		case err := <-done:
			return fmt.Errorf("engine stopped: %w", err)

		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			cancel()
			<-done
			d.drainTransitions()
			d.publishSystem(mqtt.EventShutdown, signalName(s), true)
			return nil
		}
	}
}

func (d *daemon) drainTransitions() {
	for {
		select {
		case tr := <-d.transitions:
			d.publishTransition(tr)
		default:
			return
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// printConfig writes the effective configuration and the validated
// transition table. No hardware is touched.
func printConfig(w io.Writer, cfg config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return err
	}

	v, err := modes.ParseVariant(cfg.Variant)
	if err != nil {
		return err
	}
	leds := gpio.NewFakeLEDs(len(cfg.GPIO.LEDs))
	table, err := modes.Build(v, modes.Deps{
		LEDs:   leds,
		Fader:  led.NewSoftBlink(leds, cfg.FadeConfig(), nil),
		Timer:  timer.NewOneShot(func() {}, nil),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg.ModeSettings())
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n# transitions (%s)\n", v)
	for _, r := range table.Rules() {
		from, _ := table.State(r.From)
		to, _ := table.State(r.To)
		fmt.Fprintf(w, "%-18s %-8s -> %s\n", from.Name, r.Event, to.Name)
	}
	return nil
}
