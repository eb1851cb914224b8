package mqtt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BootID     string
	BufferSize int
	OnCommand  CommandHandler
	OnPublish  func(err error) // called after every publish attempt, may be nil
	Logger     *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	bootID    string
	onCommand CommandHandler
	onPublish func(err error)
	logger    *slog.Logger
	now       func() time.Time

	// mu guards the buffer and the connection flags. publish decides between
	// sending and buffering under mu; connected turns true only once
	// onConnect finds the buffer empty under mu.
	mu           sync.Mutex
	buf          *ringBuffer
	connected    bool
	hasConnected bool
}

// NewRealPublisher creates a publisher for the given broker. The initial
// connection is retried in the background; messages published before it
// succeeds are buffered and replayed.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	p := newPublisher(opts)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventOffline,
		Reason:    "MQTT_DISCONNECT",
		BootID:    opts.BootID,
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.logger.Warn("mqtt broker not reachable yet, buffering", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(opts Options) *RealPublisher {
	size := opts.BufferSize
	if size < 1 {
		size = DefaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RealPublisher{
		topics:    opts.Topics,
		bootID:    opts.BootID,
		onCommand: opts.OnCommand,
		onPublish: opts.OnPublish,
		logger:    logger,
		now:       time.Now,
		buf:       newRingBuffer(size, logger),
	}
}

// onConnect runs on every successful (re)connection.
func (p *RealPublisher) onConnect(c paho.Client) {
	if p.onCommand != nil {
		token := c.Subscribe(p.topics.Command, 1, p.onMessage)
		if !token.WaitTimeout(5 * time.Second) {
			p.logger.Error("mqtt subscribe timeout", "topic", p.topics.Command)
		} else if err := token.Error(); err != nil {
			p.logger.Error("mqtt subscribe failed", "topic", p.topics.Command, "error", err)
		}
	}

	p.mu.Lock()
	reconnect := p.hasConnected
	p.hasConnected = true
	p.connected = false
	p.mu.Unlock()

	if reconnect {
		p.logger.Info("mqtt reconnected", "buffered", p.Buffered())
		ev := SystemEvent{Timestamp: p.now(), Event: EventReconnected, BootID: p.bootID}
		m, err := p.systemMsg(ev)
		if err == nil {
			err = p.send(m)
			if p.onPublish != nil {
				p.onPublish(err)
			}
		}
		if err != nil {
			p.logger.Error("mqtt publish reconnected", "error", err)
		}
	} else {
		p.logger.Info("mqtt connected", "buffered", p.Buffered())
	}

	// Replay until the buffer is empty. Messages published meanwhile are
	// still buffered behind the older ones and go out in the next pass.
	for {
		p.mu.Lock()
		pending := p.buf.drainAll()
		if len(pending) == 0 {
			p.connected = true
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		for _, m := range pending {
			if err := p.send(m); err != nil {
				p.logger.Error("mqtt replay failed", "topic", m.topic, "error", err)
			}
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", "error", err)
}

func (p *RealPublisher) onMessage(_ paho.Client, m paho.Message) {
	name := string(m.Payload())
	if err := p.onCommand(name); err != nil {
		p.logger.Warn("mqtt command rejected", "command", strings.TrimSpace(name), "error", err)
		return
	}
	p.logger.Info("mqtt command accepted", "command", strings.TrimSpace(name))
}

// Publish sends a mode transition to the MQTT broker.
func (p *RealPublisher) Publish(event TransitionEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	m, err := p.systemMsg(event)
	if err != nil {
		return err
	}
	return p.publish(m)
}

func (p *RealPublisher) systemMsg(event SystemEvent) (bufferedMsg, error) {
	if event.BootID == "" {
		event.BootID = p.bootID
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return bufferedMsg{}, fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return bufferedMsg{
		topic:    p.topics.System,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	}, nil
}

// publish sends m now or buffers it while the connection is down.
func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected || !p.client.IsConnectionOpen() {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	err := p.send(m)
	if p.onPublish != nil {
		p.onPublish(err)
	}
	return err
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
