// Package mqttpub publishes score ticks and session state to an MQTT broker
package mqttpub

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-handscore/internal/protocol"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

// Config configures the publisher
type Config struct {
	Broker         string // e.g. tcp://localhost:1883
	Topic          string // scores go to Topic, state to Topic/state
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		Topic:          "handscore/scores",
		ClientID:       "handscore",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// Publisher is a score sink backed by a paho client
type Publisher struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// Connect dials the broker and returns a publisher. The client reconnects
// on its own after the first successful connection.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", cfg.ClientID, time.Now().Unix()))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}

	return newPublisher(cfg, client, logger), nil
}

func newPublisher(cfg Config, client mqtt.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{cfg: cfg, client: client, logger: logger}
}

// Name identifies the publisher as a sink
func (p *Publisher) Name() string {
	return "mqtt"
}

// Write publishes one score message
func (p *Publisher) Write(s scoring.Score) error {
	msg, err := protocol.NewScoreMessage(s)
	if err != nil {
		return err
	}
	return p.publish(p.cfg.Topic, false, msg)
}

// RecordSession publishes the session snapshot, retained so late
// subscribers see the current state
func (p *Publisher) RecordSession(snap session.Snapshot, _ time.Time) error {
	msg, err := protocol.NewStateMessage(snap)
	if err != nil {
		return err
	}
	return p.publish(p.StateTopic(), true, msg)
}

// StateTopic is where session snapshots are published
func (p *Publisher) StateTopic() string {
	return p.cfg.Topic + "/state"
}

func (p *Publisher) publish(topic string, retained bool, msg *protocol.Message) error {
	payload, err := msg.Bytes()
	if err != nil {
		return err
	}

	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		p.failed.Add(1)
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	p.published.Add(1)
	return nil
}

// Connected reports whether the client currently holds a broker connection
func (p *Publisher) Connected() bool {
	return p.client.IsConnectionOpen()
}

// Stats returns publish counters
func (p *Publisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close disconnects, allowing in-flight publishes a short grace period
func (p *Publisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
