// Package remote provides an angle source fed by an external extractor over
// WebSocket. The extractor streams angles or raw landmarks; scores can be
// sent back for on-screen feedback.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-handscore/internal/protocol"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

// Config holds remote extractor client configuration
type Config struct {
	URL              string        // WebSocket URL (e.g., "ws://localhost:8765/angles")
	ReconnectBackoff time.Duration // Initial reconnect delay
	MaxBackoff       time.Duration // Maximum reconnect delay
	PingInterval     time.Duration // Ping interval for keepalive
	WriteTimeout     time.Duration // Write timeout
	StaleAfter       time.Duration // Unhealthy when no frame arrived for this long
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8765/angles",
		ReconnectBackoff: 1 * time.Second,
		MaxBackoff:       30 * time.Second,
		PingInterval:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
		StaleAfter:       3 * time.Second,
	}
}

// Client manages the WebSocket connection to an extractor and exposes the
// newest frame through session.Source.
type Client struct {
	cfg    Config
	logger *slog.Logger

	slot session.Slot

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	lastFrame time.Time
	cancel    context.CancelFunc
	writeMu   sync.Mutex

	onControl func(protocol.ControlCommand)

	// Stats
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	framesReceived   atomic.Uint64
	reconnects       atomic.Uint64
}

// NewClient creates a new extractor client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// OnControl sets the callback for session control requests from the extractor
func (c *Client) OnControl(callback func(protocol.ControlCommand)) {
	c.mu.Lock()
	c.onControl = callback
	c.mu.Unlock()
}

// Connect starts the connection loop in the background
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.connectionLoop(ctx)
	return nil
}

// connectionLoop manages connection with auto-reconnect
func (c *Client) connectionLoop(ctx context.Context) {
	backoff := c.cfg.ReconnectBackoff

	for {
		select {
		case <-ctx.Done():
			c.closeConnection()
			return
		default:
		}

		err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("extractor connection failed",
				"error", err,
				"retry_in", backoff,
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}

			// Exponential backoff
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			c.reconnects.Add(1)
			continue
		}

		// Reset backoff on successful connection
		backoff = c.cfg.ReconnectBackoff

		// Read messages until error
		c.readLoop(ctx)
	}
}

// connect establishes the WebSocket connection
func (c *Client) connect(ctx context.Context) error {
	c.logger.Info("connecting to extractor", "url", c.cfg.URL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected to extractor")

	go c.pingLoop(ctx, conn)

	return nil
}

// pingLoop sends periodic pings on conn until it is replaced or closed
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}

			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// readLoop reads messages from the extractor
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("read error", "error", err)
			c.closeConnection()
			return
		}

		c.messagesReceived.Add(1)
		c.handleMessage(data)
	}
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.logger.Warn("parse message error", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeAngles:
		payload, err := msg.GetAngles()
		if err != nil {
			c.logger.Debug("bad angles payload", "error", err)
			return
		}
		c.deliver(payload.Observation(msg.Time()))

	case protocol.TypeLandmarks:
		payload, err := msg.GetLandmarks()
		if err != nil {
			c.logger.Debug("bad landmarks payload", "error", err)
			return
		}
		c.deliver(payload.Observation(msg.Time()))

	case protocol.TypeControl:
		cmd, err := msg.GetControl()
		if err != nil {
			c.logger.Warn("rejected control request", "error", err)
			return
		}
		c.mu.Lock()
		cb := c.onControl
		c.mu.Unlock()
		if cb != nil {
			cb(*cmd)
		}

	case protocol.TypePing:
		// Respond with pong
		pong := &protocol.Message{Type: protocol.TypePong, Timestamp: time.Now().UnixMilli()}
		c.SendMessage(pong)
	}
}

func (c *Client) deliver(obs session.Observation) {
	c.framesReceived.Add(1)
	c.mu.Lock()
	c.lastFrame = time.Now()
	c.mu.Unlock()
	c.slot.Put(obs)
}

// Next returns the newest unread frame, or a missing observation when no
// new frame arrived since the last call.
func (c *Client) Next(ctx context.Context) (session.Observation, error) {
	if err := ctx.Err(); err != nil {
		return session.Observation{}, err
	}
	if obs, ok := c.slot.Take(); ok {
		return obs, nil
	}
	return session.Missing(time.Now()), nil
}

// SendMessage sends a message to the extractor
func (c *Client) SendMessage(msg *protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("send error", "error", err)
		c.closeConnection()
		return fmt.Errorf("write: %w", err)
	}

	c.messagesSent.Add(1)
	return nil
}

// SendScore sends a score tick back to the extractor for display
func (c *Client) SendScore(s scoring.Score) error {
	msg, err := protocol.NewScoreMessage(s)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Forward sends every score from updates to the extractor until the channel
// closes or ctx ends. Send failures are dropped; the connection loop recovers.
func (c *Client) Forward(ctx context.Context, updates <-chan session.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Score == nil || !c.IsConnected() {
				continue
			}
			if err := c.SendScore(*u.Score); err != nil {
				c.logger.Debug("score forward failed", "error", err)
			}
		}
	}
}

// closeConnection closes the WebSocket connection
func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close shuts down the client
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.closeConnection()
	return nil
}

// Healthy reports a live connection with recent frames
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return false
	}
	if c.cfg.StaleAfter > 0 && !c.lastFrame.IsZero() && time.Since(c.lastFrame) > c.cfg.StaleAfter {
		return false
	}
	return true
}

// Name returns the source type name
func (c *Client) Name() string {
	return "remote"
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Stats returns client statistics
type Stats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	FramesReceived   uint64 `json:"frames_received"`
	Reconnects       uint64 `json:"reconnects"`
}

// GetStats returns client statistics
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	return Stats{
		Connected:        connected,
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		FramesReceived:   c.framesReceived.Load(),
		Reconnects:       c.reconnects.Load(),
	}
}
