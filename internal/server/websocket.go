package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-handscore/internal/protocol"
	"github.com/teslashibe/go-handscore/internal/session"
)

// WSHub manages WebSocket clients of the score stream. It pushes every
// score and state change from the runner and accepts control commands.
type WSHub struct {
	runner *session.Runner
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex // per-connection write lock

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(runner *session.Runner, logger *slog.Logger) *WSHub {
	return &WSHub{
		runner:  runner,
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		done:    make(chan struct{}),
	}
}

// Run forwards runner updates to clients until ctx is cancelled or the
// runner shuts down
func (h *WSHub) Run(ctx context.Context) {
	h.runMu.Lock()
	ctx, h.cancel = context.WithCancel(ctx)
	h.runMu.Unlock()
	defer close(h.done)

	if h.runner == nil {
		<-ctx.Done()
		return
	}

	updates := h.runner.Subscribe()
	defer h.runner.Unsubscribe(updates)

	var (
		lastState session.State
		lastID    string
	)

	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopped")
			return
		case u, ok := <-updates:
			if !ok {
				h.logger.Info("websocket hub stopped", "reason", "runner closed")
				return
			}

			if u.Score != nil {
				if msg, err := protocol.NewScoreMessage(*u.Score); err == nil {
					h.broadcast(msg)
				}
			}

			// state messages only on transitions, scores carry the rest
			if u.Snapshot.State != lastState || u.Snapshot.SessionID != lastID {
				if msg, err := protocol.NewStateMessage(u.Snapshot); err == nil {
					h.broadcast(msg)
				}
				lastState = u.Snapshot.State
				lastID = u.Snapshot.SessionID

				h.logger.Debug("session state broadcast",
					"state", lastState,
					"session_id", lastID,
				)
			}
		}
	}
}

func (h *WSHub) broadcast(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, wmu := range h.clients {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		wmu.Unlock()
		if err != nil {
			// Will be cleaned up when connection closes
			h.logger.Debug("websocket write error", "error", err)
		}
	}
}

// UpgradeHandler returns the WebSocket upgrade handler
func (h *WSHub) UpgradeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return websocket.New(h.handleConnection)(c)
		}

		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error":   "WebSocket upgrade required",
			"message": "Connect via WebSocket to receive the score stream",
		})
	}
}

func (h *WSHub) handleConnection(c *websocket.Conn) {
	wmu := &sync.Mutex{}

	h.mu.Lock()
	h.clients[c] = wmu
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		"remote_addr", c.RemoteAddr().String(),
		"clients", clientCount,
	)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		clientCount := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("websocket client disconnected",
			"remote_addr", c.RemoteAddr().String(),
			"clients", clientCount,
		)
	}()

	// new clients get the current state straight away
	if h.runner != nil {
		if msg, err := protocol.NewStateMessage(h.runner.Snapshot()); err == nil {
			h.send(c, wmu, msg)
		}
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		h.handleCommand(c, wmu, data)
	}
}

func (h *WSHub) handleCommand(c *websocket.Conn, wmu *sync.Mutex, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.sendError(c, wmu, err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		reply, _ := protocol.NewMessage(protocol.TypePong, time.Now().Unix())
		h.send(c, wmu, reply)

	case protocol.TypeGetStats:
		if h.runner == nil {
			return
		}
		reply, err := protocol.NewMessage(protocol.TypeStats, h.runner.Stats())
		if err == nil {
			h.send(c, wmu, reply)
		}

	case protocol.TypeControl:
		cmd, err := msg.GetControl()
		if err != nil {
			h.sendError(c, wmu, err)
			return
		}
		if h.runner == nil {
			return
		}
		h.logger.Info("websocket control", "action", cmd.Action, "remote_addr", c.RemoteAddr().String())
		ApplyControl(h.runner, cmd.Action)
		// the resulting state reaches every client, this one included, via Run

	default:
		h.logger.Debug("ignoring websocket message", "type", msg.Type)
	}
}

// ApplyControl maps a control action onto the runner. Start returns the new
// session ID.
func ApplyControl(r *session.Runner, action string) string {
	switch action {
	case protocol.ActionStart:
		return r.Start()
	case protocol.ActionStop:
		r.Stop()
	case protocol.ActionReset:
		r.Reset()
	}
	return ""
}

func (h *WSHub) send(c *websocket.Conn, wmu *sync.Mutex, msg *protocol.Message) {
	if msg == nil {
		return
	}
	wmu.Lock()
	defer wmu.Unlock()
	if err := c.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write error", "error", err)
	}
}

func (h *WSHub) sendError(c *websocket.Conn, wmu *sync.Mutex, err error) {
	msg, merr := protocol.NewErrorMessage(err)
	if merr != nil {
		return
	}
	h.send(c, wmu, msg)
}

// ClientCount returns the number of connected WebSocket clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts down the WebSocket hub
func (h *WSHub) Close() {
	h.runMu.Lock()
	cancel := h.cancel
	h.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-h.done
	}

	// Close all client connections
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}
