package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/protocol"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ReconnectBackoff <= 0 {
		t.Error("ReconnectBackoff should be positive")
	}
	if cfg.MaxBackoff <= 0 {
		t.Error("MaxBackoff should be positive")
	}
	if cfg.PingInterval <= 0 {
		t.Error("PingInterval should be positive")
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	if client.IsConnected() {
		t.Error("Client should not be connected initially")
	}
	if client.Healthy() {
		t.Error("Client should not be healthy before connecting")
	}
	if client.Name() != "remote" {
		t.Errorf("Name() = %s, want remote", client.Name())
	}

	obs, err := client.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if obs.Present() {
		t.Error("expected missing observation without frames")
	}
}

func TestSendScoreNotConnected(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	if err := client.SendScore(scoring.Score{Combined: 50}); err == nil {
		t.Error("SendScore should return error when not connected")
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func send(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, data interface{}) {
	msg, err := protocol.NewMessage(msgType, data)
	if err != nil {
		t.Errorf("NewMessage() error = %v", err)
		return
	}
	raw, _ := json.Marshal(msg)
	conn.WriteMessage(websocket.TextMessage, raw)
}

func waitObservation(t *testing.T, client *Client) session.Observation {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		obs, _ := client.Next(context.Background())
		if obs.Present() {
			return obs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no observation before timeout")
	return session.Observation{}
}

func TestReceiveAngles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send(t, conn, protocol.TypeAngles, protocol.AnglesData{Detected: false})
		send(t, conn, protocol.TypeAngles, protocol.AnglesData{Angles: []float64{10, 20, 30, 40, 50}, Detected: true})

		// Keep connection alive
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(server)
	client := NewClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Connect(ctx)
	defer client.Close()

	obs := waitObservation(t, client)
	if obs.Angles != (angles.Vector{10, 20, 30, 40, 50}) {
		t.Errorf("Angles = %v", obs.Angles)
	}
	if !client.Healthy() {
		t.Error("expected healthy client after frames")
	}
	if client.GetStats().FramesReceived < 1 {
		t.Error("expected frames to be counted")
	}
}

func TestReceiveLandmarks(t *testing.T) {
	lm := make([][3]float64, angles.LandmarkCount)
	for i := range lm {
		lm[i] = [3]float64{float64(i), 0, 0}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send(t, conn, protocol.TypeLandmarks, protocol.LandmarksData{Landmarks: lm, Detected: true})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(server)
	client := NewClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Connect(ctx)
	defer client.Close()

	obs := waitObservation(t, client)
	if obs.Angles[angles.Middle] < 179.999 {
		t.Errorf("expected straight finger, got %v", obs.Angles)
	}
}

func TestControlAndForward(t *testing.T) {
	var scoresReceived atomic.Int32
	var controlReceived atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send(t, conn, protocol.TypeControl, protocol.ControlCommand{Action: "start"})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msg, err := protocol.ParseMessage(raw); err == nil && msg.Type == protocol.TypeScore {
				scoresReceived.Add(1)
			}
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(server)
	client := NewClient(cfg, nil)
	client.OnControl(func(cmd protocol.ControlCommand) {
		if cmd.Action == protocol.ActionStart {
			controlReceived.Store(true)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Connect(ctx)
	defer client.Close()

	updates := make(chan session.Update, 4)
	go client.Forward(ctx, updates)

	deadline := time.Now().Add(2 * time.Second)
	for !client.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	updates <- session.Update{Snapshot: session.Snapshot{State: session.Calibrating}}
	updates <- session.Update{Score: &scoring.Score{Combined: 72}}

	for scoresReceived.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if scoresReceived.Load() != 1 {
		t.Errorf("expected exactly 1 forwarded score, got %d", scoresReceived.Load())
	}
	if !controlReceived.Load() {
		t.Error("control callback should have been called")
	}
}

func TestReconnect(t *testing.T) {
	var connectionCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connectionCount.Add(1)

		// Close after brief delay
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(server)
	cfg.ReconnectBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = 100 * time.Millisecond

	client := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	client.Connect(ctx)
	<-ctx.Done()
	client.Close()

	if connectionCount.Load() < 2 {
		t.Errorf("expected reconnects, got %d connections", connectionCount.Load())
	}
}
