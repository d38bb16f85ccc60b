// Package protocol defines the WebSocket messages exchanged with angle
// extractors and score viewers.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Extractor → handscore messages
	TypeAngles    MessageType = "angles"    // Joint angles for one frame
	TypeLandmarks MessageType = "landmarks" // Raw hand landmarks for one frame

	// handscore → viewer messages
	TypeScore MessageType = "score" // Similarity score tick
	TypeState MessageType = "state" // Session state snapshot
	TypeStats MessageType = "stats" // Runner statistics
	TypeError MessageType = "error" // Rejected request

	// Viewer → handscore messages
	TypeControl  MessageType = "control"   // start / stop / reset
	TypeGetStats MessageType = "get_stats" // Request a stats message

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Time returns the message timestamp, or now when none was sent
func (m *Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Now()
	}
	return time.UnixMilli(m.Timestamp)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// AnglesData carries one frame of joint angles. Detected=false (or a
// missing angles field) reports a frame with no hand.
type AnglesData struct {
	Angles   []float64 `json:"angles,omitempty"`
	Detected bool      `json:"detected"`
}

// NewAnglesMessage creates an angles message
func NewAnglesMessage(v angles.Vector, detected bool) (*Message, error) {
	data := AnglesData{Detected: detected}
	if detected {
		data.Angles = v.Slice()
	}
	return NewMessage(TypeAngles, data)
}

// Observation converts the payload into a session observation
func (a AnglesData) Observation(ts time.Time) session.Observation {
	if !a.Detected {
		return session.Missing(ts)
	}
	v, err := angles.FromSlice(a.Angles)
	if err != nil {
		return session.Missing(ts)
	}
	return session.Detected(v, ts)
}

// GetAngles extracts angle data from a message
func (m *Message) GetAngles() (*AnglesData, error) {
	var data AnglesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// LandmarksData carries the 21 hand landmarks of one frame
type LandmarksData struct {
	Landmarks [][3]float64 `json:"landmarks,omitempty"`
	Detected  bool         `json:"detected"`
}

// Observation computes joint angles from the landmarks
func (l LandmarksData) Observation(ts time.Time) session.Observation {
	if !l.Detected {
		return session.Missing(ts)
	}
	pts := make([]angles.Point3, len(l.Landmarks))
	for i, p := range l.Landmarks {
		pts[i] = angles.Point3(p)
	}
	v, err := angles.FromLandmarks(pts)
	if err != nil {
		return session.Missing(ts)
	}
	return session.Detected(v, ts)
}

// GetLandmarks extracts landmark data from a message
func (m *Message) GetLandmarks() (*LandmarksData, error) {
	var data LandmarksData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewScoreMessage creates a score message
func NewScoreMessage(s scoring.Score) (*Message, error) {
	return NewMessage(TypeScore, s)
}

// GetScore extracts a score from a message
func (m *Message) GetScore() (*scoring.Score, error) {
	var data scoring.Score
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewStateMessage creates a state message
func NewStateMessage(snap session.Snapshot) (*Message, error) {
	return NewMessage(TypeState, snap)
}

// Control actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionReset = "reset"
)

// ControlCommand asks the session to change state
type ControlCommand struct {
	Action string `json:"action"`
}

// GetControl extracts and validates a control command
func (m *Message) GetControl() (*ControlCommand, error) {
	var data ControlCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	data.Action = strings.ToLower(strings.TrimSpace(data.Action))
	switch data.Action {
	case ActionStart, ActionStop, ActionReset:
		return &data, nil
	default:
		return nil, fmt.Errorf("unknown control action %q", data.Action)
	}
}

// ErrorData describes a rejected request
type ErrorData struct {
	Error string `json:"error"`
}

// NewErrorMessage creates an error message
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Error: err.Error()})
}
