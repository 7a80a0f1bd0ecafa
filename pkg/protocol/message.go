// Package protocol defines the WebSocket message types for camera stream
// ingest and analysis event fan-out.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/fusion"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Camera → Server messages
	TypeFrame MessageType = "frame" // Still image to analyze

	// Server → Camera messages
	TypeResult MessageType = "result" // Fused result for a frame
	TypeError  MessageType = "error"  // Frame could not be analyzed

	// Server → Dashboard messages
	TypeAnalysis MessageType = "analysis" // An analysis completed

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
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

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Camera → Server Message Types
// =============================================================================

// FrameData contains one still image
type FrameData struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format"` // "jpeg", "png"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`

	// MinConfidence is the display threshold for the compliance report.
	// Zero means the server default.
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// =============================================================================
// Server → Camera Message Types
// =============================================================================

// ResultData answers a frame
type ResultData struct {
	FrameID   uint64             `json:"frame_id,omitempty"`
	CameraID  string             `json:"camera_id"`
	Result    *fusion.Result     `json:"result"`
	Report    *compliance.Report `json:"report,omitempty"`
	LatencyMs int64              `json:"latency_ms"`
}

// ErrorData reports a frame failure
type ErrorData struct {
	FrameID uint64 `json:"frame_id,omitempty"`
	Message string `json:"message"`
}

// =============================================================================
// Server → Dashboard Message Types
// =============================================================================

// AnalysisEvent announces a completed analysis
type AnalysisEvent struct {
	Source            string `json:"source"` // "api" or "stream"
	CameraID          string `json:"camera_id,omitempty"`
	ResultKey         string `json:"result_key,omitempty"`
	TotalPersons      int    `json:"total_persons"`
	Compliant         int    `json:"compliant"`
	CompliancePercent int    `json:"compliance_percent"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
