// Package hub fans analysis events out to dashboard WebSocket clients.
// A single goroutine owns the client set; clients may filter by camera.
package hub

import "github.com/teslashibe/go-ppe/pkg/protocol"

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, such as an annotated PNG
	BinaryMessage
)

// Message is one broadcast frame.
type Message struct {
	Type MessageType
	Data []byte

	// Camera scopes the message. Empty reaches every client.
	Camera string
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewProtocolMessage encodes a protocol envelope. Analysis events are
// scoped to their camera.
func NewProtocolMessage(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	m := NewJSONMessage(data)
	if msg.Type == protocol.TypeAnalysis {
		if ev, err := msg.GetAnalysisEvent(); err == nil {
			m.Camera = ev.CameraID
		}
	}
	return m, nil
}
