package protocol

import (
	"encoding/base64"
	"time"

	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/fusion"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(jpegData []byte, frameID uint64, minConfidence float64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Format:        "jpeg",
		Data:          base64.StdEncoding.EncodeToString(jpegData),
		FrameID:       frameID,
		MinConfidence: minConfidence,
	})
}

// NewResultMessage creates a result message for a frame
func NewResultMessage(cameraID string, frameID uint64, res *fusion.Result, report *compliance.Report, latency time.Duration) (*Message, error) {
	return NewMessage(TypeResult, ResultData{
		FrameID:   frameID,
		CameraID:  cameraID,
		Result:    res,
		Report:    report,
		LatencyMs: latency.Milliseconds(),
	})
}

// NewErrorMessage creates an error message for a frame
func NewErrorMessage(frameID uint64, msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		FrameID: frameID,
		Message: msg,
	})
}

// NewAnalysisMessage creates a dashboard event
func NewAnalysisMessage(ev AnalysisEvent) (*Message, error) {
	return NewMessage(TypeAnalysis, ev)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetResultData extracts result data from a message
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAnalysisEvent extracts an analysis event from a message
func (m *Message) GetAnalysisEvent() (*AnalysisEvent, error) {
	var data AnalysisEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
