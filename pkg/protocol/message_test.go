package protocol

import (
	"testing"
	"time"

	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/fusion"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
		},
		{
			name:    "error message",
			msgType: TypeError,
			data:    ErrorData{FrameID: 3, Message: "boom"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeResult,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	for _, in := range []string{"", "not json", `{"data":{}}`} {
		if _, err := ParseMessage([]byte(in)); err == nil {
			t.Errorf("ParseMessage(%q): expected error", in)
		}
	}
}

func TestFrameMessage(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

	msg, err := NewFrameMessage(jpegData, 7, 85)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeFrame {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeFrame)
	}

	frameData, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frameData.Format != "jpeg" {
		t.Errorf("Format = %v, want jpeg", frameData.Format)
	}
	if frameData.FrameID != 7 {
		t.Errorf("FrameID = %v, want 7", frameData.FrameID)
	}
	if frameData.MinConfidence != 85 {
		t.Errorf("MinConfidence = %v, want 85", frameData.MinConfidence)
	}

	decoded, err := frameData.DecodeFrameData()
	if err != nil {
		t.Fatalf("DecodeFrameData() error = %v", err)
	}
	if string(decoded) != string(jpegData) {
		t.Errorf("Decoded = %x, want %x", decoded, jpegData)
	}
}

func TestDecodeFrameData_BadBase64(t *testing.T) {
	f := FrameData{Format: "jpeg", Data: "!!!"}
	if _, err := f.DecodeFrameData(); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestResultMessage(t *testing.T) {
	res := fusion.Fuse(fusion.Input{
		Native: &fusion.NativeResult{Persons: []fusion.Person{{ID: 0}}},
	})
	report, err := compliance.Evaluate(res, compliance.Options{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	msg, err := NewResultMessage("dock-3", 9, res, report, 120*time.Millisecond)
	if err != nil {
		t.Fatalf("NewResultMessage() error = %v", err)
	}
	if msg.Type != TypeResult {
		t.Errorf("Type = %v, want %v", msg.Type, TypeResult)
	}

	data, err := msg.GetResultData()
	if err != nil {
		t.Fatalf("GetResultData() error = %v", err)
	}
	if data.CameraID != "dock-3" || data.FrameID != 9 {
		t.Errorf("Unexpected ids: %q %d", data.CameraID, data.FrameID)
	}
	if data.LatencyMs != 120 {
		t.Errorf("LatencyMs = %v, want 120", data.LatencyMs)
	}
	if data.Result == nil || data.Result.DetectionType != fusion.DetectionType {
		t.Fatalf("Expected fused result, got %+v", data.Result)
	}
	if data.Report == nil || data.Report.TotalPersons != 1 {
		t.Errorf("Expected report for one person, got %+v", data.Report)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(4, "failed to process image")
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	data, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}
	if data.FrameID != 4 || data.Message != "failed to process image" {
		t.Errorf("Unexpected error data %+v", data)
	}
}

func TestAnalysisMessage(t *testing.T) {
	msg, err := NewAnalysisMessage(AnalysisEvent{Source: "api", ResultKey: "web/a_1.json", TotalPersons: 2, Compliant: 1})
	if err != nil {
		t.Fatalf("NewAnalysisMessage() error = %v", err)
	}
	ev, err := msg.GetAnalysisEvent()
	if err != nil {
		t.Fatalf("GetAnalysisEvent() error = %v", err)
	}
	if ev.Source != "api" || ev.ResultKey != "web/a_1.json" || ev.TotalPersons != 2 {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}
	if pingData.Timestamp == 0 {
		t.Error("Ping timestamp should be set")
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	if pongMsg.Type != TypePong {
		t.Errorf("Type = %v, want %v", pongMsg.Type, TypePong)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}
