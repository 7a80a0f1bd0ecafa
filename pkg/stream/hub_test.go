package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-ppe/internal/log"
	"github.com/teslashibe/go-ppe/pkg/analysis"
	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/detect"
	"github.com/teslashibe/go-ppe/pkg/fusion"
	"github.com/teslashibe/go-ppe/pkg/protocol"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []float64
	err   error
}

func (f *fakeAnalyzer) Inspect(ctx context.Context, img detect.Image, minConfidence float64) (*analysis.Inspection, error) {
	f.mu.Lock()
	f.calls = append(f.calls, minConfidence)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	res := fusion.Fuse(fusion.Input{
		Native:        &fusion.NativeResult{Persons: []fusion.Person{{ID: 0}}},
		MinConfidence: minConfidence,
	})
	report, err := compliance.Evaluate(res, compliance.Options{MinConfidence: minConfidence})
	if err != nil {
		return nil, err
	}
	return &analysis.Inspection{Result: res, Report: report}, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (r *recorder) Publish(msg *protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func startServer(t *testing.T, h *Hub, port int) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.RegisterRoutes(app)
	go app.Listen(fmt.Sprintf("127.0.0.1:%d", port))
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
	return fmt.Sprintf("ws://127.0.0.1:%d", port)
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return msg
}

func sendFrame(t *testing.T, ws *websocket.Conn, frameID uint64) {
	t.Helper()
	msg, err := protocol.NewFrameMessage([]byte{0xff, 0xd8, 0xff}, frameID, 85)
	if err != nil {
		t.Fatalf("NewFrameMessage: %v", err)
	}
	data, _ := msg.Bytes()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Write error: %v", err)
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub(&fakeAnalyzer{}, nil, log.Discard())
	if h.CameraCount() != 0 {
		t.Errorf("Expected 0 cameras, got %d", h.CameraCount())
	}
	stats := h.GetStats()
	if stats.FramesReceived != 0 || stats.MessagesSent != 0 {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
	if h.GetCamera("missing") != nil {
		t.Error("Expected nil for unknown camera")
	}
}

func TestFrame_ReturnsResult(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	events := &recorder{}
	h := NewHub(analyzer, events, log.Discard())
	base := startServer(t, h, 18180)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/stream/dock-1", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	sendFrame(t, ws, 7)
	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeResult {
		t.Fatalf("Expected result message, got %s", msg.Type)
	}
	data, err := msg.GetResultData()
	if err != nil {
		t.Fatalf("GetResultData: %v", err)
	}
	if data.FrameID != 7 {
		t.Errorf("Expected frame 7, got %d", data.FrameID)
	}
	if data.CameraID != "dock-1" {
		t.Errorf("Expected camera dock-1, got %s", data.CameraID)
	}
	if data.Result == nil || data.Result.Summary.TotalPersons != 1 {
		t.Errorf("Expected 1 person in result, got %+v", data.Result)
	}
	if data.Report == nil {
		t.Error("Expected a compliance report")
	}

	if len(analyzer.calls) != 1 || analyzer.calls[0] != 85 {
		t.Errorf("Expected one call with confidence 85, got %v", analyzer.calls)
	}
	if events.count() != 1 {
		t.Errorf("Expected 1 event, got %d", events.count())
	}
	ev, _ := events.msgs[0].GetAnalysisEvent()
	if ev.Source != "stream" || ev.CameraID != "dock-1" {
		t.Errorf("Unexpected event: %+v", ev)
	}

	if h.CameraCount() != 1 {
		t.Errorf("Expected 1 camera, got %d", h.CameraCount())
	}
	if cam := h.GetCamera("dock-1"); cam == nil {
		t.Error("Expected camera dock-1 registered")
	}
	stats := h.GetStats()
	if stats.FramesReceived != 1 || stats.FramesFailed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestFrame_FailureKeepsConnection(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("%w: boom", analysis.ErrProcessing)}
	h := NewHub(analyzer, nil, log.Discard())
	base := startServer(t, h, 18181)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/stream/gate", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	for i := uint64(1); i <= 2; i++ {
		sendFrame(t, ws, i)
		msg := readMessage(t, ws)
		if msg.Type != protocol.TypeError {
			t.Fatalf("Expected error message, got %s", msg.Type)
		}
		data, _ := msg.GetErrorData()
		if data.FrameID != i {
			t.Errorf("Expected frame %d, got %d", i, data.FrameID)
		}
		if data.Message != "failed to process image" {
			t.Errorf("Expected generic failure message, got %q", data.Message)
		}
	}

	if got := h.GetStats().FramesFailed; got != 2 {
		t.Errorf("Expected 2 failed frames, got %d", got)
	}
}

func TestFrame_InvalidData(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := NewHub(analyzer, nil, log.Discard())
	base := startServer(t, h, 18182)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/stream/gate", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	msg, _ := protocol.NewMessage(protocol.TypeFrame, protocol.FrameData{FrameID: 3, Data: "not base64!"})
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	reply := readMessage(t, ws)
	if reply.Type != protocol.TypeError {
		t.Fatalf("Expected error message, got %s", reply.Type)
	}
	if len(analyzer.calls) != 0 {
		t.Errorf("Expected analyzer not called, got %d calls", len(analyzer.calls))
	}
}

func TestPingPong(t *testing.T) {
	h := NewHub(&fakeAnalyzer{}, nil, log.Discard())
	base := startServer(t, h, 18183)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/stream/ping-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	ping, _ := protocol.NewPingMessage("p1")
	data, _ := ping.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypePong {
		t.Fatalf("Expected pong, got %s", msg.Type)
	}
	pong, _ := msg.GetPongData()
	if pong.ID != "p1" {
		t.Errorf("Expected pong id p1, got %s", pong.ID)
	}
}

func TestAPIRoutes(t *testing.T) {
	h := NewHub(&fakeAnalyzer{}, nil, log.Discard())
	app := fiber.New()
	h.RegisterAPIRoutes(app.Group("/api"))

	req := httptest.NewRequest("GET", "/api/cameras/stats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if stats.CameraCount != 0 {
		t.Errorf("Expected 0 cameras, got %d", stats.CameraCount)
	}

	req = httptest.NewRequest("GET", "/api/cameras", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	var body struct {
		Count int `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Count != 0 {
		t.Errorf("Expected count 0, got %d", body.Count)
	}
}

func TestUpgradeRequired(t *testing.T) {
	h := NewHub(&fakeAnalyzer{}, nil, log.Discard())
	app := fiber.New()
	h.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/stream/cam", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}
