// Package stream accepts camera frames over WebSocket and answers each
// with a fused PPE result.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-ppe/pkg/analysis"
	"github.com/teslashibe/go-ppe/pkg/detect"
	"github.com/teslashibe/go-ppe/pkg/protocol"
)

// frameTimeout bounds a single frame analysis.
const frameTimeout = 30 * time.Second

// Analyzer runs the PPE pipeline on one image.
type Analyzer interface {
	Inspect(ctx context.Context, img detect.Image, minConfidence float64) (*analysis.Inspection, error)
}

// Publisher receives an event for every analysed frame.
type Publisher interface {
	Publish(msg *protocol.Message) error
}

// CameraConnection represents a connected camera
type CameraConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Frames    uint64

	mu sync.Mutex
}

// Send sends a message to the camera
func (c *CameraConnection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from cameras
type Hub struct {
	analyzer Analyzer
	events   Publisher
	logger   *slog.Logger

	mu      sync.RWMutex
	cameras map[string]*CameraConnection

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesFailed     atomic.Uint64
}

// NewHub creates a new camera hub. events may be nil.
func NewHub(analyzer Analyzer, events Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		analyzer: analyzer,
		events:   events,
		logger:   logger.With("component", "stream.hub"),
		cameras:  make(map[string]*CameraConnection),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/stream", websocket.New(h.handleCamera))
	app.Get("/ws/stream/:camera", websocket.New(h.handleCamera))
}

// handleCamera handles a camera WebSocket connection. Frames are analysed
// one at a time in arrival order.
func (h *Hub) handleCamera(c *websocket.Conn) {
	cameraID := c.Params("camera")
	if cameraID == "" {
		cameraID = uuid.New().String()
	}

	camera := &CameraConnection{
		ID:        cameraID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	if prev, ok := h.cameras[cameraID]; ok {
		prev.Conn.Close()
	}
	h.cameras[cameraID] = camera
	count := len(h.cameras)
	h.mu.Unlock()

	h.logger.Info("camera connected", "camera", cameraID, "cameras", count)

	defer func() {
		h.mu.Lock()
		if h.cameras[cameraID] == camera {
			delete(h.cameras, cameraID)
		}
		count := len(h.cameras)
		h.mu.Unlock()
		h.logger.Info("camera disconnected", "camera", cameraID, "cameras", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("camera read ended", "camera", cameraID, "error", err)
			return
		}

		camera.mu.Lock()
		camera.LastSeen = time.Now()
		camera.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(camera, data)
	}
}

// handleMessage processes an incoming message from a camera
func (h *Hub) handleMessage(camera *CameraConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("parse error", "camera", camera.ID, "error", err)
		reply, err := protocol.NewErrorMessage(0, "invalid message")
		h.reply(camera, reply, err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		camera.mu.Lock()
		camera.Frames++
		camera.mu.Unlock()

		frame, err := msg.GetFrameData()
		if err != nil {
			h.framesFailed.Add(1)
			reply, err := protocol.NewErrorMessage(0, "invalid frame")
			h.reply(camera, reply, err)
			return
		}
		reply, err := h.analyzeFrame(camera.ID, frame)
		h.reply(camera, reply, err)

	case protocol.TypePing:
		id := ""
		if ping, err := msg.GetPingData(); err == nil && ping != nil {
			id = ping.ID
		}
		reply, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		h.reply(camera, reply, err)

	default:
		h.logger.Debug("ignored message", "camera", camera.ID, "type", msg.Type)
	}
}

func (h *Hub) analyzeFrame(cameraID string, frame *protocol.FrameData) (*protocol.Message, error) {
	img, err := frame.DecodeFrameData()
	if err != nil || len(img) == 0 {
		h.framesFailed.Add(1)
		return protocol.NewErrorMessage(frame.FrameID, "invalid frame data")
	}

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	start := time.Now()
	insp, err := h.analyzer.Inspect(ctx, detect.Image{Bytes: img}, frame.MinConfidence)
	if err != nil {
		h.framesFailed.Add(1)
		h.logger.Warn("frame analysis failed", "camera", cameraID, "frame", frame.FrameID, "error", err)
		text := analysis.ErrProcessing.Error()
		if errors.Is(err, analysis.ErrInvalidRequest) {
			text = err.Error()
		}
		return protocol.NewErrorMessage(frame.FrameID, text)
	}

	h.publish(cameraID, insp)
	return protocol.NewResultMessage(cameraID, frame.FrameID, insp.Result, insp.Report, time.Since(start))
}

func (h *Hub) publish(cameraID string, insp *analysis.Inspection) {
	if h.events == nil {
		return
	}
	msg, err := protocol.NewAnalysisMessage(protocol.AnalysisEvent{
		Source:            "stream",
		CameraID:          cameraID,
		TotalPersons:      insp.Result.Summary.TotalPersons,
		Compliant:         insp.Result.Summary.Compliant,
		CompliancePercent: insp.Report.CompliancePercent,
	})
	if err == nil {
		err = h.events.Publish(msg)
	}
	if err != nil {
		h.logger.Warn("event publish failed", "error", err)
	}
}

func (h *Hub) reply(camera *CameraConnection, msg *protocol.Message, err error) {
	if err != nil {
		h.logger.Error("build reply failed", "camera", camera.ID, "error", err)
		return
	}
	h.messagesSent.Add(1)
	if err := camera.Send(msg); err != nil {
		h.logger.Warn("send failed", "camera", camera.ID, "error", err)
	}
}

// GetCamera returns a camera connection by ID
func (h *Hub) GetCamera(cameraID string) *CameraConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cameras[cameraID]
}

// CameraCount returns the number of connected cameras
func (h *Hub) CameraCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cameras)
}

// Stats contains hub statistics
type Stats struct {
	CameraCount      int    `json:"camera_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesFailed     uint64 `json:"frames_failed"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		CameraCount:      h.CameraCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesFailed:     h.framesFailed.Load(),
	}
}

// CameraInfo contains info about a connected camera
type CameraInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// GetCameraInfos returns info about all connected cameras
func (h *Hub) GetCameraInfos() []CameraInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]CameraInfo, 0, len(h.cameras))
	for _, c := range h.cameras {
		c.mu.Lock()
		infos = append(infos, CameraInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
			Frames:    c.Frames,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for camera management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	cameras := api.Group("/cameras")

	cameras.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cameras": h.GetCameraInfos(),
			"count":   h.CameraCount(),
		})
	})

	cameras.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
