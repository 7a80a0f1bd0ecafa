// Package web serves the PPE analysis HTTP API and its WebSocket feeds.
package web

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ppe/pkg/analysis"
	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/export"
	"github.com/teslashibe/go-ppe/pkg/history"
	"github.com/teslashibe/go-ppe/pkg/hub"
	"github.com/teslashibe/go-ppe/pkg/storage"
	"github.com/teslashibe/go-ppe/pkg/stream"
)

// bodyLimit caps request bodies, image uploads included.
const bodyLimit = 16 * 1024 * 1024

// Config holds the server collaborators. Only Analysis is required.
type Config struct {
	Analysis *analysis.Service
	History  history.Store

	// Files serves signed URLs for the local object store.
	Files *storage.Local

	// Export is nil when Google Docs export is not configured.
	Export *export.GoogleDocs

	// Events fans analysis events out to dashboards.
	Events *hub.Hub

	// Stream ingests camera frames.
	Stream *stream.Hub

	// StaticDir is served at / when set.
	StaticDir string

	Logger *slog.Logger
	Now    func() time.Time
}

// Server is the HTTP API server
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger
}

// NewServer creates the server and registers every route.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Analysis == nil {
		return nil, errors.New("web: analysis service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "PPE Analysis",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		UnescapePath:          true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/analyze", s.handleAnalyze)
	api.Get("/upload-url", s.handleUploadURL)
	api.Post("/compliance", s.handleCompliance)
	api.Post("/annotate", s.handleAnnotate)

	api.Get("/history/:user", s.handleListHistory)
	api.Post("/history", s.handleSaveHistory)
	api.Delete("/history/:user/:timestamp", s.handleDeleteHistory)

	google := api.Group("/export/google")
	google.Get("/status", s.handleExportStatus)
	google.Get("/auth", s.handleExportAuth)
	google.Get("/callback", s.handleExportCallback)
	google.Post("/disconnect", s.handleExportDisconnect)
	google.Post("/", s.handleExport)

	if cfg.Files != nil {
		app.Get("/files/*", s.handleGetFile)
		app.Put("/files/*", s.handlePutFile)
	}

	if cfg.Stream != nil {
		cfg.Stream.RegisterAPIRoutes(api)
		cfg.Stream.RegisterRoutes(app)
	}

	if cfg.Events != nil {
		app.Use("/ws/events", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s, nil
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleError maps domain errors to status codes. Unexpected failures get
// a generic body and are logged.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code, msg := errorResponse(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func errorResponse(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, analysis.ErrInvalidRequest),
		errors.Is(err, history.ErrInvalidUserID),
		errors.Is(err, history.ErrInvalidTimestamp),
		errors.Is(err, compliance.ErrInvalidOptions),
		errors.Is(err, storage.ErrInvalidKey):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, export.ErrNotAuthenticated):
		return fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, storage.ErrInvalidToken),
		errors.Is(err, export.ErrInvalidState):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, history.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, analysis.ErrProcessing):
		return fiber.StatusInternalServerError, analysis.ErrProcessing.Error()
	}
	return fiber.StatusInternalServerError, "internal server error"
}
