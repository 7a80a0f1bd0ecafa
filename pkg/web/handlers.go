package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ppe/pkg/analysis"
	"github.com/teslashibe/go-ppe/pkg/annotate"
	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/export"
	"github.com/teslashibe/go-ppe/pkg/fusion"
	"github.com/teslashibe/go-ppe/pkg/history"
	"github.com/teslashibe/go-ppe/pkg/hub"
	"github.com/teslashibe/go-ppe/pkg/storage"
)

// AnalyzeRequest is the body of POST /api/analyze. Multipart requests
// carry the same fields plus an "image" file.
type AnalyzeRequest struct {
	Bucket        string  `json:"bucket" form:"bucket"`
	Filename      string  `json:"filename" form:"filename"`
	DetectionType string  `json:"detection_type" form:"detection_type"`
	MinConfidence float64 `json:"min_confidence" form:"min_confidence"`
	UserID        string  `json:"user_id" form:"user_id"`
}

// handleHealth reports liveness and connection counts
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok"}
	if s.cfg.Stream != nil {
		resp["cameras"] = s.cfg.Stream.CameraCount()
	}
	if s.cfg.Events != nil {
		resp["dashboards"] = s.cfg.Events.ClientCount()
	}
	return c.JSON(resp)
}

// handleAnalyze runs an analysis on a stored object or an uploaded image
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var body AnalyzeRequest
	if err := c.BodyParser(&body); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
	}

	req := analysis.Request{
		Bucket:        body.Bucket,
		Filename:      body.Filename,
		DetectionType: body.DetectionType,
		MinConfidence: body.MinConfidence,
		UserID:        body.UserID,
	}

	if fh, err := c.FormFile("image"); err == nil {
		data, err := readFormFile(fh)
		if err != nil {
			return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
		}
		req.Image = data
	}

	resp, err := s.cfg.Analysis.Analyze(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// handleUploadURL returns a signed URL for a client-side upload
func (s *Server) handleUploadURL(c *fiber.Ctx) error {
	url, err := s.cfg.Analysis.UploadURL(c.UserContext(), c.Query("filename"), c.Query("operation"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"url": url})
}

// ComplianceRequest is the body of POST /api/compliance.
type ComplianceRequest struct {
	Analysis      *fusion.Result         `json:"analysis"`
	Required      []fusion.EquipmentType `json:"required"`
	MinConfidence float64                `json:"min_confidence"`
}

// handleCompliance evaluates a fused result against the required equipment
func (s *Server) handleCompliance(c *fiber.Ctx) error {
	var req ComplianceRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
	}
	report, err := evaluate(req)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

// handleAnnotate draws a fused result over the uploaded image
func (s *Server) handleAnnotate(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return fmt.Errorf("%w: image is required", analysis.ErrInvalidRequest)
	}
	data, err := readFormFile(fh)
	if err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
	}
	img, err := annotate.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
	}

	var res fusion.Result
	if raw := c.FormValue("analysis"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return fmt.Errorf("%w: analysis: %v", analysis.ErrInvalidRequest, err)
		}
	}

	minConfidence := compliance.DefaultMinConfidence
	if v := c.FormValue("min_confidence"); v != "" {
		minConfidence, err = strconv.ParseFloat(v, 64)
		if err != nil || minConfidence < 0 || minConfidence > 100 {
			return fmt.Errorf("%w: min_confidence %q", analysis.ErrInvalidRequest, v)
		}
	}

	var buf bytes.Buffer
	if err := annotate.EncodePNG(&buf, annotate.Render(img, &res, minConfidence)); err != nil {
		return err
	}
	if s.cfg.Events != nil {
		s.cfg.Events.BroadcastBinary(c.FormValue("camera_id"), buf.Bytes())
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

// handleListHistory returns a user's saved analyses, newest first
func (s *Server) handleListHistory(c *fiber.Ctx) error {
	store, err := s.history()
	if err != nil {
		return err
	}
	records, err := store.List(c.UserContext(), c.Params("user"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": records, "count": len(records)})
}

// handleSaveHistory stores one analysis record
func (s *Server) handleSaveHistory(c *fiber.Ctx) error {
	store, err := s.history()
	if err != nil {
		return err
	}
	var rec history.Record
	if err := c.BodyParser(&rec); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
	}
	if err := store.Save(c.UserContext(), &rec); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// handleDeleteHistory removes one analysis record
func (s *Server) handleDeleteHistory(c *fiber.Ctx) error {
	store, err := s.history()
	if err != nil {
		return err
	}
	userID := c.Params("user")
	if err := history.ValidateUserID(userID); err != nil {
		return err
	}
	ts, err := strconv.ParseInt(c.Params("timestamp"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", history.ErrInvalidTimestamp, c.Params("timestamp"))
	}
	if err := history.ValidateTimestamp(ts); err != nil {
		return err
	}
	if err := store.Delete(c.UserContext(), userID, ts); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": true, "userId": userID, "timestamp": ts})
}

func (s *Server) history() (history.Store, error) {
	if s.cfg.History == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "history is not configured")
	}
	return s.cfg.History, nil
}

// handleExportStatus reports whether Google Docs is connected
func (s *Server) handleExportStatus(c *fiber.Ctx) error {
	if s.cfg.Export == nil {
		return c.JSON(fiber.Map{"configured": false, "connected": false})
	}
	st := s.cfg.Export.Status()
	return c.JSON(fiber.Map{"configured": true, "connected": st.Connected, "auth_url": st.AuthURL})
}

// handleExportAuth redirects to the Google consent screen
func (s *Server) handleExportAuth(c *fiber.Ctx) error {
	g, err := s.export()
	if err != nil {
		return err
	}
	return c.Redirect(g.AuthURL(), fiber.StatusTemporaryRedirect)
}

// handleExportCallback completes the OAuth flow
func (s *Server) handleExportCallback(c *fiber.Ctx) error {
	g, err := s.export()
	if err != nil {
		return err
	}
	if msg := c.Query("error"); msg != "" {
		return fiber.NewError(fiber.StatusBadRequest, "authorization denied: "+msg)
	}
	if err := g.HandleCallback(c.UserContext(), c.Query("state"), c.Query("code")); err != nil {
		return err
	}
	return c.Redirect("/?export=connected", fiber.StatusTemporaryRedirect)
}

// handleExportDisconnect forgets the stored Google token
func (s *Server) handleExportDisconnect(c *fiber.Ctx) error {
	g, err := s.export()
	if err != nil {
		return err
	}
	if err := g.Disconnect(); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"connected": false})
}

// ExportRequest is the body of POST /api/export/google.
type ExportRequest struct {
	ComplianceRequest
	Title string `json:"title"`
}

// handleExport writes a compliance report to a new Google Doc
func (s *Server) handleExport(c *fiber.Ctx) error {
	g, err := s.export()
	if err != nil {
		return err
	}
	var req ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
	}
	report, err := evaluate(req.ComplianceRequest)
	if err != nil {
		return err
	}

	now := s.cfg.Now()
	title := req.Title
	if title == "" {
		title = export.Title(now)
	}
	docID, err := g.Export(c.UserContext(), title, export.FormatReport(report, now))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"doc_id": docID, "url": export.DocURL(docID)})
}

func (s *Server) export() (*export.GoogleDocs, error) {
	if s.cfg.Export == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "google export is not configured")
	}
	return s.cfg.Export, nil
}

// handleGetFile serves an object from the local store
func (s *Server) handleGetFile(c *fiber.Ctx) error {
	key := c.Params("*")
	if err := s.cfg.Files.Verify(c.Query("token"), key, storage.OpGet); err != nil {
		return err
	}
	data, err := s.cfg.Files.Get(c.UserContext(), key)
	if err != nil {
		return err
	}
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	c.Set(fiber.HeaderContentType, ct)
	return c.Send(data)
}

// handlePutFile stores an upload made through a signed URL
func (s *Server) handlePutFile(c *fiber.Ctx) error {
	key := c.Params("*")
	if err := s.cfg.Files.Verify(c.Query("token"), key, storage.OpPut); err != nil {
		return err
	}
	body := append([]byte(nil), c.Body()...)
	if err := s.cfg.Files.Put(c.UserContext(), key, body, c.Get(fiber.HeaderContentType)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// handleEventsWS streams analysis events to a dashboard, optionally
// limited to ?camera=
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.cfg.Events, c, c.Query("camera")).Run()
}

func evaluate(req ComplianceRequest) (*compliance.Report, error) {
	if req.Analysis == nil {
		return nil, fmt.Errorf("%w: analysis is required", analysis.ErrInvalidRequest)
	}
	return compliance.Evaluate(req.Analysis, compliance.Options{
		Required:      req.Required,
		MinConfidence: req.MinConfidence,
	})
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
