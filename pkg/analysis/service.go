package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/detect"
	"github.com/teslashibe/go-ppe/pkg/fusion"
	"github.com/teslashibe/go-ppe/pkg/history"
	"github.com/teslashibe/go-ppe/pkg/protocol"
	"github.com/teslashibe/go-ppe/pkg/storage"
)

// Publisher receives an event for every finished analysis.
type Publisher interface {
	Publish(msg *protocol.Message) error
}

// Config holds the service collaborators.
type Config struct {
	Detector detect.Detector
	Store    storage.Store

	// History is optional. Requests with a user ID are saved to it.
	History history.Store

	// Events is optional.
	Events Publisher

	Engine               *fusion.Engine
	DefaultMinConfidence float64
	URLTTL               time.Duration

	// InlineImages makes the service read stored images and send their
	// bytes to the detector, for detectors that cannot reach the store.
	InlineImages bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Service runs analyses.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Detector == nil {
		return nil, errors.New("analysis: detector is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("analysis: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Engine == nil {
		cfg.Engine = fusion.New(fusion.WithLogger(cfg.Logger))
	}
	if cfg.DefaultMinConfidence == 0 {
		cfg.DefaultMinConfidence = DefaultMinConfidence
	}
	if cfg.URLTTL == 0 {
		cfg.URLTTL = storage.DefaultURLTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "analysis.service"),
	}, nil
}

// Inspection is a fused result with its compliance report.
type Inspection struct {
	Result *fusion.Result
	Report *compliance.Report
}

// Inspect runs the PPE pipeline on img without storing anything.
func (s *Service) Inspect(ctx context.Context, img detect.Image, minConfidence float64) (*Inspection, error) {
	minConfidence, err := s.minConfidence(minConfidence)
	if err != nil {
		return nil, err
	}
	res, err := s.fuse(ctx, img, minConfidence)
	if err != nil {
		return nil, err
	}
	report, err := compliance.Evaluate(res, compliance.Options{MinConfidence: minConfidence})
	if err != nil {
		return nil, err
	}
	return &Inspection{Result: res, Report: report}, nil
}

// Analyze runs req, stores the result JSON and returns signed URLs for
// the result and the source image.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	typ, err := ParseDetectionType(req.DetectionType)
	if err != nil {
		return nil, err
	}
	minConfidence, err := s.minConfidence(req.MinConfidence)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" {
		if err := history.ValidateUserID(req.UserID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if req.Bucket != "" && req.Bucket != s.cfg.Store.Bucket() {
		return nil, fmt.Errorf("%w: bucket %q is not served here", ErrInvalidRequest, req.Bucket)
	}

	img, key, err := s.resolveImage(ctx, req)
	if err != nil {
		return nil, err
	}

	start := s.cfg.Now()
	resp := &Response{ImageKey: key, Timestamp: start.UnixMilli()}

	switch typ {
	case TypePPE:
		resp.PPE, err = s.fuse(ctx, img, minConfidence)
	case TypeFace:
		resp.Faces, err = s.faces(ctx, img, minConfidence)
	case TypeLabel:
		resp.Labels, err = s.labels(ctx, img, minConfidence)
	}
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, resp); err != nil {
		return nil, err
	}

	s.logger.Info("analysis complete",
		"type", typ,
		"image", key,
		"result", resp.ResultKey,
		"duration", s.cfg.Now().Sub(start))

	s.saveHistory(ctx, req.UserID, resp)
	s.publish(resp, minConfidence)
	return resp, nil
}

// UploadURL returns a signed URL for filename under input/. Operation is
// "put" (default) or "get".
func (s *Service) UploadURL(ctx context.Context, filename, operation string) (string, error) {
	key, err := storage.UploadKey(filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	op, err := storage.ParseOperation(operation)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	url, err := s.cfg.Store.SignURL(ctx, key, op, s.cfg.URLTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return url, nil
}

func (s *Service) minConfidence(v float64) (float64, error) {
	if v == 0 {
		return s.cfg.DefaultMinConfidence, nil
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("%w: min_confidence %v outside [0,100]", ErrInvalidRequest, v)
	}
	return v, nil
}

// resolveImage stores inline uploads and builds the detector image.
func (s *Service) resolveImage(ctx context.Context, req Request) (detect.Image, string, error) {
	bucket := s.cfg.Store.Bucket()

	if len(req.Image) > 0 {
		key := req.Filename
		if key == "" {
			key = storage.InputPrefix + uuid.New().String() + extension(req.Image)
		}
		key, err := storage.UploadKey(key)
		if err != nil {
			return detect.Image{}, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if err := s.cfg.Store.Put(ctx, key, req.Image, http.DetectContentType(req.Image)); err != nil {
			return detect.Image{}, "", fmt.Errorf("%w: %w", ErrProcessing, err)
		}
		return detect.Image{Bucket: bucket, Key: key, Bytes: req.Image}, key, nil
	}

	if req.Filename == "" {
		return detect.Image{}, "", fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	}
	key, err := storage.CleanKey(req.Filename)
	if err != nil {
		return detect.Image{}, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	img := detect.Image{Bucket: bucket, Key: key}
	if s.cfg.InlineImages {
		data, err := s.cfg.Store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return detect.Image{}, "", err
		}
		if err != nil {
			return detect.Image{}, "", fmt.Errorf("%w: %w", ErrProcessing, err)
		}
		img.Bytes = data
	}
	return img, key, nil
}

// fuse calls the three detectors concurrently. The first failure cancels
// the others.
func (s *Service) fuse(ctx context.Context, img detect.Image, minConfidence float64) (*fusion.Result, error) {
	var (
		native *fusion.NativeResult
		labels *fusion.LabelResult
		faces  *fusion.FaceResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		native, err = s.cfg.Detector.DetectProtectiveEquipment(gctx, img)
		return err
	})
	g.Go(func() error {
		var err error
		labels, err = s.cfg.Detector.DetectLabels(gctx, img)
		return err
	})
	g.Go(func() error {
		var err error
		faces, err = s.cfg.Detector.DetectFaces(gctx, img)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("detection failed", "image", img, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	return s.cfg.Engine.Fuse(fusion.Input{
		Native:        native,
		Labels:        labels,
		Faces:         faces,
		MinConfidence: minConfidence,
	}), nil
}

func (s *Service) faces(ctx context.Context, img detect.Image, minConfidence float64) (*FaceAnalysis, error) {
	res, err := s.cfg.Detector.DetectFaces(ctx, img)
	if err != nil {
		s.logger.Error("face detection failed", "image", img, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	faces := []fusion.Face{}
	if res != nil && res.FaceDetails != nil {
		faces = res.FaceDetails
	}
	return &FaceAnalysis{
		Faces:         faces,
		Summary:       FaceSummary{TotalFaces: len(faces), MinConfidence: minConfidence},
		DetectionType: TypeFace,
	}, nil
}

func (s *Service) labels(ctx context.Context, img detect.Image, minConfidence float64) (*LabelAnalysis, error) {
	res, err := s.cfg.Detector.DetectLabels(ctx, img)
	if err != nil {
		s.logger.Error("label detection failed", "image", img, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	labels := []fusion.Label{}
	if res != nil && res.Labels != nil {
		labels = res.Labels
	}
	return &LabelAnalysis{
		Labels:        labels,
		Summary:       LabelSummary{TotalLabels: len(labels), MinConfidence: minConfidence},
		DetectionType: TypeLabel,
	}, nil
}

// persist writes the payload under web/ and signs both URLs.
func (s *Service) persist(ctx context.Context, resp *Response) error {
	body, err := json.Marshal(resp.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	resp.ResultKey = storage.ResultKey(resp.ImageKey, s.cfg.Now())
	if err := s.cfg.Store.Put(ctx, resp.ResultKey, body, "application/json"); err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	resp.PresignedURL, err = s.cfg.Store.SignURL(ctx, resp.ResultKey, storage.OpGet, s.cfg.URLTTL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	resp.ImagePresignedURL, err = s.cfg.Store.SignURL(ctx, resp.ImageKey, storage.OpGet, s.cfg.URLTTL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return nil
}

// saveHistory records the analysis for userID. Failures are logged; the
// analysis itself already succeeded.
func (s *Service) saveHistory(ctx context.Context, userID string, resp *Response) {
	if userID == "" || s.cfg.History == nil {
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("history encode failed", "error", err)
		return
	}
	rec := &history.Record{UserID: userID, Timestamp: resp.Timestamp, Analysis: body}
	if err := s.cfg.History.Save(ctx, rec); err != nil {
		s.logger.Warn("history save failed", "user", userID, "error", err)
	}
}

func (s *Service) publish(resp *Response, minConfidence float64) {
	if s.cfg.Events == nil {
		return
	}
	ev := protocol.AnalysisEvent{Source: "api", ResultKey: resp.ResultKey}
	if resp.PPE != nil {
		ev.TotalPersons = resp.PPE.Summary.TotalPersons
		ev.Compliant = resp.PPE.Summary.Compliant
		if report, err := compliance.Evaluate(resp.PPE, compliance.Options{MinConfidence: minConfidence}); err == nil {
			ev.CompliancePercent = report.CompliancePercent
		}
	}
	msg, err := protocol.NewAnalysisMessage(ev)
	if err == nil {
		err = s.cfg.Events.Publish(msg)
	}
	if err != nil {
		s.logger.Warn("event publish failed", "error", err)
	}
}

func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
