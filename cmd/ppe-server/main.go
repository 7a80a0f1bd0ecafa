// ppe-server: HTTP API for hybrid PPE detection
// Serves analyses, compliance reports, history and camera frame ingest
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/teslashibe/go-ppe/internal/config"
	"github.com/teslashibe/go-ppe/internal/log"
	"github.com/teslashibe/go-ppe/pkg/analysis"
	"github.com/teslashibe/go-ppe/pkg/detect"
	"github.com/teslashibe/go-ppe/pkg/export"
	"github.com/teslashibe/go-ppe/pkg/fusion"
	"github.com/teslashibe/go-ppe/pkg/history"
	"github.com/teslashibe/go-ppe/pkg/hub"
	"github.com/teslashibe/go-ppe/pkg/storage"
	"github.com/teslashibe/go-ppe/pkg/stream"
	"github.com/teslashibe/go-ppe/pkg/web"
)

var (
	version   = "1.0.0"
	staticDir = flag.String("static", "", "Directory served at /")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()
	logger.Info("starting ppe-server", "version", version, "storage", cfg.Storage, "detector", cfg.Detector, "history", cfg.History)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, files, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	detector, err := openDetector(ctx, cfg, logger)
	if err != nil {
		logger.Error("detector init failed", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	hist, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Error("history init failed", "error", err)
		os.Exit(1)
	}
	defer hist.Close()

	events := hub.New("events", logger)
	go events.Run()
	defer events.Stop()

	svc, err := analysis.New(analysis.Config{
		Detector:             detector,
		Store:                store,
		History:              hist,
		Events:               events,
		Engine:               fusion.New(fusion.WithLogger(logger)),
		DefaultMinConfidence: cfg.DefaultMinConfidence,
		URLTTL:               cfg.URLTTL,
		InlineImages:         cfg.Storage == config.StorageLocal,
		Logger:               logger,
	})
	if err != nil {
		logger.Error("analysis init failed", "error", err)
		os.Exit(1)
	}

	var docs *export.GoogleDocs
	if cfg.GoogleEnabled() {
		docs, err = export.NewGoogleDocs(export.GoogleDocsConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			TokenPath:    filepath.Join(cfg.DataDir, "google_token.json"),
			Logger:       logger,
		})
		if err != nil {
			logger.Warn("google export disabled", "error", err)
			docs = nil
		}
	}

	server, err := web.NewServer(web.Config{
		Analysis:  svc,
		History:   hist,
		Files:     files,
		Export:    docs,
		Events:    events,
		Stream:    stream.NewHub(svc, events, logger),
		StaticDir: *staticDir,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := detector.Health(ctx); err != nil {
			logger.Warn("detector health check failed", "error", err)
		}
	}()

	go func() {
		if err := server.Listen(cfg.ListenAddr); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	done := make(chan error, 1)
	go func() { done <- server.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case <-time.After(5 * time.Second):
		logger.Warn("shutdown timed out")
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, *storage.Local, error) {
	switch cfg.Storage {
	case config.StorageS3:
		s, err := storage.NewS3(ctx, cfg.Bucket, cfg.Region, logger)
		return s, nil, err
	default:
		l, err := storage.NewLocal(filepath.Join(cfg.DataDir, "objects"), cfg.PublicURL, []byte(cfg.SigningKey), logger)
		return l, l, err
	}
}

func openDetector(ctx context.Context, cfg config.Config, logger *slog.Logger) (detect.Detector, error) {
	switch cfg.Detector {
	case config.DetectorHTTP:
		return detect.NewHTTPClient(
			detect.WithBaseURL(cfg.DetectorURL),
			detect.WithAPIKey(cfg.DetectorAPIKey),
			detect.WithLogger(logger),
		)
	default:
		return detect.NewRekognition(ctx,
			detect.WithRegion(cfg.Region),
			detect.WithLogger(logger),
		)
	}
}

func openHistory(ctx context.Context, cfg config.Config) (history.Store, error) {
	switch cfg.History {
	case config.HistoryPostgres:
		return history.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return history.NewJSONStore(filepath.Join(cfg.DataDir, "history.json"))
	}
}
