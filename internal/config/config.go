// Package config provides configuration helpers for go-ppe commands.
// Every setting comes from the environment with a default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultListenAddr    = ":8080"
	DefaultBucket        = "rekognition-ppe"
	DefaultRegion        = "us-east-1"
	DefaultURLTTL        = time.Hour
	DefaultMinConfidence = 80.0
	DefaultLogLevel      = "info"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Detector backends.
const (
	DetectorRekognition = "rekognition"
	DetectorHTTP        = "http"
)

// History backends.
const (
	HistoryJSON     = "json"
	HistoryPostgres = "postgres"
)

// Config is the resolved service configuration.
type Config struct {
	LogLevel   string
	LogFormat  string
	ListenAddr string
	PublicURL  string

	Storage    string
	Bucket     string
	DataDir    string
	SigningKey string
	URLTTL     time.Duration

	Detector       string
	DetectorURL    string
	DetectorAPIKey string
	Region         string

	History     string
	DatabaseURL string

	DefaultMinConfidence float64

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:   String("PPE_LOG_LEVEL", DefaultLogLevel),
		LogFormat:  os.Getenv("PPE_LOG_FORMAT"),
		ListenAddr: String("PPE_LISTEN_ADDR", DefaultListenAddr),

		Storage:    strings.ToLower(String("PPE_STORAGE", StorageLocal)),
		Bucket:     String("PPE_BUCKET", DefaultBucket),
		DataDir:    String("PPE_DATA_DIR", DefaultDataDir()),
		SigningKey: os.Getenv("PPE_SIGNING_KEY"),

		Detector:       strings.ToLower(String("PPE_DETECTOR", DetectorRekognition)),
		DetectorURL:    os.Getenv("PPE_DETECTOR_URL"),
		DetectorAPIKey: os.Getenv("PPE_DETECTOR_API_KEY"),
		Region:         String("AWS_REGION", DefaultRegion),

		History:     strings.ToLower(String("PPE_HISTORY", HistoryJSON)),
		DatabaseURL: os.Getenv("PPE_DATABASE_URL"),

		GoogleClientID:     os.Getenv("PPE_GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("PPE_GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("PPE_GOOGLE_REDIRECT_URL"),
	}
	cfg.PublicURL = String("PPE_PUBLIC_URL", "http://localhost"+cfg.ListenAddr)

	var err error
	if cfg.URLTTL, err = Duration("PPE_URL_TTL", DefaultURLTTL); err != nil {
		return cfg, err
	}
	if cfg.DefaultMinConfidence, err = Float("PPE_DEFAULT_MIN_CONFIDENCE", DefaultMinConfidence); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks backend selections and their required settings.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageLocal:
		if c.SigningKey == "" {
			return fmt.Errorf("config: PPE_SIGNING_KEY is required for local storage")
		}
	case StorageS3:
	default:
		return fmt.Errorf("config: unknown PPE_STORAGE %q", c.Storage)
	}

	switch c.Detector {
	case DetectorRekognition:
	case DetectorHTTP:
		if c.DetectorURL == "" {
			return fmt.Errorf("config: PPE_DETECTOR_URL is required for the http detector")
		}
	default:
		return fmt.Errorf("config: unknown PPE_DETECTOR %q", c.Detector)
	}

	switch c.History {
	case HistoryJSON:
	case HistoryPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: PPE_DATABASE_URL is required for postgres history")
		}
	default:
		return fmt.Errorf("config: unknown PPE_HISTORY %q", c.History)
	}

	if c.DefaultMinConfidence < 0 || c.DefaultMinConfidence > 100 {
		return fmt.Errorf("config: PPE_DEFAULT_MIN_CONFIDENCE must be within [0,100], got %v", c.DefaultMinConfidence)
	}
	if c.URLTTL <= 0 {
		return fmt.Errorf("config: PPE_URL_TTL must be positive")
	}
	return nil
}

// GoogleEnabled reports whether Google Docs export is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// DefaultDataDir returns ~/.ppe, or ./.ppe when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ppe"
	}
	return filepath.Join(home, ".ppe")
}

// String returns the env var or def if unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Float parses the env var as a float, returning def if unset.
func Float(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

// Duration parses the env var as a time.Duration, returning def if unset.
func Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

// Required returns the env var or exits with a usage hint.
func Required(key, usage string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", key)
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	return v
}
