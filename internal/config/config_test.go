package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PPE_SIGNING_KEY", "secret")
	t.Setenv("PPE_STORAGE", "")
	t.Setenv("PPE_DETECTOR", "")
	t.Setenv("PPE_HISTORY", "")
	t.Setenv("PPE_URL_TTL", "")
	t.Setenv("PPE_DEFAULT_MIN_CONFIDENCE", "")
	t.Setenv("PPE_LISTEN_ADDR", "")
	t.Setenv("PPE_PUBLIC_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != StorageLocal {
		t.Errorf("Expected local storage, got %s", cfg.Storage)
	}
	if cfg.Detector != DetectorRekognition {
		t.Errorf("Expected rekognition detector, got %s", cfg.Detector)
	}
	if cfg.URLTTL != time.Hour {
		t.Errorf("Expected 1h TTL, got %v", cfg.URLTTL)
	}
	if cfg.DefaultMinConfidence != 80 {
		t.Errorf("Expected default min confidence 80, got %v", cfg.DefaultMinConfidence)
	}
	if cfg.PublicURL != "http://localhost:8080" {
		t.Errorf("Expected derived public URL, got %s", cfg.PublicURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "local storage without key",
			env:  map[string]string{"PPE_STORAGE": "local", "PPE_SIGNING_KEY": ""},
			want: "PPE_SIGNING_KEY",
		},
		{
			name: "unknown storage",
			env:  map[string]string{"PPE_STORAGE": "ftp"},
			want: "PPE_STORAGE",
		},
		{
			name: "http detector without url",
			env:  map[string]string{"PPE_STORAGE": "s3", "PPE_DETECTOR": "http", "PPE_DETECTOR_URL": ""},
			want: "PPE_DETECTOR_URL",
		},
		{
			name: "postgres without dsn",
			env:  map[string]string{"PPE_STORAGE": "s3", "PPE_HISTORY": "postgres", "PPE_DATABASE_URL": ""},
			want: "PPE_DATABASE_URL",
		},
		{
			name: "bad ttl",
			env:  map[string]string{"PPE_STORAGE": "s3", "PPE_URL_TTL": "soon"},
			want: "PPE_URL_TTL",
		},
		{
			name: "confidence out of range",
			env:  map[string]string{"PPE_STORAGE": "s3", "PPE_DEFAULT_MIN_CONFIDENCE": "120"},
			want: "PPE_DEFAULT_MIN_CONFIDENCE",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"PPE_STORAGE", "PPE_SIGNING_KEY", "PPE_DETECTOR", "PPE_DETECTOR_URL", "PPE_HISTORY", "PPE_DATABASE_URL", "PPE_URL_TTL", "PPE_DEFAULT_MIN_CONFIDENCE"} {
				t.Setenv(k, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestGoogleEnabled(t *testing.T) {
	if (Config{}).GoogleEnabled() {
		t.Error("Expected disabled without credentials")
	}
	if !(Config{GoogleClientID: "id", GoogleClientSecret: "secret"}).GoogleEnabled() {
		t.Error("Expected enabled with credentials")
	}
}
