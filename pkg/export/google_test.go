package export

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/teslashibe/go-ppe/internal/log"
	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/fusion"
)

func newClient(t *testing.T, tokenPath string) *GoogleDocs {
	t.Helper()
	g, err := NewGoogleDocs(GoogleDocsConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		TokenPath:    tokenPath,
		Logger:       log.Discard(),
	})
	if err != nil {
		t.Fatalf("NewGoogleDocs: %v", err)
	}
	return g
}

func TestNewGoogleDocs_MissingCredentials(t *testing.T) {
	if _, err := NewGoogleDocs(GoogleDocsConfig{}); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestNewGoogleDocs_NoToken(t *testing.T) {
	g := newClient(t, filepath.Join(t.TempDir(), "token.json"))
	if g.IsAuthenticated() {
		t.Error("expected not authenticated without token")
	}
	if _, err := g.Export(context.Background(), "t", "c"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}

	status := g.Status()
	if status.Connected || status.AuthURL == "" {
		t.Errorf("expected disconnected status with auth URL, got %+v", status)
	}
}

func TestAuthURL_CarriesState(t *testing.T) {
	g := newClient(t, filepath.Join(t.TempDir(), "token.json"))

	u, err := url.Parse(g.AuthURL())
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "test-client-id" {
		t.Errorf("expected client id in URL, got %s", q.Get("client_id"))
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("expected offline access, got %s", q.Get("access_type"))
	}
	if q.Get("state") == "" {
		t.Error("expected state in URL")
	}
}

func TestHandleCallback_RejectsBadState(t *testing.T) {
	g := newClient(t, filepath.Join(t.TempDir(), "token.json"))
	if err := g.HandleCallback(context.Background(), "x", "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState before any auth URL, got %v", err)
	}
	g.AuthURL()
	if err := g.HandleCallback(context.Background(), "wrong", "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestSavedTokenIsLoaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	data, _ := json.Marshal(&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	g := newClient(t, path)
	if !g.IsAuthenticated() {
		t.Fatal("expected authenticated with saved token")
	}
	if g.Status().AuthURL != "" {
		t.Error("expected no auth URL when connected")
	}

	if err := g.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if g.IsAuthenticated() {
		t.Error("expected not authenticated after disconnect")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected token file removed")
	}
}

func TestDocURL(t *testing.T) {
	if got := DocURL("abc"); got != "https://docs.google.com/document/d/abc/edit" {
		t.Errorf("unexpected URL %s", got)
	}
}

func TestFormatReport(t *testing.T) {
	res := &fusion.Result{ProtectiveEquipment: []fusion.Person{{
		ID: 0,
		BodyParts: []fusion.BodyPart{{
			Name: fusion.PartHead,
			EquipmentDetections: []fusion.EquipmentDetection{
				{Type: fusion.HeadCover, Confidence: 97.5, DetectionMethod: fusion.MethodNative},
			},
		}},
	}}}
	report, err := compliance.Evaluate(res, compliance.Options{
		Required: []fusion.EquipmentType{fusion.HeadCover, fusion.EyeCover},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	at := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	text := FormatReport(report, at)
	for _, want := range []string{
		"PPE compliance report 2024-03-05 14:07",
		"Person 0: partial",
		"Helmet 97.5% (NATIVE, HIGH trust) pass",
		"Missing: Safety glasses",
		"Threshold: 75%",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in report:\n%s", want, text)
		}
	}
}
