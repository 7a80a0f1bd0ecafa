// Package export publishes compliance reports to Google Docs.
package export

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// Sentinel errors.
var (
	// ErrNotAuthenticated is returned until the OAuth flow has completed.
	ErrNotAuthenticated = errors.New("export: not authenticated with Google")

	// ErrInvalidState is returned when a callback state does not match.
	ErrInvalidState = errors.New("export: invalid oauth state")
)

const requestTimeout = 30 * time.Second

// GoogleDocsConfig configures the Google Docs client.
type GoogleDocsConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "http://localhost:8080/api/export/google/callback"
	TokenPath    string // default: ~/.ppe/google_token.json
	Logger       *slog.Logger
}

// GoogleDocs handles OAuth2 authentication and document creation.
type GoogleDocs struct {
	config    *oauth2.Config
	tokenPath string
	logger    *slog.Logger

	mu          sync.RWMutex
	token       *oauth2.Token
	docsService *docs.Service
	state       string
}

// NewGoogleDocs creates a client and loads a saved token if present.
func NewGoogleDocs(cfg GoogleDocsConfig) (*GoogleDocs, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("export: client id and secret are required")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/export/google/callback"
	}
	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".ppe", "google_token.json")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := &GoogleDocs{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		logger:    cfg.Logger.With("component", "export.google"),
	}

	if err := g.loadToken(); err == nil {
		if err := g.initService(context.Background()); err != nil {
			g.logger.Warn("saved token unusable", "error", err)
			g.token = nil
		}
	}
	return g, nil
}

// IsAuthenticated reports whether a usable token is loaded.
func (g *GoogleDocs) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != nil && (g.token.Valid() || g.token.RefreshToken != "")
}

// AuthURL returns the consent URL and remembers its state value.
func (g *GoogleDocs) AuthURL() string {
	state := newState()
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code for a token.
func (g *GoogleDocs) HandleCallback(ctx context.Context, state, code string) error {
	g.mu.RLock()
	want := g.state
	g.mu.RUnlock()
	if want == "" || state != want {
		return ErrInvalidState
	}
	if code == "" {
		return errors.New("export: missing authorization code")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	g.mu.Lock()
	g.token = token
	g.state = ""
	g.mu.Unlock()

	if err := g.saveToken(); err != nil {
		g.logger.Warn("failed to save token", "error", err)
	}
	if err := g.initService(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize docs service: %w", err)
	}
	return nil
}

// Disconnect forgets the token and removes it from disk.
func (g *GoogleDocs) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.token = nil
	g.docsService = nil
	if err := os.Remove(g.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Export creates a document with title and content and returns its ID.
func (g *GoogleDocs) Export(ctx context.Context, title, content string) (string, error) {
	g.mu.RLock()
	service := g.docsService
	g.mu.RUnlock()
	if service == nil {
		return "", ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	created, err := service.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	if content != "" {
		_, err = service.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     content,
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return created.DocumentId, fmt.Errorf("created doc but failed to add content: %w", err)
		}
	}

	g.logger.Info("report exported", "doc", created.DocumentId)
	return created.DocumentId, nil
}

// DocURL returns the URL to view a Google Doc.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// Status is the connection state shown to clients.
type Status struct {
	Connected bool   `json:"connected"`
	AuthURL   string `json:"auth_url,omitempty"`
}

// Status returns the current connection state.
func (g *GoogleDocs) Status() Status {
	s := Status{Connected: g.IsAuthenticated()}
	if !s.Connected {
		s.AuthURL = g.AuthURL()
	}
	return s
}

func (g *GoogleDocs) initService(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == nil {
		return errors.New("no token available")
	}
	client := g.config.Client(ctx, g.token)
	service, err := docs.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("failed to create docs service: %w", err)
	}
	g.docsService = service
	return nil
}

func (g *GoogleDocs) loadToken() error {
	data, err := os.ReadFile(g.tokenPath)
	if err != nil {
		return err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}

	g.mu.Lock()
	g.token = &token
	g.mu.Unlock()
	return nil
}

func (g *GoogleDocs) saveToken() error {
	g.mu.RLock()
	token := g.token
	g.mu.RUnlock()
	if token == nil {
		return errors.New("no token to save")
	}

	if err := os.MkdirAll(filepath.Dir(g.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.tokenPath, data, 0600)
}

func newState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
