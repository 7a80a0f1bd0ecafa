package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-ppe/internal/httpc"
	"github.com/teslashibe/go-ppe/pkg/fusion"
)

const backendHTTP = "http"

// HTTPClient is a Detector that talks JSON to a detection service
// exposing /ppe, /labels and /faces. Responses use the same shapes as
// the fusion package.
type HTTPClient struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

type detectRequest struct {
	Image                  Image                  `json:"image"`
	MinConfidence          float64                `json:"min_confidence"`
	MaxLabels              int                    `json:"max_labels,omitempty"`
	RequiredEquipmentTypes []fusion.EquipmentType `json:"required_equipment_types,omitempty"`
}

// NewHTTPClient creates an HTTP detection backend.
func NewHTTPClient(opts ...Option) (*HTTPClient, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "detect.http"),
	}, nil
}

// DetectProtectiveEquipment posts to /ppe.
func (c *HTTPClient) DetectProtectiveEquipment(ctx context.Context, img Image) (*fusion.NativeResult, error) {
	var out fusion.NativeResult
	req := detectRequest{
		Image:                  img,
		MinConfidence:          c.config.MinConfidence,
		RequiredEquipmentTypes: RequiredEquipment(),
	}
	if err := c.call(ctx, "/ppe", img, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectLabels posts to /labels.
func (c *HTTPClient) DetectLabels(ctx context.Context, img Image) (*fusion.LabelResult, error) {
	var out fusion.LabelResult
	req := detectRequest{
		Image:         img,
		MinConfidence: c.config.MinConfidence,
		MaxLabels:     c.config.MaxLabels,
	}
	if err := c.call(ctx, "/labels", img, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectFaces posts to /faces.
func (c *HTTPClient) DetectFaces(ctx context.Context, img Image) (*fusion.FaceResult, error) {
	var out fusion.FaceResult
	req := detectRequest{
		Image:         img,
		MinConfidence: c.config.MinConfidence,
	}
	if err := c.call(ctx, "/faces", img, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks if the service is reachable.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return WrapError(backendHTTP, "health", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(backendHTTP, "health", fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) call(ctx context.Context, path string, img Image, payload, out any) error {
	if err := img.Validate(); err != nil {
		return err
	}
	start := time.Now()

	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(backendHTTP, path, fmt.Errorf("decode response: %w", err))
	}

	c.logger.Debug("detection complete", "path", path, "image", img.String(), "latency", time.Since(start))
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(backendHTTP, path, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(backendHTTP, path, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.doWithRetry(ctx, req, body)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doWithRetry performs the request, retrying transport failures and
// retryable API errors. Any other non-200 response is returned as an
// *APIError.
func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			// Reset body for retry
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = WrapError(backendHTTP, req.URL.Path, err)
			c.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := c.parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		c.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", apiErr.StatusCode,
		)
	}

	return nil, lastErr
}

func (c *HTTPClient) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Backend:    backendHTTP,
	}
}

// Ensure HTTPClient implements Detector.
var _ Detector = (*HTTPClient)(nil)
