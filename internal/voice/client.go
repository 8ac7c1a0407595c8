// Package voice provides the client for the external voice-call provider.
// The provider creates a call from a system prompt and returns a join URL
// that the browser SDK uses to attach to the live call.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voiceos/backend/internal/domain"
)

const maxErrorBody = 4096

// Provider creates calls on the external voice platform.
type Provider interface {
	CreateCall(ctx context.Context, req CallRequest) (*Call, error)
}

// CallRequest describes a call to create.
type CallRequest struct {
	SystemPrompt string
	MaxDuration  time.Duration
	Metadata     map[string]string
}

// Call is the provider's handle for a created call.
type Call struct {
	CallID  string `json:"callId"`
	JoinURL string `json:"joinUrl"`
}

// Config holds provider connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// APIError is returned when the provider answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice provider returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets callers match provider failures with errors.Is(err, domain.ErrProvider).
func (e *APIError) Unwrap() error {
	return domain.ErrProvider
}

// Client calls an Ultravox-compatible HTTPS API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a provider client. A zero Timeout defaults to 15 seconds.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type createCallBody struct {
	SystemPrompt string            `json:"systemPrompt"`
	Model        string            `json:"model,omitempty"`
	Voice        string            `json:"voice,omitempty"`
	MaxDuration  string            `json:"maxDuration,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CreateCall creates a call and returns its join handle. Exactly one attempt
// is made; every failure wraps domain.ErrProvider.
func (c *Client) CreateCall(ctx context.Context, req CallRequest) (*Call, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", domain.ErrProvider)
	}

	body := createCallBody{
		SystemPrompt: req.SystemPrompt,
		Model:        c.cfg.Model,
		Voice:        c.cfg.Voice,
		Metadata:     req.Metadata,
	}
	if req.MaxDuration > 0 {
		body.MaxDuration = fmt.Sprintf("%ds", int(req.MaxDuration.Seconds()))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrProvider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/calls", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var call Call
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProvider, err)
	}
	if call.JoinURL == "" {
		return nil, fmt.Errorf("%w: response has no join url", domain.ErrProvider)
	}
	return &call, nil
}
