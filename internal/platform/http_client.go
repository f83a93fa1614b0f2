package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/karmaloop/karmaloop/internal/models"
)

// HTTPClient talks to the platform gateway over HTTP. The gateway owns the
// concrete platform wire protocol and session management; this client only
// deals with the capability contract: profiles, submissions, comments and
// actions, with typed rejections.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *slog.Logger
}

// HTTPClientConfig configures the gateway client.
type HTTPClientConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	CallTimeout       time.Duration
}

// DefaultHTTPClientConfig returns conservative defaults sized for platform
// rate limits.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		RequestsPerSecond: 2,
		CallTimeout:       30 * time.Second,
	}
}

// NewHTTPClient creates a rate-limited gateway client.
func NewHTTPClient(cfg HTTPClientConfig, logger *slog.Logger) *HTTPClient {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.CallTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		callTimeout: cfg.CallTimeout,
		logger:      logger,
	}
}

// FetchProfile returns the public profile for a username.
func (c *HTTPClient) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	var profile Profile
	path := fmt.Sprintf("/v1/profiles/%s", url.PathEscape(username))
	if err := c.get(ctx, path, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FetchSubmissions returns up to limit recent submissions for a username.
func (c *HTTPClient) FetchSubmissions(ctx context.Context, username string, limit int) ([]Submission, error) {
	var submissions []Submission
	path := fmt.Sprintf("/v1/profiles/%s/submissions?limit=%d", url.PathEscape(username), limit)
	if err := c.get(ctx, path, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

// FetchComments returns up to limit recent comments for a username.
func (c *HTTPClient) FetchComments(ctx context.Context, username string, limit int) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("/v1/profiles/%s/comments?limit=%d", url.PathEscape(username), limit)
	if err := c.get(ctx, path, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

type actionRequest struct {
	AccountID string            `json:"account_id"`
	Username  string            `json:"username"`
	Kind      models.ActionKind `json:"kind"`
	Target    string            `json:"target"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PerformAction executes one action through the gateway.
func (c *HTTPClient) PerformAction(ctx context.Context, creds ActionCredentials, kind models.ActionKind, target string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return NewTransientError(fmt.Errorf("rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := json.Marshal(actionRequest{
		AccountID: creds.AccountID,
		Username:  creds.Username,
		Kind:      kind,
		Target:    target,
	})
	if err != nil {
		return fmt.Errorf("marshal action request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/actions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewTransientError(fmt.Errorf("perform action: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		c.logger.Debug("action performed", "kind", kind, "target", target, "username", creds.Username)
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	var errResp errorResponse
	_ = json.Unmarshal(respBody, &errResp)

	// The gateway distinguishes target-level rejections from everything else.
	if resp.StatusCode == http.StatusForbidden && errResp.Code == "target_not_permitted" {
		return &TargetNotPermittedError{Target: target, Reason: errResp.Message}
	}

	return NewTransientError(fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody)))
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return NewTransientError(fmt.Errorf("rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewTransientError(fmt.Errorf("gateway request: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return ErrProfileNotFound
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return NewTransientError(fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody)))
	}
}
