// Package llm provides clients for OpenAI-compatible embedding and
// completion endpoints.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"intent-gateway/internal/common/config"
	stderrors "intent-gateway/internal/common/errors"
	"intent-gateway/internal/common/httpclient"
	"intent-gateway/internal/common/logger"
)

// Embedder converts text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	ErrEmptyInput      = errors.New("EMPTY_INPUT")
	ErrEmptyResponse   = errors.New("EMPTY_MODEL_RESPONSE")
	ErrProviderFailure = errors.New("PROVIDER_FAILURE")
)

// Client talks to an OpenAI-compatible REST API. The same client type serves
// both the embedding and the completion endpoint, configured separately.
type Client struct {
	cfg    config.ProviderConfig
	http   *httpclient.Client
	logger logger.Logger
}

// NewClient creates a provider client from its endpoint configuration.
func NewClient(cfg config.ProviderConfig, log logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   httpclient.NewClient(timeout),
		logger: log,
	}
}

// ==========================
// 1. Embeddings
// ==========================

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	body := embeddingRequest{
		Model: c.cfg.Model,
		Input: []string{text},
	}

	var resp embeddingResponse
	if err := c.postJSON(ctx, "/v1/embeddings", body, &resp); err != nil {
		return nil, stderrors.NewEmbeddingFailedError(err)
	}
	if resp.Error != nil {
		return nil, stderrors.NewEmbeddingFailedError(fmt.Errorf("%w: %s", ErrProviderFailure, resp.Error.Message))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, stderrors.NewEmbeddingFailedError(ErrEmptyResponse)
	}

	return resp.Data[0].Embedding, nil
}

// ==========================
// 2. Completions
// ==========================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete sends a single-turn chat completion and returns the raw model text.
// Temperature is pinned to 0 so parameter extraction stays deterministic.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	body := completionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}

	var resp completionResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", stderrors.NewCompletionFailedError(err)
	}
	if resp.Error != nil {
		return "", stderrors.NewCompletionFailedError(fmt.Errorf("%w: %s", ErrProviderFailure, resp.Error.Message))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", stderrors.NewCompletionFailedError(ErrEmptyResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// ==========================
// 3. Transport
// ==========================

// postJSON issues the request with bounded retries. Each attempt re-marshals
// nothing and reuses the encoded payload; backoff doubles per attempt and is
// interrupted by context cancellation.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(100*(1<<(attempt-2))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.logger.Warn("Retrying provider request", map[string]interface{}{
				"url":     url,
				"attempt": attempt,
			})
		}

		lastErr = c.doOnce(ctx, url, payload, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryableHTTPError(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, payload []byte, out interface{}) error {
	var headers map[string]string
	if c.cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	}

	resp, err := c.http.Send(ctx, http.MethodPost, url, headers, payload)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &httpStatusError{status: resp.StatusCode, body: truncate(string(resp.Body), 512)}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
}

// isRetryableHTTPError treats connection failures, 5xx and 429 as transient.
// 4xx responses other than 429 indicate a request problem and never retry.
func isRetryableHTTPError(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status >= 500 || statusErr.status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
