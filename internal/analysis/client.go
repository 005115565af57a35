package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
)

const (
	requestAttempts    = 3
	requestBackoffBase = 2 * time.Second
)

// Client calls a chat-completions endpoint to analyze session transcripts.
type Client struct {
	cfg        config.Analysis
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSleeper overrides the backoff sleep behaviour (used by tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient builds an analysis client from configuration.
func NewClient(cfg config.Analysis, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logging.NewComponentLogger(logger, "analysis"),
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzeSession sends the transcript to the model and decodes the structured
// result. Oversized transcripts are truncated with a visible notice so the
// model knows the tail is missing. An empty transcript still goes to the
// model; a session whose tracks all failed transcription gets a report saying
// so rather than a failed pipeline.
func (c *Client) AnalyzeSession(ctx context.Context, transcript string) (*Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "analyze", "request", "analysis.api_key is not set", nil)
	}
	if timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if max := c.cfg.MaxTranscriptChars; max > 0 && len(transcript) > max {
		c.logger.Warn("truncating transcript for analysis",
			logging.Int("original_length", len(transcript)),
			logging.Int("truncated_to", max),
		)
		transcript = transcript[:max] + truncationNotice
	}

	payload := chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, transcript)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, services.Wrap(services.ErrExternalAPI, "analyze", "chat", resp.Error.Message, nil)
	}
	if len(resp.Choices) == 0 {
		return nil, services.Wrap(services.ErrExternalAPI, "analyze", "chat", "model returned no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, services.Wrap(services.ErrExternalAPI, "analyze", "chat", "model returned empty content", nil)
	}

	var parsed SessionAnalysis
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalAPI, "analyze", "decode", "model returned malformed JSON", err)
	}

	return &Result{
		SessionAnalysis:  parsed,
		Model:            c.cfg.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies the endpoint is configured without spending tokens.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("analysis.api_key is not set")
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return errors.New("analysis.base_url is not set")
	}
	return nil
}

func (c *Client) send(ctx context.Context, body []byte) (*chatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= requestAttempts; attempt++ {
		var resp chatResponse
		lastErr = c.sendOnce(ctx, body, &resp)
		if lastErr == nil {
			return &resp, nil
		}

		var statusErr *httpStatusError
		retryable := errors.As(lastErr, &statusErr) && retryableStatus(statusErr.status)
		if !retryable || attempt == requestAttempts {
			if statusErr != nil {
				return nil, services.Wrap(services.ErrExternalAPI, "analyze", "chat", statusErr.Error(), nil)
			}
			return nil, lastErr
		}

		delay := requestBackoffBase * time.Duration(1<<(attempt-1))
		if statusErr.retryAfter > delay {
			delay = statusErr.retryAfter
		}
		c.logger.Warn("model request failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(lastErr),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) sendOnce(ctx context.Context, body []byte, out *chatResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrExternalAPI, "analyze", "chat", "endpoint unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &httpStatusError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			body:       summarizePayloadSnippet(string(payload)),
		}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	return nil
}

type httpStatusError struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (e *httpStatusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("HTTP %d", e.status)
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
