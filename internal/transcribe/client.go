package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
)

const (
	requestAttempts     = 3
	requestBackoffBase  = 2 * time.Second
	uploadChunkEndpoint = "/v2/upload"
	transcriptEndpoint  = "/v2/transcript"
)

// Utterance is one attributed speech segment as returned by the provider.
type Utterance struct {
	Speaker    string
	Text       string
	StartMS    int64
	EndMS      int64
	Confidence float64
}

// Request describes a single-track transcription job.
type Request struct {
	AudioPath        string
	LanguageCode     string
	SpeakersExpected int
	BoostTerms       []string
}

// Result is a completed transcription.
type Result struct {
	ProviderID      string
	Text            string
	LanguageCode    string
	Utterances      []Utterance
	DurationSeconds int64
	Confidence      float64
}

// Client submits audio to the transcription provider and polls for results.
type Client struct {
	cfg          config.Transcription
	httpClient   *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
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

// WithPollInterval overrides the job polling cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
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

// NewClient builds a transcription client from configuration.
func NewClient(cfg config.Transcription, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logging.NewComponentLogger(logger, "transcribe"),
		pollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		sleep:        sleepWithContext,
	}
	if client.pollInterval <= 0 {
		client.pollInterval = 3 * time.Second
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transcribe uploads one audio file, creates a job, and polls to completion.
func (c *Client) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "request", "transcription.api_key is not set", nil)
	}
	if timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	audioURL, err := c.upload(ctx, req.AudioPath)
	if err != nil {
		return nil, err
	}

	jobID, err := c.createJob(ctx, audioURL, req)
	if err != nil {
		return nil, err
	}

	return c.poll(ctx, jobID)
}

// HealthCheck verifies credentials against the provider without creating work.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+transcriptEndpoint+"?limit=1", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", c.cfg.APIKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrExternalAPI, "transcribe", "health", "provider unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return services.Wrap(services.ErrExternalAPI, "transcribe", "health",
			fmt.Sprintf("provider returned HTTP %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "transcribe", "upload", "stat audio file", err)
	}

	var uploadResp struct {
		UploadURL string `json:"upload_url"`
	}
	// Merged audio can run to gigabytes, so each attempt streams a fresh
	// file handle instead of buffering the payload in memory. The transport
	// closes the handle when the request finishes.
	err = c.doWithRetry(ctx, func() (*http.Request, error) {
		file, openErr := os.Open(path)
		if openErr != nil {
			return nil, services.Wrap(services.ErrNotFound, "transcribe", "upload", "open audio file", openErr)
		}
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+uploadChunkEndpoint, file)
		if reqErr != nil {
			file.Close()
			return nil, reqErr
		}
		httpReq.ContentLength = info.Size()
		httpReq.Header.Set("Authorization", c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/octet-stream")
		return httpReq, nil
	}, &uploadResp)
	if err != nil {
		return "", services.Wrap(services.ErrExternalAPI, "transcribe", "upload", "upload audio", err)
	}
	if uploadResp.UploadURL == "" {
		return "", services.Wrap(services.ErrExternalAPI, "transcribe", "upload", "provider returned no upload URL", nil)
	}
	return uploadResp.UploadURL, nil
}

func (c *Client) createJob(ctx context.Context, audioURL string, req Request) (string, error) {
	language := req.LanguageCode
	if language == "" {
		language = c.cfg.LanguageCode
	}
	payload := map[string]any{
		"audio_url":     audioURL,
		"language_code": language,
		"punctuate":     true,
		"format_text":   true,
		// Tracks are single-speaker captures, so provider-side diarization
		// stays off and attribution comes from the track itself.
		"speaker_labels": false,
	}
	if len(req.BoostTerms) > 0 {
		payload["word_boost"] = req.BoostTerms
		payload["boost_param"] = "default"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	err = c.doWithRetry(ctx, func() (*http.Request, error) {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+transcriptEndpoint, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		httpReq.Header.Set("Authorization", c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}, &created)
	if err != nil {
		return "", services.Wrap(services.ErrExternalAPI, "transcribe", "create job", "submit transcription job", err)
	}
	if created.ID == "" {
		return "", services.Wrap(services.ErrExternalAPI, "transcribe", "create job", "provider returned no job ID", nil)
	}
	return created.ID, nil
}

type providerTranscript struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Error         string  `json:"error"`
	Text          string  `json:"text"`
	LanguageCode  string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
	Confidence    float64 `json:"confidence"`
	Utterances    []struct {
		Speaker    string  `json:"speaker"`
		Text       string  `json:"text"`
		Start      int64   `json:"start"`
		End        int64   `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"utterances"`
}

func (c *Client) poll(ctx context.Context, jobID string) (*Result, error) {
	for {
		var transcript providerTranscript
		err := c.doWithRetry(ctx, func() (*http.Request, error) {
			httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+transcriptEndpoint+"/"+jobID, nil)
			if reqErr != nil {
				return nil, reqErr
			}
			httpReq.Header.Set("Authorization", c.cfg.APIKey)
			return httpReq, nil
		}, &transcript)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalAPI, "transcribe", "poll", "poll transcription job", err)
		}

		switch transcript.Status {
		case "completed":
			return buildResult(&transcript), nil
		case "error":
			return nil, services.Wrap(services.ErrExternalAPI, "transcribe", "job failed", transcript.Error, nil)
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, services.Wrap(services.ErrTimeout, "transcribe", "poll", "transcription job timed out", err)
		}
	}
}

func buildResult(transcript *providerTranscript) *Result {
	result := &Result{
		ProviderID:      transcript.ID,
		Text:            transcript.Text,
		LanguageCode:    transcript.LanguageCode,
		DurationSeconds: int64(transcript.AudioDuration),
		Confidence:      transcript.Confidence,
	}
	for _, u := range transcript.Utterances {
		result.Utterances = append(result.Utterances, Utterance{
			Speaker:    u.Speaker,
			Text:       u.Text,
			StartMS:    u.Start,
			EndMS:      u.End,
			Confidence: u.Confidence,
		})
	}
	// Some jobs return text without utterance timing; synthesize one
	// utterance spanning the whole track so combination still works.
	if len(result.Utterances) == 0 && strings.TrimSpace(result.Text) != "" {
		result.Utterances = append(result.Utterances, Utterance{
			Text:       result.Text,
			StartMS:    0,
			EndMS:      result.DurationSeconds * 1000,
			Confidence: result.Confidence,
		})
	}
	return result
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

func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 1; attempt <= requestAttempts; attempt++ {
		httpReq, err := build()
		if err != nil {
			return err
		}
		lastErr = c.doOnce(httpReq, out)
		if lastErr == nil {
			return nil
		}

		var statusErr *httpStatusError
		retryable := errors.As(lastErr, &statusErr) && retryableStatus(statusErr.status)
		if !retryable || attempt == requestAttempts {
			return lastErr
		}

		delay := requestBackoffBase * time.Duration(1<<(attempt-1))
		if statusErr != nil && statusErr.retryAfter > delay {
			delay = statusErr.retryAfter
		}
		c.logger.Warn("provider request failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(lastErr),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) doOnce(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &httpStatusError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			body:       summarizeBody(body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
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

func summarizeBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 300 {
		trimmed = trimmed[:300] + "..."
	}
	return trimmed
}
