// Package notify delivers finished session reports to a chat channel.
//
// Delivery is a single multipart message: an embed summarizing the session
// plus the rendered report attached as a markdown file. When no bot token is
// configured a no-op service is returned so the pipeline never needs to
// special-case disabled delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
)

// MaxAttachmentBytes is the delivery platform's attachment ceiling. Reports
// must be truncated below this before they reach Send.
const MaxAttachmentBytes = 8 * 1024 * 1024

const (
	embedColorGreen    = 0x00FF00
	maxDescriptionLen  = 2000
	maxFilenameBaseLen = 50
)

// CompletionMessage carries everything needed to announce a finished session.
type CompletionMessage struct {
	ChannelID         int64
	SessionID         string
	SessionName       string
	DurationSeconds   int64
	SpeakerCount      int
	ConfidenceAverage float64
	ShortSummary      string
	Report            []byte
}

// Service delivers session notifications.
type Service interface {
	SessionCompleted(ctx context.Context, msg CompletionMessage) error
}

// NewService returns a chat-backed service, or a no-op when no bot token is
// configured.
func NewService(cfg *config.Config, logger *slog.Logger, opts ...Option) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.BotToken) == "" {
		return noopService{}
	}
	svc := &chatService{
		token:   cfg.Notifications.BotToken,
		baseURL: strings.TrimRight(cfg.Notifications.APIBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Notifications.RequestTimeout) * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "notify"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Option customizes service construction.
type Option func(*chatService)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *chatService) {
		if httpClient != nil {
			s.httpClient = httpClient
		}
	}
}

type noopService struct{}

func (noopService) SessionCompleted(context.Context, CompletionMessage) error { return nil }

type chatService struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
}

func (s *chatService) SessionCompleted(ctx context.Context, msg CompletionMessage) error {
	if msg.ChannelID == 0 {
		s.logger.Warn("no notification channel for session",
			logging.String(logging.FieldSessionID, msg.SessionID))
		return nil
	}
	if len(msg.Report) > MaxAttachmentBytes {
		return services.Wrap(services.ErrValidation, "notify", "send",
			fmt.Sprintf("report is %d bytes, above the %d byte attachment limit", len(msg.Report), MaxAttachmentBytes), nil)
	}

	payload := map[string]any{
		"content": "Session processing complete!",
		"embeds":  []embed{buildEmbed(msg)},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("payload_json", string(payloadJSON)); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("files[0]", ReportFilename(msg.SessionName))
	if err != nil {
		return err
	}
	if _, err := part.Write(msg.Report); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/channels/%d/messages", s.baseURL, msg.ChannelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bot "+s.token)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notify", "send", "chat API unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrExternalAPI, "notify", "send",
			fmt.Sprintf("chat API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	s.logger.Info("session report delivered",
		logging.String(logging.FieldSessionID, msg.SessionID),
		logging.Int64("channel_id", msg.ChannelID),
		logging.Int("report_bytes", len(msg.Report)),
	)
	return nil
}

func buildEmbed(msg CompletionMessage) embed {
	description := msg.ShortSummary
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}
	e := embed{
		Title:       "Session Report: " + msg.SessionName,
		Description: description,
		Color:       embedColorGreen,
		Fields: []embedField{
			{Name: "Duration", Value: formatDuration(msg.DurationSeconds), Inline: true},
			{Name: "Speakers", Value: strconv.Itoa(msg.SpeakerCount), Inline: true},
			{Name: "Avg Confidence", Value: fmt.Sprintf("%.0f%%", msg.ConfidenceAverage*100), Inline: true},
		},
	}
	e.Footer = &struct {
		Text string `json:"text"`
	}{Text: "Session " + msg.SessionID}
	return e
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// ReportFilename derives a safe attachment name from a session name: spaces
// become underscores, path separators become dashes, and the base is capped
// before the suffix is applied.
func ReportFilename(sessionName string) string {
	base := strings.TrimSpace(sessionName)
	if base == "" {
		base = "session"
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.ReplaceAll(base, "/", "-")
	if len(base) > maxFilenameBaseLen {
		base = base[:maxFilenameBaseLen]
	}
	return base + "_report.md"
}
