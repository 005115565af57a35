package notify

import (
	"context"
	"errors"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/testsupport"
)

func TestNewServiceWithoutTokenIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.BotToken = ""

	svc := NewService(cfg, logging.NewNop())
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.SessionCompleted(context.Background(), CompletionMessage{ChannelID: 1}); err != nil {
		t.Fatalf("noop delivery: %v", err)
	}
}

func TestSessionCompletedSendsMultipart(t *testing.T) {
	var (
		gotAuth    string
		gotPayload map[string]any
		gotFile    string
		gotBody    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/channels/42/messages") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Fatalf("parse content type: %v", err)
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read part: %v", err)
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "payload_json":
				if err := json.Unmarshal(data, &gotPayload); err != nil {
					t.Fatalf("decode payload_json: %v", err)
				}
			case "files[0]":
				gotFile = part.FileName()
				gotBody = string(data)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.BotToken = "bot-token"
	cfg.Notifications.APIBaseURL = server.URL

	svc := NewService(cfg, logging.NewNop())
	err := svc.SessionCompleted(context.Background(), CompletionMessage{
		ChannelID:         42,
		SessionID:         "sess-1",
		SessionName:       "Curse of Strahd 12",
		DurationSeconds:   5400,
		SpeakerCount:      5,
		ConfidenceAverage: 0.93,
		ShortSummary:      "The party reached the castle.",
		Report:            []byte("# Session Report\n\nbody\n"),
	})
	if err != nil {
		t.Fatalf("SessionCompleted: %v", err)
	}

	if gotAuth != "Bot bot-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotFile != "Curse_of_Strahd_12_report.md" {
		t.Errorf("attachment filename = %q", gotFile)
	}
	if !strings.HasPrefix(gotBody, "# Session Report") {
		t.Errorf("attachment body = %q", gotBody)
	}
	embeds, ok := gotPayload["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one embed, payload = %v", gotPayload)
	}
	em := embeds[0].(map[string]any)
	if em["title"] != "Session Report: Curse of Strahd 12" {
		t.Errorf("embed title = %v", em["title"])
	}
	if int(em["color"].(float64)) != embedColorGreen {
		t.Errorf("embed color = %v", em["color"])
	}
	fields := em["fields"].([]any)
	if len(fields) != 3 {
		t.Fatalf("expected 3 embed fields, got %d", len(fields))
	}
	duration := fields[0].(map[string]any)
	if duration["value"] != "1h 30m" {
		t.Errorf("duration field = %v", duration["value"])
	}
}

func TestSessionCompletedNoChannelIsSkipped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.BotToken = "bot-token"

	svc := NewService(cfg, logging.NewNop())
	if err := svc.SessionCompleted(context.Background(), CompletionMessage{SessionID: "s"}); err != nil {
		t.Fatalf("expected skip without channel, got %v", err)
	}
}

func TestSessionCompletedOversizedReport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.BotToken = "bot-token"

	svc := NewService(cfg, logging.NewNop())
	err := svc.SessionCompleted(context.Background(), CompletionMessage{
		ChannelID: 42,
		Report:    make([]byte, MaxAttachmentBytes+1),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionCompletedAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Missing Access"}`, http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.BotToken = "bot-token"
	cfg.Notifications.APIBaseURL = server.URL

	svc := NewService(cfg, logging.NewNop())
	err := svc.SessionCompleted(context.Background(), CompletionMessage{ChannelID: 7, Report: []byte("x")})
	if !errors.Is(err, services.ErrExternalAPI) {
		t.Fatalf("expected external API error, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestReportFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"spaces", "Session 2026-01-02 19:00", "Session_2026-01-02_19:00_report.md"},
		{"separators", "a/b c", "a-b_c_report.md"},
		{"empty", "  ", "session_report.md"},
		{"long", strings.Repeat("x", 80), strings.Repeat("x", 50) + "_report.md"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReportFilename(tc.in); got != tc.want {
				t.Errorf("ReportFilename(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
