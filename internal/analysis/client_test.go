package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/services"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testConfig(baseURL string) config.Analysis {
	return config.Analysis{
		APIKey:             "key",
		BaseURL:            baseURL,
		Model:              "anthropic/claude-sonnet-4",
		MaxTokens:          4096,
		MaxTranscriptChars: 500000,
		TimeoutSeconds:     30,
	}
}

const analysisJSON = `{
	"short_summary": "The party stormed the keep.",
	"detailed_summary": "A longer narrative.",
	"key_events": [{"description": "gate breached", "participants": ["Mira"], "significance": "major"}],
	"combat_encounters": [{"enemies": ["hobgoblin captain"], "outcome": "victory"}],
	"npcs_mentioned": [{"name": "Sildar", "role": "ally"}],
	"locations_mentioned": [{"name": "Cragmaw Castle", "type": "dungeon"}]
}`

func chatBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 1200, "completion_tokens": 340},
	}
}

func TestAnalyzeSessionHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "anthropic/claude-sonnet-4" || req.MaxTokens != 4096 {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[1].Content, "Mira: we march at dawn") {
			t.Errorf("expected transcript in user message")
		}
		json.NewEncoder(w).Encode(chatBody(analysisJSON))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	result, err := client.AnalyzeSession(context.Background(), "Mira: we march at dawn")
	if err != nil {
		t.Fatalf("AnalyzeSession: %v", err)
	}
	if result.ShortSummary != "The party stormed the keep." {
		t.Fatalf("unexpected summary: %q", result.ShortSummary)
	}
	if len(result.KeyEvents) != 1 || result.KeyEvents[0].Significance != "major" {
		t.Fatalf("unexpected key events: %+v", result.KeyEvents)
	}
	if len(result.CombatEncounters) != 1 || result.CombatEncounters[0].Outcome != "victory" {
		t.Fatalf("unexpected combat: %+v", result.CombatEncounters)
	}
	if result.PromptTokens != 1200 || result.CompletionTokens != 340 {
		t.Fatalf("unexpected usage: %+v", result)
	}
}

func TestAnalyzeSessionAcceptsFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatBody("```json\n" + analysisJSON + "\n```"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	result, err := client.AnalyzeSession(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("AnalyzeSession: %v", err)
	}
	if len(result.NPCsMentioned) != 1 || result.NPCsMentioned[0].Name != "Sildar" {
		t.Fatalf("unexpected NPCs: %+v", result.NPCsMentioned)
	}
}

func TestAnalyzeSessionMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatBody("the model rambles with no json at all"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	_, err := client.AnalyzeSession(context.Background(), "transcript")
	if !errors.Is(err, services.ErrExternalAPI) {
		t.Fatalf("expected external api marker for malformed output, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("malformed model output must stay retryable")
	}
}

func TestAnalyzeSessionTruncatesLongTranscript(t *testing.T) {
	var gotLen atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !strings.Contains(req.Messages[1].Content, "[Transcript truncated due to length]") {
			t.Error("expected truncation notice")
		}
		gotLen.Store(int64(len(req.Messages[1].Content)))
		json.NewEncoder(w).Encode(chatBody(analysisJSON))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxTranscriptChars = 100
	client := NewClient(cfg, nil, WithSleeper(noSleep))
	if _, err := client.AnalyzeSession(context.Background(), strings.Repeat("a", 5000)); err != nil {
		t.Fatal(err)
	}
	if gotLen.Load() > 5000 {
		t.Fatalf("expected truncated prompt, got %d chars", gotLen.Load())
	}
}

func TestAnalyzeSessionRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatBody(analysisJSON))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	if _, err := client.AnalyzeSession(context.Background(), "transcript"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestAnalyzeSessionEmptyTranscript(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(chatBody(analysisJSON))
	}))
	defer server.Close()

	// When every track fails transcription the session arrives here with no
	// text at all; the request still goes out so the session can complete.
	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	result, err := client.AnalyzeSession(context.Background(), "")
	if err != nil {
		t.Fatalf("AnalyzeSession: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected the empty transcript to be sent, got %d calls", calls.Load())
	}
	if result.ShortSummary == "" {
		t.Fatal("expected a decoded result")
	}
}

func TestDecodeModelJSON(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"direct", `{"short_summary": "x"}`, false},
		{"fenced", "```json\n{\"short_summary\": \"x\"}\n```", false},
		{"prose wrapped", "Here is the analysis: {\"short_summary\": \"x\"} hope it helps", false},
		{"empty", "", true},
		{"no json", "nothing here", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out SessionAnalysis
			err := DecodeModelJSON(tc.payload, &out)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeModelJSON: %v", err)
			}
			if out.ShortSummary != "x" {
				t.Fatalf("unexpected decode: %+v", out)
			}
		})
	}
}

func TestEncodeDecodeListsRoundTrip(t *testing.T) {
	events := []KeyEvent{{Description: "gate breached", Significance: "major"}}
	raw := EncodeList(events)
	decoded := DecodeKeyEvents(raw)
	if len(decoded) != 1 || decoded[0].Description != "gate breached" {
		t.Fatalf("unexpected round trip: %+v", decoded)
	}

	if EncodeList(nil) != "[]" {
		t.Fatalf("expected empty list encoding, got %q", EncodeList(nil))
	}
	if got := DecodeCombatEncounters(""); len(got) != 0 {
		t.Fatalf("expected empty decode, got %+v", got)
	}
	if got := DecodeNPCs("not json"); len(got) != 0 {
		t.Fatalf("expected tolerant decode, got %+v", got)
	}
}

func TestEstimateCostCents(t *testing.T) {
	cases := []struct {
		prompt     int64
		completion int64
		want       int64
	}{
		{0, 0, 0},
		{1_000_000, 0, 300},      // $3.00 input
		{0, 1_000_000, 1500},     // $15.00 output
		{100_000, 20_000, 60},    // $0.30 + $0.30
		{1000, 100, 0},           // fractions of a cent truncate
		{-10, -10, 0},
	}
	for _, tc := range cases {
		if got := EstimateCostCents(tc.prompt, tc.completion); got != tc.want {
			t.Errorf("EstimateCostCents(%d, %d) = %d, want %d", tc.prompt, tc.completion, got, tc.want)
		}
	}
}
