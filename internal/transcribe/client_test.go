package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/services"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testConfig(baseURL string) config.Transcription {
	return config.Transcription{
		APIKey:              "key",
		BaseURL:             baseURL,
		LanguageCode:        "en",
		TimeoutSeconds:      30,
		PollIntervalSeconds: 1,
	}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.wav")
	if err := os.WriteFile(path, []byte("RIFFdata"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeHappyPath(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/upload":
			if got := r.Header.Get("Authorization"); got != "key" {
				t.Errorf("unexpected auth header %q", got)
			}
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/upload/1"})
		case r.URL.Path == "/v2/transcript" && r.Method == http.MethodPost:
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["audio_url"] != "https://cdn.example/upload/1" {
				t.Errorf("unexpected audio_url %v", payload["audio_url"])
			}
			if payload["speaker_labels"] != false {
				t.Errorf("expected diarization disabled, got %v", payload["speaker_labels"])
			}
			if payload["language_code"] != "en" {
				t.Errorf("unexpected language %v", payload["language_code"])
			}
			boost, ok := payload["word_boost"].([]any)
			if !ok || len(boost) == 0 {
				t.Errorf("expected word_boost terms, got %v", payload["word_boost"])
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "queued"})
		case r.URL.Path == "/v2/transcript/job-1":
			if polls.Add(1) < 2 {
				json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "processing"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":             "job-1",
				"status":         "completed",
				"text":           "we march at dawn",
				"language_code":  "en",
				"audio_duration": 120.0,
				"confidence":     0.91,
				"utterances": []map[string]any{
					{"speaker": "A", "text": "we march", "start": 0, "end": 1500, "confidence": 0.95},
					{"speaker": "A", "text": "at dawn", "start": 1600, "end": 2400, "confidence": 0.87},
				},
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	result, err := client.Transcribe(context.Background(), Request{
		AudioPath:  writeAudio(t),
		BoostTerms: BoostTerms(10),
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.ProviderID != "job-1" || result.DurationSeconds != 120 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Utterances) != 2 || result.Utterances[1].StartMS != 1600 {
		t.Fatalf("unexpected utterances: %+v", result.Utterances)
	}
	if result.Confidence != 0.91 || result.LanguageCode != "en" {
		t.Fatalf("unexpected metadata: %+v", result)
	}
}

func TestTranscribeSynthesizesUtteranceFromBareText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/upload":
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "u"})
		case r.URL.Path == "/v2/transcript" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"id": "job-2", "status": "queued"})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"id": "job-2", "status": "completed", "text": "all one line",
				"audio_duration": 30.0, "confidence": 0.7,
			})
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	result, err := client.Transcribe(context.Background(), Request{AudioPath: writeAudio(t)})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Utterances) != 1 {
		t.Fatalf("expected synthesized utterance, got %+v", result.Utterances)
	}
	u := result.Utterances[0]
	if u.Text != "all one line" || u.StartMS != 0 || u.EndMS != 30000 {
		t.Fatalf("unexpected synthesized utterance: %+v", u)
	}
}

func TestTranscribeJobError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/upload":
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "u"})
		case r.URL.Path == "/v2/transcript" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"id": "job-3", "status": "queued"})
		default:
			json.NewEncoder(w).Encode(map[string]string{"id": "job-3", "status": "error", "error": "unsupported codec"})
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	_, err := client.Transcribe(context.Background(), Request{AudioPath: writeAudio(t)})
	if err == nil || !strings.Contains(err.Error(), "unsupported codec") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !errors.Is(err, services.ErrExternalAPI) {
		t.Fatalf("expected external api marker, got %v", err)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/upload":
			if uploads.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "u"})
		case r.URL.Path == "/v2/transcript" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"id": "job-4", "status": "queued"})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"id": "job-4", "status": "completed", "text": "ok", "audio_duration": 5.0,
			})
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	if _, err := client.Transcribe(context.Background(), Request{AudioPath: writeAudio(t)}); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if uploads.Load() != 2 {
		t.Fatalf("expected 2 upload attempts, got %d", uploads.Load())
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	if _, err := client.Transcribe(context.Background(), Request{AudioPath: writeAudio(t)}); err == nil {
		t.Fatal("expected error")
	}
	if uploads.Load() != 1 {
		t.Fatalf("expected single attempt for HTTP 401, got %d", uploads.Load())
	}
}

func TestUploadStreamsFileWithLength(t *testing.T) {
	path := writeAudio(t)
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.ContentLength != int64(len(want)) {
			t.Errorf("content length = %d, want %d", r.ContentLength, len(want))
		}
		got, readErr := io.ReadAll(r.Body)
		if readErr != nil || !bytes.Equal(got, want) {
			t.Errorf("retried upload body = %q (%v), want %q", got, readErr, want)
		}
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/upload/9"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, WithSleeper(noSleep))
	url, err := client.upload(context.Background(), path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example/upload/9" {
		t.Fatalf("unexpected upload url %q", url)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected retry after 503, got %d attempts", calls.Load())
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:0"), nil, WithSleeper(noSleep))
	_, err := client.Transcribe(context.Background(), Request{AudioPath: "/does/not/exist.wav"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestEstimateCostCents(t *testing.T) {
	cases := []struct {
		seconds int64
		want    int64
	}{
		{0, 0},
		{-5, 0},
		{60, 0},     // one minute is a quarter cent, truncated
		{240, 1},    // four minutes exactly one cent
		{3600, 15},  // an hour
		{14400, 60}, // four hours
	}
	for _, tc := range cases {
		if got := EstimateCostCents(tc.seconds); got != tc.want {
			t.Errorf("EstimateCostCents(%d) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}

func TestBoostTerms(t *testing.T) {
	if got := BoostTerms(0); got != nil {
		t.Fatalf("expected nil for zero max, got %v", got)
	}
	if got := BoostTerms(5); len(got) != 5 {
		t.Fatalf("expected 5 terms, got %d", len(got))
	}
	all := BoostTerms(10000)
	if len(all) == 0 {
		t.Fatal("expected full term list")
	}
	// Returned slices must be copies.
	all[0] = "mutated"
	if BoostTerms(10000)[0] == "mutated" {
		t.Fatal("BoostTerms must not expose internal slice")
	}
}
