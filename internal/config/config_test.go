package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chronicle/internal/config"
)

func TestLoadDefaultsExpandPathsAndReadEnvKeys(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-test")
	t.Setenv("OPENROUTER_API_KEY", "or-test")
	t.Setenv("DISCORD_BOT_TOKEN", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "chronicle", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7519" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Transcription.APIKey != "aai-test" {
		t.Fatalf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Analysis.APIKey != "or-test" {
		t.Fatalf("expected analysis key from env, got %q", cfg.Analysis.APIKey)
	}
	if cfg.Recording.SampleRate != 48000 || cfg.Recording.Channels != 2 {
		t.Fatalf("unexpected recording format defaults: %+v", cfg.Recording)
	}
	if cfg.Recording.MinExpectedSpeakers != 6 {
		t.Fatalf("unexpected speaker floor: %d", cfg.Recording.MinExpectedSpeakers)
	}
	if cfg.Workflow.StageAttempts != 3 || cfg.Workflow.AnalysisAttempts != 2 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Workflow)
	}
	if cfg.Workflow.HardTimeLimitSeconds != 14400 || cfg.Workflow.SoftTimeLimitSeconds != 13800 {
		t.Fatalf("unexpected time limits: %+v", cfg.Workflow)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "chronicle.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadParsesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
audio_dir = "` + filepath.Join(dir, "audio") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[recording]
max_session_hours = 6.0
excluded_name_patterns = ["bot"]

[transcription]
api_key = "file-key"
language_code = "de"

[analysis]
api_key = "llm-key"
model = "anthropic/claude-sonnet-4"

[workflow]
worker_count = 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Recording.MaxSessionHours != 6.0 {
		t.Fatalf("unexpected max session hours: %v", cfg.Recording.MaxSessionHours)
	}
	if cfg.Transcription.LanguageCode != "de" {
		t.Fatalf("unexpected language code: %q", cfg.Transcription.LanguageCode)
	}
	if got := cfg.Recording.ExcludedNamePatterns; len(got) != 1 || got[0] != "bot" {
		t.Fatalf("unexpected exclusion patterns: %v", got)
	}
	if cfg.Workflow.WorkerCount != 4 {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.WorkerCount)
	}
}

func TestValidateRejectsMissingTranscriptionKey(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "or-test")
	t.Setenv("HOME", t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "transcription.api_key") {
		t.Fatalf("expected transcription key error, got %v", err)
	}
}

func TestValidateRejectsBadMultiplier(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.APIKey = "k"
	cfg.Analysis.APIKey = "k"
	cfg.Recording.DiskSafetyMultiplier = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for multiplier below 1")
	}
}

func TestValidateRejectsInvertedTimeLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.APIKey = "k"
	cfg.Analysis.APIKey = "k"
	cfg.Workflow.SoftTimeLimitSeconds = 200
	cfg.Workflow.HardTimeLimitSeconds = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for hard limit below soft limit")
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[transcription]") {
		t.Fatal("sample config missing transcription section")
	}
}
