package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AudioDir string `toml:"audio_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Recording contains capture settings and disk preflight parameters.
type Recording struct {
	// CaptureCommand launches the external voice capture helper. It receives
	// the session output directory as its final argument and writes one
	// speaker_<id>.wav per participant.
	CaptureCommand []string `toml:"capture_command"`

	SampleRate     int `toml:"sample_rate"`
	BytesPerSample int `toml:"bytes_per_sample"`
	Channels       int `toml:"channels"`

	MaxSessionHours      float64 `toml:"max_session_hours"`
	MinExpectedSpeakers  int     `toml:"min_expected_speakers"`
	DiskSafetyMultiplier float64 `toml:"disk_safety_multiplier"`

	StopFlushGraceSeconds int `toml:"stop_flush_grace_seconds"`

	ExcludedSpeakerIDs   []int64  `toml:"excluded_speaker_ids"`
	ExcludedNamePatterns []string `toml:"excluded_name_patterns"`
}

// Transcription contains configuration for the speech-to-text provider.
type Transcription struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	LanguageCode        string `toml:"language_code"`
	VocabularyBoost     bool   `toml:"vocabulary_boost"`
	MaxBoostTerms       int    `toml:"max_boost_terms"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// Analysis contains configuration for the LLM narrative analysis provider.
type Analysis struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	Model              string `toml:"model"`
	MaxTokens          int    `toml:"max_tokens"`
	MaxTranscriptChars int    `toml:"max_transcript_chars"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for chat delivery of finished reports.
type Notifications struct {
	BotToken       string `toml:"bot_token"`
	APIBaseURL     string `toml:"api_base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Workflow contains configuration for pipeline execution and retry policy.
type Workflow struct {
	WorkerCount          int `toml:"worker_count"`
	StageAttempts        int `toml:"stage_attempts"`
	AnalysisAttempts     int `toml:"analysis_attempts"`
	RetryBaseSeconds     int `toml:"retry_base_seconds"`
	RetryMaxSeconds      int `toml:"retry_max_seconds"`
	NotifyRetrySeconds   int `toml:"notify_retry_seconds"`
	SoftTimeLimitSeconds int `toml:"soft_time_limit_seconds"`
	HardTimeLimitSeconds int `toml:"hard_time_limit_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Chronicle.
//
// Configuration sections by subsystem:
//   - Paths: data/audio/log directories and API bind address
//   - Recording: capture helper, audio format, disk preflight, exclusions
//   - Transcription: speech-to-text provider connection
//   - Analysis: LLM narrative analysis connection
//   - Notifications: chat delivery of finished reports
//   - Workflow: worker count, retry attempts, time limits
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Recording     Recording     `toml:"recording"`
	Transcription Transcription `toml:"transcription"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chronicle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chronicle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AudioDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "chronicle.db")
}

// FFmpegBinary returns the audio mixer executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
