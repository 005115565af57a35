package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRecording()
	c.normalizeProviders()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AudioDir) == "" {
		c.Paths.AudioDir = defaultAudioDir
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeRecording() {
	if c.Recording.SampleRate <= 0 {
		c.Recording.SampleRate = defaultSampleRate
	}
	if c.Recording.BytesPerSample <= 0 {
		c.Recording.BytesPerSample = defaultBytesPerSample
	}
	if c.Recording.Channels <= 0 {
		c.Recording.Channels = defaultChannels
	}
	if c.Recording.MaxSessionHours <= 0 {
		c.Recording.MaxSessionHours = defaultMaxSessionHours
	}
	if c.Recording.MinExpectedSpeakers <= 0 {
		c.Recording.MinExpectedSpeakers = defaultMinExpectedSpeakers
	}
	if c.Recording.DiskSafetyMultiplier <= 0 {
		c.Recording.DiskSafetyMultiplier = defaultDiskSafetyMultiplier
	}
	if c.Recording.StopFlushGraceSeconds < 0 {
		c.Recording.StopFlushGraceSeconds = defaultStopFlushGrace
	}
}

func (c *Config) normalizeProviders() {
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		c.Transcription.APIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	if strings.TrimSpace(c.Analysis.APIKey) == "" {
		c.Analysis.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if strings.TrimSpace(c.Notifications.BotToken) == "" {
		c.Notifications.BotToken = os.Getenv("DISCORD_BOT_TOKEN")
	}
	if strings.TrimSpace(c.Transcription.BaseURL) == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.BaseURL = strings.TrimRight(c.Transcription.BaseURL, "/")
	if strings.TrimSpace(c.Transcription.LanguageCode) == "" {
		c.Transcription.LanguageCode = defaultLanguageCode
	}
	if c.Transcription.MaxBoostTerms <= 0 {
		c.Transcription.MaxBoostTerms = defaultMaxBoostTerms
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
	if c.Transcription.PollIntervalSeconds <= 0 {
		c.Transcription.PollIntervalSeconds = defaultPollInterval
	}

	if strings.TrimSpace(c.Analysis.BaseURL) == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	if strings.TrimSpace(c.Analysis.Model) == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	if c.Analysis.MaxTokens <= 0 {
		c.Analysis.MaxTokens = defaultAnalysisMaxTokens
	}
	if c.Analysis.MaxTranscriptChars <= 0 {
		c.Analysis.MaxTranscriptChars = defaultMaxTranscriptChars
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeout
	}

	if strings.TrimSpace(c.Notifications.APIBaseURL) == "" {
		c.Notifications.APIBaseURL = defaultNotificationsBaseURL
	}
	c.Notifications.APIBaseURL = strings.TrimRight(c.Notifications.APIBaseURL, "/")
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WorkerCount <= 0 {
		c.Workflow.WorkerCount = defaultWorkerCount
	}
	if c.Workflow.StageAttempts <= 0 {
		c.Workflow.StageAttempts = defaultStageAttempts
	}
	if c.Workflow.AnalysisAttempts <= 0 {
		c.Workflow.AnalysisAttempts = defaultAnalysisAttempts
	}
	if c.Workflow.RetryBaseSeconds <= 0 {
		c.Workflow.RetryBaseSeconds = defaultRetryBase
	}
	if c.Workflow.RetryMaxSeconds <= 0 {
		c.Workflow.RetryMaxSeconds = defaultRetryMax
	}
	if c.Workflow.NotifyRetrySeconds <= 0 {
		c.Workflow.NotifyRetrySeconds = defaultNotifyRetry
	}
	if c.Workflow.SoftTimeLimitSeconds <= 0 {
		c.Workflow.SoftTimeLimitSeconds = defaultSoftTimeLimit
	}
	if c.Workflow.HardTimeLimitSeconds <= 0 {
		c.Workflow.HardTimeLimitSeconds = defaultHardTimeLimit
	}
}

func (c *Config) normalizeLogging() {
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
}
