package config

const (
	defaultDataDir  = "~/.local/share/chronicle/data"
	defaultAudioDir = "~/.local/share/chronicle/audio"
	defaultLogDir   = "~/.local/share/chronicle/logs"
	defaultAPIBind  = "127.0.0.1:7519"

	defaultSampleRate           = 48000
	defaultBytesPerSample       = 2
	defaultChannels             = 2
	defaultMaxSessionHours      = 4.0
	defaultMinExpectedSpeakers  = 6
	defaultDiskSafetyMultiplier = 1.5
	defaultStopFlushGrace       = 1

	defaultTranscriptionBaseURL = "https://api.assemblyai.com"
	defaultLanguageCode         = "en"
	defaultMaxBoostTerms        = 100
	defaultTranscriptionTimeout = 900
	defaultPollInterval         = 3

	defaultAnalysisBaseURL      = "https://openrouter.ai/api/v1/chat/completions"
	defaultAnalysisModel        = "anthropic/claude-sonnet-4"
	defaultAnalysisMaxTokens    = 4096
	defaultMaxTranscriptChars   = 500000
	defaultAnalysisTimeout      = 300
	defaultNotificationsBaseURL = "https://discord.com/api/v10"
	defaultNotifyTimeout        = 30

	defaultWorkerCount      = 2
	defaultStageAttempts    = 3
	defaultAnalysisAttempts = 2
	defaultRetryBase        = 60
	defaultRetryMax         = 600
	defaultNotifyRetry      = 30
	defaultSoftTimeLimit    = 13800
	defaultHardTimeLimit    = 14400

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Recording: Recording{
			SampleRate:            defaultSampleRate,
			BytesPerSample:        defaultBytesPerSample,
			Channels:              defaultChannels,
			MaxSessionHours:       defaultMaxSessionHours,
			MinExpectedSpeakers:   defaultMinExpectedSpeakers,
			DiskSafetyMultiplier:  defaultDiskSafetyMultiplier,
			StopFlushGraceSeconds: defaultStopFlushGrace,
		},
		Transcription: Transcription{
			BaseURL:             defaultTranscriptionBaseURL,
			LanguageCode:        defaultLanguageCode,
			VocabularyBoost:     true,
			MaxBoostTerms:       defaultMaxBoostTerms,
			TimeoutSeconds:      defaultTranscriptionTimeout,
			PollIntervalSeconds: defaultPollInterval,
		},
		Analysis: Analysis{
			BaseURL:            defaultAnalysisBaseURL,
			Model:              defaultAnalysisModel,
			MaxTokens:          defaultAnalysisMaxTokens,
			MaxTranscriptChars: defaultMaxTranscriptChars,
			TimeoutSeconds:     defaultAnalysisTimeout,
		},
		Notifications: Notifications{
			APIBaseURL:     defaultNotificationsBaseURL,
			RequestTimeout: defaultNotifyTimeout,
		},
		Workflow: Workflow{
			WorkerCount:          defaultWorkerCount,
			StageAttempts:        defaultStageAttempts,
			AnalysisAttempts:     defaultAnalysisAttempts,
			RetryBaseSeconds:     defaultRetryBase,
			RetryMaxSeconds:      defaultRetryMax,
			NotifyRetrySeconds:   defaultNotifyRetry,
			SoftTimeLimitSeconds: defaultSoftTimeLimit,
			HardTimeLimitSeconds: defaultHardTimeLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
