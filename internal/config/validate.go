package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/chronicle/config.toml"
		}
		return fmt.Errorf("transcription.api_key is required. Edit %s (create with 'chronicle config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if strings.TrimSpace(c.Analysis.APIKey) == "" {
		return errors.New("analysis.api_key is required")
	}
	return nil
}

func (c *Config) validateRecording() error {
	if c.Recording.DiskSafetyMultiplier < 1 {
		return errors.New("recording.disk_safety_multiplier must be at least 1")
	}
	if c.Recording.MaxSessionHours <= 0 {
		return errors.New("recording.max_session_hours must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HardTimeLimitSeconds < c.Workflow.SoftTimeLimitSeconds {
		return errors.New("workflow.hard_time_limit_seconds must not be below the soft limit")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}
