// Package pipeline sequences a recorded session through merge, transcription,
// analysis, and completion, with per-stage retry and a single failure handler.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
)

// RetryPolicy bounds how a stage is re-attempted. Delays grow exponentially
// from BaseDelay up to MaxDelay. SoftLimit only logs; HardLimit cancels the
// stage context.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	SoftLimit   time.Duration
	HardLimit   time.Duration

	sleep func(context.Context, time.Duration) error
}

// PolicyFromConfig derives the default stage policy from workflow settings.
func PolicyFromConfig(cfg config.Workflow) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.StageAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseSeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.RetryMaxSeconds) * time.Second,
		SoftLimit:   time.Duration(cfg.SoftTimeLimitSeconds) * time.Second,
		HardLimit:   time.Duration(cfg.HardTimeLimitSeconds) * time.Second,
	}
}

// Run invokes fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or the context ends.
func (p RetryPolicy) Run(ctx context.Context, logger *slog.Logger, operation string, fn func(context.Context) error) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	runCtx := ctx
	if p.HardLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.HardLimit)
		defer cancel()
	}
	if p.SoftLimit > 0 && p.SoftLimit < p.HardLimit {
		softTimer := time.AfterFunc(p.SoftLimit, func() {
			logger.Warn("operation exceeded soft time limit",
				logging.String("operation", operation),
				logging.Duration("soft_limit", p.SoftLimit),
			)
		})
		defer softTimer.Stop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(runCtx)
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) {
			logger.Debug("operation failed with non-retryable error",
				logging.String("operation", operation),
				logging.Error(lastErr),
			)
			return lastErr
		}
		if attempt == attempts || runCtx.Err() != nil {
			break
		}
		delay := p.backoff(attempt)
		logger.Warn("operation failed, retrying",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Error(lastErr),
		)
		if err := sleep(runCtx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
