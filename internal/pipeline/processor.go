package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/notify"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

// Handler is the contract the processor needs from each stage.
type Handler interface {
	Execute(ctx context.Context, sess *store.Session) error
}

// stageSpec binds a handler to its lifecycle status and retry policy. Stages
// with an empty processing status manage their own transitions.
type stageSpec struct {
	name       string
	processing store.Status
	policy     RetryPolicy
	handler    Handler
}

// Processor drives one session through the full pipeline.
type Processor struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	stages []stageSpec

	now func() time.Time
}

// NewProcessor wires the standard stage sequence. The analysis stage gets its
// own lower attempt ceiling; delivery retries use the shorter notify backoff.
func NewProcessor(cfg *config.Config, st *store.Store, transcriber Transcriber, analyzer Analyzer, notifier notify.Service, logger *slog.Logger) *Processor {
	base := PolicyFromConfig(cfg.Workflow)

	analysisPolicy := base
	analysisPolicy.MaxAttempts = cfg.Workflow.AnalysisAttempts

	notifyPolicy := base
	notifyPolicy.BaseDelay = time.Duration(cfg.Workflow.NotifyRetrySeconds) * time.Second

	return &Processor{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		now:    time.Now,
		stages: []stageSpec{
			{name: "merge", processing: store.StatusProcessing, policy: base, handler: NewMergeStage(cfg, st, logger)},
			{name: "transcribe", processing: store.StatusTranscribing, policy: base, handler: NewTranscribeStage(cfg, st, transcriber, logger)},
			{name: "analyze", processing: store.StatusAnalyzing, policy: analysisPolicy, handler: NewAnalyzeStage(cfg, st, analyzer, logger)},
			{name: "complete", policy: notifyPolicy, handler: NewCompleteStage(st, notifier, logger)},
		},
	}
}

// NotProcessableError reports a session that cannot enter the pipeline.
type NotProcessableError struct {
	SessionID string
	Status    store.Status
}

func (e *NotProcessableError) Error() string {
	return fmt.Sprintf("session %s is %s, only ended recordings can be processed", e.SessionID, e.Status)
}

// Process runs every stage for the session in order. Entry is guarded by a
// conditional status update in the store, so when duplicate triggers race for
// the same session exactly one runs the stages and the rest fail fast.
func (p *Processor) Process(ctx context.Context, sessionID string) error {
	ctx = services.WithSessionID(ctx, sessionID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := p.logger.With(logging.String(logging.FieldSessionID, sessionID))

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "load session", "query session", err)
	}
	if sess == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "load session",
			fmt.Sprintf("session %s not found", sessionID), nil)
	}
	if sess.Status != store.StatusRecording {
		return &NotProcessableError{SessionID: sessionID, Status: sess.Status}
	}

	claimed, err := p.store.ClaimForProcessing(ctx, sess, p.now())
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "claim session", "persist status", err)
	}
	if !claimed {
		// A concurrent trigger won the claim between the load and the update.
		if current, err := p.store.GetSession(ctx, sessionID); err == nil && current != nil {
			sess = current
		}
		return &NotProcessableError{SessionID: sessionID, Status: sess.Status}
	}

	pipelineStart := time.Now()
	logger.Info("pipeline started", logging.Int64(logging.FieldGuildID, sess.GuildID))

	for _, stage := range p.stages {
		if stage.processing != "" {
			if err := p.transition(ctx, sess, stage.processing); err != nil {
				p.handleFailure(ctx, logger, sess, stage.name, err)
				return err
			}
		}
		stageCtx := services.WithStage(ctx, stage.name)
		stageStart := time.Now()
		logger.Info("stage started", logging.String(logging.FieldStage, stage.name))

		err := stage.policy.Run(stageCtx, logger, stage.name, func(runCtx context.Context) error {
			return stage.handler.Execute(runCtx, sess)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				logger.Debug("stage interrupted by shutdown", logging.String(logging.FieldStage, stage.name))
				return err
			}
			p.handleFailure(ctx, logger, sess, stage.name, err)
			return err
		}
		logger.Info("stage completed",
			logging.String(logging.FieldStage, stage.name),
			logging.Duration("stage_duration", time.Since(stageStart)),
		)
	}

	logger.Info("pipeline completed",
		logging.Duration("pipeline_duration", time.Since(pipelineStart)),
		logging.Int64("total_cost_cents", sess.TranscriptionCostCents+sess.LLMCostCents),
	)
	return nil
}

func (p *Processor) transition(ctx context.Context, sess *store.Session, to store.Status) error {
	if sess.Status == to {
		// The claim already moved the session here.
		return nil
	}
	if !store.CanTransition(sess.Status, to) {
		return services.Wrap(services.ErrValidation, "pipeline", "transition",
			fmt.Sprintf("cannot move session from %s to %s", sess.Status, to), nil)
	}
	sess.Status = to
	sess.ErrorMessage = ""
	if err := p.store.UpdateSession(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "transition", "persist status", err)
	}
	return nil
}

// handleFailure is the single place that marks a session failed. A session
// that already reached completed keeps that status; only the error message is
// recorded (a lost notification does not undo a finished session).
func (p *Processor) handleFailure(ctx context.Context, logger *slog.Logger, sess *store.Session, stageName string, stageErr error) {
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = stageName + " failed without error detail"
	}

	sess.ErrorMessage = message
	if sess.Status == store.StatusCompleted {
		logger.Error("report delivery failed for completed session",
			logging.String(logging.FieldStage, stageName),
			logging.Error(stageErr),
		)
	} else {
		sess.Status = store.StatusFailed
		logger.Error("stage failed",
			logging.String(logging.FieldStage, stageName),
			logging.String("error_message", message),
			logging.Error(stageErr),
		)
	}

	if err := p.store.UpdateSession(ctx, sess); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not persist stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
}
