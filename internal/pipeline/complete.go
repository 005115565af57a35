package pipeline

import (
	"context"
	"log/slog"
	"time"

	"chronicle/internal/logging"
	"chronicle/internal/notify"
	"chronicle/internal/report"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

// CompleteStage finalizes the session, renders the report, and delivers it.
// The session is marked completed before delivery is attempted: a delivery
// failure never undoes completion.
type CompleteStage struct {
	store    *store.Store
	notifier notify.Service
	logger   *slog.Logger

	now func() time.Time
}

func NewCompleteStage(st *store.Store, notifier notify.Service, logger *slog.Logger) *CompleteStage {
	return &CompleteStage{
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "complete"),
		now:      time.Now,
	}
}

func (s *CompleteStage) Execute(ctx context.Context, sess *store.Session) error {
	if sess.Status != store.StatusCompleted {
		if !store.CanTransition(sess.Status, store.StatusCompleted) {
			return services.Wrap(services.ErrValidation, "complete", "transition",
				"session cannot complete from status "+string(sess.Status), nil)
		}
		completedAt := s.now().UTC()
		sess.Status = store.StatusCompleted
		sess.ProcessingCompletedAt = &completedAt
		if err := s.store.UpdateSession(ctx, sess); err != nil {
			return services.Wrap(services.ErrTransient, "complete", "persist", "update session", err)
		}
		s.logger.Info("session completed",
			logging.String(logging.FieldSessionID, sess.ID),
			logging.Int64("transcription_cost_cents", sess.TranscriptionCostCents),
			logging.Int64("llm_cost_cents", sess.LLMCostCents),
		)
	}

	summary, err := s.store.SummaryBySession(ctx, sess.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "complete", "load summary", "query summary", err)
	}
	transcript, err := s.store.TranscriptBySession(ctx, sess.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "complete", "load transcript", "query transcript", err)
	}

	content := report.Render(sess, summary, transcript)
	content, truncated := report.Truncate(content, notify.MaxAttachmentBytes)
	if truncated {
		s.logger.Warn("report truncated to fit attachment limit",
			logging.String(logging.FieldSessionID, sess.ID),
			logging.Int("report_bytes", len(content)),
		)
	}

	msg := notify.CompletionMessage{
		ChannelID:       sess.NotificationChannelID,
		SessionID:       sess.ID,
		SessionName:     sess.Name,
		DurationSeconds: sess.DurationSeconds,
		Report:          []byte(content),
	}
	if summary != nil {
		msg.ShortSummary = summary.ShortSummary
	}
	if transcript != nil {
		msg.ConfidenceAverage = transcript.ConfidenceAverage
	}
	if tracks, err := s.store.AudioTracksBySession(ctx, sess.ID); err == nil {
		msg.SpeakerCount = len(tracks)
	}
	return s.notifier.SessionCompleted(ctx, msg)
}
