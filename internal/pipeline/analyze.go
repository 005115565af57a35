package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"chronicle/internal/analysis"
	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

// Analyzer is the slice of the analysis client the stage needs.
type Analyzer interface {
	AnalyzeSession(ctx context.Context, transcript string) (*analysis.Result, error)
}

// AnalyzeStage sends the combined transcript to the language model and
// persists the structured summary.
type AnalyzeStage struct {
	cfg    *config.Config
	store  *store.Store
	client Analyzer
	logger *slog.Logger
}

func NewAnalyzeStage(cfg *config.Config, st *store.Store, client Analyzer, logger *slog.Logger) *AnalyzeStage {
	return &AnalyzeStage{
		cfg:    cfg,
		store:  st,
		client: client,
		logger: logging.NewComponentLogger(logger, "analyze"),
	}
}

func (s *AnalyzeStage) Execute(ctx context.Context, sess *store.Session) error {
	transcript, err := s.store.TranscriptBySession(ctx, sess.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "load transcript", "query transcript", err)
	}
	if transcript == nil {
		return services.Wrap(services.ErrNotFound, "analyze", "load transcript",
			"no transcript recorded for session", nil)
	}

	result, err := s.client.AnalyzeSession(ctx, labeledText(transcript))
	if err != nil {
		return err
	}

	summary := &store.Summary{
		SessionID:            sess.ID,
		ShortSummary:         result.ShortSummary,
		DetailedSummary:      result.DetailedSummary,
		KeyEventsJSON:        analysis.EncodeList(result.KeyEvents),
		CombatEncountersJSON: analysis.EncodeList(result.CombatEncounters),
		NPCsJSON:             analysis.EncodeList(result.NPCsMentioned),
		LocationsJSON:        analysis.EncodeList(result.LocationsMentioned),
		ModelUsed:            result.Model,
		PromptTokens:         result.PromptTokens,
		CompletionTokens:     result.CompletionTokens,
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "persist", "store summary", err)
	}

	sess.LLMCostCents = analysis.EstimateCostCents(result.PromptTokens, result.CompletionTokens)
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "persist", "update session", err)
	}

	s.logger.Info("analysis complete",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String("model", result.Model),
		logging.Int64("prompt_tokens", result.PromptTokens),
		logging.Int64("completion_tokens", result.CompletionTokens),
		logging.Int64("cost_cents", sess.LLMCostCents),
	)
	return nil
}

// labeledText rebuilds speaker-labeled lines from utterances, falling back to
// the stored full text.
func labeledText(transcript *store.Transcript) string {
	if len(transcript.Utterances) == 0 {
		return transcript.FullText
	}
	lines := make([]string, 0, len(transcript.Utterances))
	for _, u := range transcript.Utterances {
		lines = append(lines, u.Speaker+": "+u.Text)
	}
	return strings.Join(lines, "\n")
}
