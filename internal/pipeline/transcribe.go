package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/store"
	"chronicle/internal/transcribe"
)

// Transcriber is the slice of the transcription client the coordinator needs.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
}

// TranscribeStage fans one transcription job out per audio track, waits for
// all of them, and joins the results into a single chronologically ordered
// transcript. Per-track failures are absorbed here; they never fail the
// stage.
type TranscribeStage struct {
	cfg    *config.Config
	store  *store.Store
	client Transcriber
	logger *slog.Logger
}

func NewTranscribeStage(cfg *config.Config, st *store.Store, client Transcriber, logger *slog.Logger) *TranscribeStage {
	return &TranscribeStage{
		cfg:    cfg,
		store:  st,
		client: client,
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

// jobResult is the per-track outcome, ephemeral to the combine step.
type jobResult struct {
	track  *store.AudioTrack
	result *transcribe.Result
	err    error
}

func (s *TranscribeStage) Execute(ctx context.Context, sess *store.Session) error {
	tracks, err := s.store.AudioTracksBySession(ctx, sess.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "load tracks", "query audio tracks", err)
	}
	if len(tracks) == 0 {
		return services.Wrap(services.ErrValidation, "transcribe", "load tracks",
			"session has no audio tracks", nil)
	}

	boost := transcribe.BoostTerms(s.cfg.Transcription.MaxBoostTerms)
	if !s.cfg.Transcription.VocabularyBoost {
		boost = nil
	}

	results := make([]jobResult, len(tracks))
	var wg sync.WaitGroup
	for i, track := range tracks {
		wg.Add(1)
		go func(idx int, track *store.AudioTrack) {
			defer wg.Done()
			result, jobErr := s.client.Transcribe(ctx, transcribe.Request{
				AudioPath:        track.FilePath,
				LanguageCode:     s.cfg.Transcription.LanguageCode,
				SpeakersExpected: 1,
				BoostTerms:       boost,
			})
			results[idx] = jobResult{track: track, result: result, err: jobErr}
		}(i, track)
	}
	wg.Wait()

	transcript := s.combine(sess.ID, results)
	if err := s.store.CreateTranscript(ctx, transcript); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "persist", "store transcript", err)
	}

	sess.TranscriptionCostCents = transcribe.EstimateCostCents(transcript.AudioDurationSeconds)
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "persist", "update session", err)
	}

	s.logger.Info("transcription combined",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.Int("track_count", len(tracks)),
		logging.Int("utterance_count", len(transcript.Utterances)),
		logging.Int64("audio_duration_seconds", transcript.AudioDurationSeconds),
		logging.Float64("confidence_average", transcript.ConfidenceAverage),
		logging.Int64("cost_cents", sess.TranscriptionCostCents),
	)
	return nil
}

// combine joins per-track results into one transcript. Ordering is by
// utterance start time, with input order as the tiebreaker; the detected
// language is the last non-empty value in track order.
func (s *TranscribeStage) combine(sessionID string, results []jobResult) *store.Transcript {
	var (
		utterances    []store.Utterance
		language      string
		totalDuration int64
		confidenceSum float64
		confidenceN   int
		failed        []string
	)
	for _, job := range results {
		if job.err != nil {
			failed = append(failed, job.track.SpeakerName)
			continue
		}
		speaker := job.track.SpeakerName
		if speaker == "" {
			speaker = fmt.Sprintf("User_%d", job.track.SpeakerID)
		}
		for _, u := range job.result.Utterances {
			utterances = append(utterances, store.Utterance{
				Speaker:    speaker,
				Text:       u.Text,
				StartMS:    u.StartMS,
				EndMS:      u.EndMS,
				Confidence: u.Confidence,
			})
		}
		if job.result.LanguageCode != "" {
			language = job.result.LanguageCode
		}
		totalDuration += job.result.DurationSeconds
		if job.result.Confidence != 0 {
			confidenceSum += job.result.Confidence
			confidenceN++
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("some tracks failed to transcribe",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Int("failed_count", len(failed)),
			logging.String("failed_speakers", strings.Join(failed, ", ")),
		)
	}

	sort.SliceStable(utterances, func(i, j int) bool {
		return utterances[i].StartMS < utterances[j].StartMS
	})

	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		lines = append(lines, u.Speaker+": "+u.Text)
	}

	avg := 0.0
	if confidenceN > 0 {
		avg = confidenceSum / float64(confidenceN)
	}
	return &store.Transcript{
		SessionID:            sessionID,
		FullText:             strings.Join(lines, "\n"),
		Utterances:           utterances,
		Language:             language,
		AudioDurationSeconds: totalDuration,
		ConfidenceAverage:    avg,
	}
}
