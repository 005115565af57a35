package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/media"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

const mergedFileName = "merged.wav"

// MergeStage combines per-speaker capture files into one archival mixdown.
// A single track is copied rather than mixed.
type MergeStage struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

func NewMergeStage(cfg *config.Config, st *store.Store, logger *slog.Logger) *MergeStage {
	return &MergeStage{cfg: cfg, store: st, logger: logging.NewComponentLogger(logger, "merge")}
}

func (s *MergeStage) Execute(ctx context.Context, sess *store.Session) error {
	tracks, err := s.store.AudioTracksBySession(ctx, sess.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "merge", "load tracks", "query audio tracks", err)
	}
	if len(tracks) == 0 {
		return services.Wrap(services.ErrValidation, "merge", "load tracks",
			"session has no audio tracks", nil)
	}

	output := filepath.Join(sess.AudioDirectory, mergedFileName)
	if len(tracks) == 1 {
		if err := media.CopyFile(tracks[0].FilePath, output); err != nil {
			return services.Wrap(services.ErrTransient, "merge", "copy", "copy single track", err)
		}
	} else {
		mixer, err := media.ResolveMixer(s.cfg.FFmpegBinary())
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "merge", "resolve mixer", "mixer binary not found", err)
		}
		inputs := make([]string, 0, len(tracks))
		for _, track := range tracks {
			inputs = append(inputs, track.FilePath)
		}
		if err := media.Mixdown(ctx, mixer, inputs, output, s.cfg.Recording.SampleRate); err != nil {
			return err
		}
	}

	sess.MergedAudioPath = output
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "merge", "persist", "update session", err)
	}
	s.logger.Info("audio merged",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.Int("track_count", len(tracks)),
		logging.String("output", output),
	)
	return nil
}
