package recording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/store"
)

// Participant identifies a voice channel member present at recording start.
type Participant struct {
	ID   int64
	Name string
}

// StartParams describes a recording request for one guild.
type StartParams struct {
	GuildID               int64
	ChannelID             int64
	NotificationChannelID int64
	Name                  string
	Participants          []Participant
}

// StatusInfo is a snapshot of a live recording.
type StatusInfo struct {
	SessionID string
	ChannelID int64
	StartedAt time.Time
	Paused    bool
	Elapsed   time.Duration
}

type activeRecording struct {
	sessionID string
	channelID int64
	startedAt time.Time
	outputDir string
	capture   Capture
	speakers  map[int64]string
	paused    bool
}

// Manager owns the per-guild recording state machine.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	source VoiceSource
	logger *slog.Logger
	statfs statfsFunc

	mu     sync.Mutex
	active map[int64]*activeRecording
}

// NewManager builds a Manager backed by the given capture source.
func NewManager(cfg *config.Config, st *store.Store, source VoiceSource, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  st,
		source: source,
		logger: logging.NewComponentLogger(logger, "recording"),
		statfs: realStatfs,
		active: make(map[int64]*activeRecording),
	}
}

// Start begins capture for a guild. It fails fast when a recording is already
// live or the audio volume cannot hold a worst-case session.
func (m *Manager) Start(ctx context.Context, params StartParams) (*store.Session, error) {
	m.mu.Lock()
	if _, exists := m.active[params.GuildID]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	// Reserve the slot before the slow work so concurrent starts collide here.
	m.active[params.GuildID] = nil
	m.mu.Unlock()

	sess, err := m.start(ctx, params)
	if err != nil {
		m.mu.Lock()
		delete(m.active, params.GuildID)
		m.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

func (m *Manager) start(ctx context.Context, params StartParams) (*store.Session, error) {
	required := EstimateRequiredBytes(m.cfg.Recording, len(params.Participants))
	if err := checkDiskSpace(m.statfs, m.cfg.Paths.AudioDir, required); err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	dirName := fmt.Sprintf("%d_%s", params.GuildID, started.Format("20060102_150405"))
	outputDir := filepath.Join(m.cfg.Paths.AudioDir, dirName)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	capture, err := m.source.Connect(ctx, params.GuildID, params.ChannelID, outputDir)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.NewSession(ctx, store.NewSessionParams{
		GuildID:               params.GuildID,
		ChannelID:             params.ChannelID,
		NotificationChannelID: params.NotificationChannelID,
		Name:                  params.Name,
		StartedAt:             started,
		AudioDirectory:        outputDir,
	})
	if err != nil {
		_, _ = capture.Stop(ctx)
		return nil, err
	}

	speakers := make(map[int64]string, len(params.Participants))
	for _, p := range params.Participants {
		speakers[p.ID] = p.Name
	}

	m.mu.Lock()
	m.active[params.GuildID] = &activeRecording{
		sessionID: sess.ID,
		channelID: params.ChannelID,
		startedAt: started,
		outputDir: outputDir,
		capture:   capture,
		speakers:  speakers,
	}
	m.mu.Unlock()

	m.logger.Info("recording started",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.Int64(logging.FieldGuildID, params.GuildID),
		logging.Int("participants", len(params.Participants)),
		logging.Uint64("preflight_bytes", required),
	)
	return sess, nil
}

// Pause suspends capture without ending the session.
func (m *Manager) Pause(ctx context.Context, guildID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.active[guildID]
	if rec == nil {
		return &InvalidTransitionError{Op: "pause", State: "idle"}
	}
	if rec.paused {
		return &InvalidTransitionError{Op: "pause", State: "already paused"}
	}
	if err := rec.capture.Pause(); err != nil {
		return err
	}
	rec.paused = true
	m.logger.Info("recording paused", logging.String(logging.FieldSessionID, rec.sessionID))
	return nil
}

// Resume continues a paused capture.
func (m *Manager) Resume(ctx context.Context, guildID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.active[guildID]
	if rec == nil {
		return &InvalidTransitionError{Op: "resume", State: "idle"}
	}
	if !rec.paused {
		return &InvalidTransitionError{Op: "resume", State: "not paused"}
	}
	if err := rec.capture.Resume(); err != nil {
		return err
	}
	rec.paused = false
	m.logger.Info("recording resumed", logging.String(logging.FieldSessionID, rec.sessionID))
	return nil
}

// Stop ends capture, waits briefly for the helper to flush its files, and
// persists every non-excluded speaker track before returning the session.
func (m *Manager) Stop(ctx context.Context, guildID int64) (*store.Session, error) {
	m.mu.Lock()
	rec := m.active[guildID]
	if rec == nil {
		m.mu.Unlock()
		return nil, &InvalidTransitionError{Op: "stop", State: "idle"}
	}
	delete(m.active, guildID)
	m.mu.Unlock()

	captured, err := rec.capture.Stop(ctx)
	if err != nil {
		return nil, err
	}

	if grace := m.cfg.Recording.StopFlushGraceSeconds; grace > 0 {
		select {
		case <-time.After(time.Duration(grace) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sess, err := m.store.GetSession(ctx, rec.sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s disappeared during stop", rec.sessionID)
	}

	ended := time.Now().UTC()
	sess.EndedAt = &ended
	sess.DurationSeconds = int64(ended.Sub(rec.startedAt).Seconds())

	saved := 0
	for _, track := range captured {
		name := rec.speakers[track.SpeakerID]
		if name == "" {
			name = fmt.Sprintf("User_%d", track.SpeakerID)
		}
		if m.excluded(track.SpeakerID, name) {
			m.logger.Debug("speaker excluded from session",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.Int64("speaker_id", track.SpeakerID))
			continue
		}
		info, statErr := os.Stat(track.FilePath)
		if statErr != nil || info.Size() == 0 {
			m.logger.Warn("skipping empty capture file",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.String("path", track.FilePath))
			continue
		}
		if err := m.store.AddAudioTrack(ctx, &store.AudioTrack{
			SessionID:       sess.ID,
			SpeakerID:       track.SpeakerID,
			SpeakerName:     name,
			FilePath:        track.FilePath,
			FileSizeBytes:   info.Size(),
			DurationSeconds: sess.DurationSeconds,
		}); err != nil {
			return nil, err
		}
		saved++
	}

	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("recording stopped",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.Int64(logging.FieldGuildID, guildID),
		logging.Int("tracks", saved),
		logging.Int64("duration_seconds", sess.DurationSeconds),
	)
	return sess, nil
}

// Status reports the live recording for a guild, if any.
func (m *Manager) Status(guildID int64) (StatusInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.active[guildID]
	if rec == nil {
		return StatusInfo{}, false
	}
	return StatusInfo{
		SessionID: rec.sessionID,
		ChannelID: rec.channelID,
		StartedAt: rec.startedAt,
		Paused:    rec.paused,
		Elapsed:   time.Since(rec.startedAt),
	}, true
}

// ActiveCount returns the number of live recordings across all guilds.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) excluded(speakerID int64, name string) bool {
	for _, id := range m.cfg.Recording.ExcludedSpeakerIDs {
		if id == speakerID {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, pattern := range m.cfg.Recording.ExcludedNamePatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
