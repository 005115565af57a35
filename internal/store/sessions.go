package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, guild_id, channel_id, notification_channel_id, name, status,
	started_at, ended_at, duration_seconds, processing_started_at, processing_completed_at,
	error_message, audio_directory, merged_audio_path, transcription_cost_cents,
	llm_cost_cents, created_at, updated_at`

// NewSessionParams describes a session created at recording start.
type NewSessionParams struct {
	GuildID               int64
	ChannelID             int64
	NotificationChannelID int64
	Name                  string
	StartedAt             time.Time
	AudioDirectory        string
}

// NewSession inserts a session in the recording state and returns it.
func (s *Store) NewSession(ctx context.Context, params NewSessionParams) (*Session, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	started := params.StartedAt
	if started.IsZero() {
		started = now
	}
	sess := &Session{
		ID:                    uuid.NewString(),
		GuildID:               params.GuildID,
		ChannelID:             params.ChannelID,
		NotificationChannelID: params.NotificationChannelID,
		Name:                  strings.TrimSpace(params.Name),
		Status:                StatusRecording,
		StartedAt:             started,
		AudioDirectory:        params.AudioDirectory,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if sess.Name == "" {
		sess.Name = "Session " + started.UTC().Format("2006-01-02 15:04")
	}

	_, err := s.execWithRetry(ctx, `
		INSERT INTO sessions (
			id, guild_id, channel_id, notification_channel_id, name, status,
			started_at, duration_seconds, audio_directory, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.GuildID, sess.ChannelID, sess.NotificationChannelID,
		sess.Name, string(sess.Status), formatTime(sess.StartedAt),
		sess.DurationSeconds, sess.AudioDirectory,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession fetches a session by ID, returning nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns sessions newest first, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, statuses ...Status) ([]*Session, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + sessionColumns + " FROM sessions"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSession persists all mutable session fields.
func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	ctx = ensureContext(ctx)
	sess.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx, `
		UPDATE sessions SET
			guild_id = ?, channel_id = ?, notification_channel_id = ?, name = ?,
			status = ?, started_at = ?, ended_at = ?, duration_seconds = ?,
			processing_started_at = ?, processing_completed_at = ?, error_message = ?,
			audio_directory = ?, merged_audio_path = ?, transcription_cost_cents = ?,
			llm_cost_cents = ?, updated_at = ?
		WHERE id = ?`,
		sess.GuildID, sess.ChannelID, sess.NotificationChannelID, sess.Name,
		string(sess.Status), formatTime(sess.StartedAt), nullableTime(sess.EndedAt),
		sess.DurationSeconds, nullableTime(sess.ProcessingStartedAt),
		nullableTime(sess.ProcessingCompletedAt), nullableString(sess.ErrorMessage),
		sess.AudioDirectory, nullableString(sess.MergedAudioPath),
		sess.TranscriptionCostCents, sess.LLMCostCents,
		formatTime(sess.UpdatedAt), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	return nil
}

// ClaimForProcessing atomically moves a recording session into processing.
// The status check happens inside the UPDATE, so of two concurrent triggers
// only one claims the session; the loser gets false with no rows changed.
func (s *Store) ClaimForProcessing(ctx context.Context, sess *Session, startedAt time.Time) (bool, error) {
	ctx = ensureContext(ctx)
	startedAt = startedAt.UTC()
	res, err := s.execWithRetry(ctx, `
		UPDATE sessions SET status = ?, processing_started_at = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusProcessing), formatTime(startedAt), formatTime(startedAt),
		sess.ID, string(StatusRecording),
	)
	if err != nil {
		return false, fmt.Errorf("claim session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim session rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	sess.Status = StatusProcessing
	sess.ProcessingStartedAt = &startedAt
	sess.ErrorMessage = ""
	sess.UpdatedAt = startedAt
	return true, nil
}

// DeleteSession removes a session and, via cascade, its tracks, transcript,
// and summary.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ensureContext(ctx), "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ActiveSessionForGuild returns the in-flight recording session for a guild,
// or nil when none exists.
func (s *Store) ActiveSessionForGuild(ctx context.Context, guildID int64) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE guild_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1",
		guildID, string(StatusRecording))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

// Stats returns session counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM sessions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, err
		}
		if status, ok := ParseStatus(raw); ok {
			stats[status] = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess            Session
		status          string
		startedAt       string
		endedAt         sql.NullString
		processingStart sql.NullString
		processingDone  sql.NullString
		errorMessage    sql.NullString
		mergedPath      sql.NullString
		createdAt       string
		updatedAt       string
	)
	err := row.Scan(
		&sess.ID, &sess.GuildID, &sess.ChannelID, &sess.NotificationChannelID,
		&sess.Name, &status, &startedAt, &endedAt, &sess.DurationSeconds,
		&processingStart, &processingDone, &errorMessage, &sess.AudioDirectory,
		&mergedPath, &sess.TranscriptionCostCents, &sess.LLMCostCents,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, ok := ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("session %s has unknown status %q", sess.ID, status)
	}
	sess.Status = parsed
	sess.StartedAt = parseTime(startedAt)
	sess.EndedAt = parseNullTime(endedAt)
	sess.ProcessingStartedAt = parseNullTime(processingStart)
	sess.ProcessingCompletedAt = parseNullTime(processingDone)
	sess.ErrorMessage = errorMessage.String
	sess.MergedAudioPath = mergedPath.String
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}
