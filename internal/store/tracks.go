package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddAudioTrack records one speaker's capture file. The track ID and creation
// time are assigned here.
func (s *Store) AddAudioTrack(ctx context.Context, track *AudioTrack) error {
	ctx = ensureContext(ctx)
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx, `
		INSERT INTO audio_tracks (
			id, session_id, speaker_id, speaker_name, file_path,
			file_size_bytes, duration_seconds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.SessionID, track.SpeakerID, track.SpeakerName,
		track.FilePath, track.FileSizeBytes, track.DurationSeconds,
		formatTime(track.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert audio track: %w", err)
	}
	return nil
}

// AudioTracksBySession returns a session's tracks ordered by speaker ID so
// merge input order is deterministic.
func (s *Store) AudioTracksBySession(ctx context.Context, sessionID string) ([]*AudioTrack, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, speaker_id, speaker_name, file_path,
			file_size_bytes, duration_seconds, created_at
		FROM audio_tracks WHERE session_id = ? ORDER BY speaker_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audio tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*AudioTrack
	for rows.Next() {
		var (
			track     AudioTrack
			createdAt string
		)
		if err := rows.Scan(
			&track.ID, &track.SessionID, &track.SpeakerID, &track.SpeakerName,
			&track.FilePath, &track.FileSizeBytes, &track.DurationSeconds, &createdAt,
		); err != nil {
			return nil, err
		}
		track.CreatedAt = parseTime(createdAt)
		tracks = append(tracks, &track)
	}
	return tracks, rows.Err()
}
