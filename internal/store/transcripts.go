package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateTranscript stores the combined transcript for a session, replacing
// any previous one so stage retries stay idempotent.
func (s *Store) CreateTranscript(ctx context.Context, transcript *Transcript) error {
	ctx = ensureContext(ctx)
	if transcript.ID == "" {
		transcript.ID = uuid.NewString()
	}
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now().UTC()
	}
	utterances := transcript.Utterances
	if utterances == nil {
		utterances = []Utterance{}
	}
	encoded, err := json.Marshal(utterances)
	if err != nil {
		return fmt.Errorf("encode utterances: %w", err)
	}
	_, err = s.execWithRetry(ctx, `
		INSERT INTO transcripts (
			id, session_id, full_text, utterances_json, language,
			audio_duration_seconds, confidence_average, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			full_text = excluded.full_text,
			utterances_json = excluded.utterances_json,
			language = excluded.language,
			audio_duration_seconds = excluded.audio_duration_seconds,
			confidence_average = excluded.confidence_average,
			created_at = excluded.created_at`,
		transcript.ID, transcript.SessionID, transcript.FullText, string(encoded),
		transcript.Language, transcript.AudioDurationSeconds,
		transcript.ConfidenceAverage, formatTime(transcript.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// TranscriptBySession fetches a session's transcript, returning nil when absent.
func (s *Store) TranscriptBySession(ctx context.Context, sessionID string) (*Transcript, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, full_text, utterances_json, language,
			audio_duration_seconds, confidence_average, created_at
		FROM transcripts WHERE session_id = ?`, sessionID)

	var (
		transcript Transcript
		utterances string
		createdAt  string
	)
	err := row.Scan(
		&transcript.ID, &transcript.SessionID, &transcript.FullText, &utterances,
		&transcript.Language, &transcript.AudioDurationSeconds,
		&transcript.ConfidenceAverage, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	if utterances != "" {
		if err := json.Unmarshal([]byte(utterances), &transcript.Utterances); err != nil {
			return nil, fmt.Errorf("decode utterances: %w", err)
		}
	}
	transcript.CreatedAt = parseTime(createdAt)
	return &transcript, nil
}
