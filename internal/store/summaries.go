package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSummary stores the narrative analysis for a session, replacing any
// previous one so stage retries stay idempotent.
func (s *Store) CreateSummary(ctx context.Context, summary *Summary) error {
	ctx = ensureContext(ctx)
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx, `
		INSERT INTO summaries (
			id, session_id, short_summary, detailed_summary, key_events_json,
			combat_encounters_json, npcs_json, locations_json, model_used,
			prompt_tokens, completion_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			short_summary = excluded.short_summary,
			detailed_summary = excluded.detailed_summary,
			key_events_json = excluded.key_events_json,
			combat_encounters_json = excluded.combat_encounters_json,
			npcs_json = excluded.npcs_json,
			locations_json = excluded.locations_json,
			model_used = excluded.model_used,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			created_at = excluded.created_at`,
		summary.ID, summary.SessionID, summary.ShortSummary, summary.DetailedSummary,
		orEmptyList(summary.KeyEventsJSON), orEmptyList(summary.CombatEncountersJSON),
		orEmptyList(summary.NPCsJSON), orEmptyList(summary.LocationsJSON),
		summary.ModelUsed, summary.PromptTokens, summary.CompletionTokens,
		formatTime(summary.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// SummaryBySession fetches a session's summary, returning nil when absent.
func (s *Store) SummaryBySession(ctx context.Context, sessionID string) (*Summary, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, short_summary, detailed_summary, key_events_json,
			combat_encounters_json, npcs_json, locations_json, model_used,
			prompt_tokens, completion_tokens, created_at
		FROM summaries WHERE session_id = ?`, sessionID)

	var (
		summary   Summary
		createdAt string
	)
	err := row.Scan(
		&summary.ID, &summary.SessionID, &summary.ShortSummary, &summary.DetailedSummary,
		&summary.KeyEventsJSON, &summary.CombatEncountersJSON, &summary.NPCsJSON,
		&summary.LocationsJSON, &summary.ModelUsed, &summary.PromptTokens,
		&summary.CompletionTokens, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	summary.CreatedAt = parseTime(createdAt)
	return &summary, nil
}

func orEmptyList(value string) string {
	if value == "" {
		return "[]"
	}
	return value
}
