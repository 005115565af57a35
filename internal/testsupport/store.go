package testsupport

import (
	"context"
	"testing"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewSession creates a recording-state session for tests using the provided store.
func NewSession(t testing.TB, st *store.Store, guildID int64, name string) *store.Session {
	t.Helper()

	sess, err := st.NewSession(context.Background(), store.NewSessionParams{
		GuildID:   guildID,
		ChannelID: guildID + 1,
		Name:      name,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	return sess
}
