package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/store"
	"chronicle/internal/testsupport"
)

func TestMergeStageRequiresTracks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.NewSession(t, st, 1, "no-tracks")

	stage := NewMergeStage(cfg, st, logging.NewNop())
	err := stage.Execute(context.Background(), sess)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected a validation error for a trackless session, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Error("a trackless session must not be retried")
	}
}

func TestMergeStageSingleTrackCopies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.NewSession(t, st, 2, "single-track")

	audioDir := t.TempDir()
	sess.AudioDirectory = audioDir
	if err := st.UpdateSession(context.Background(), sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	src := filepath.Join(audioDir, "speaker_100.wav")
	if err := os.WriteFile(src, []byte("RIFF-audio-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := st.AddAudioTrack(context.Background(), &store.AudioTrack{
		SessionID:   sess.ID,
		SpeakerID:   100,
		SpeakerName: "Alice",
		FilePath:    src,
	}); err != nil {
		t.Fatalf("AddAudioTrack: %v", err)
	}

	stage := NewMergeStage(cfg, st, logging.NewNop())
	if err := stage.Execute(context.Background(), sess); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := filepath.Join(audioDir, mergedFileName)
	if sess.MergedAudioPath != want {
		t.Errorf("merged path = %q, want %q", sess.MergedAudioPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read merged file: %v", err)
	}
	if string(data) != "RIFF-audio-bytes" {
		t.Errorf("merged content = %q", data)
	}

	updated, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.MergedAudioPath != want {
		t.Errorf("persisted merged path = %q", updated.MergedAudioPath)
	}
}
