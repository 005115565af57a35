package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chronicle/internal/analysis"
	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/notify"
	"chronicle/internal/services"
	"chronicle/internal/store"
	"chronicle/internal/testsupport"
	"chronicle/internal/transcribe"
)

type fakeAnalyzer struct {
	result         *analysis.Result
	err            error
	calls          int
	lastTranscript string
}

func (f *fakeAnalyzer) AnalyzeSession(_ context.Context, transcript string) (*analysis.Result, error) {
	f.calls++
	f.lastTranscript = transcript
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeNotifier struct {
	err      error
	messages []notify.CompletionMessage
}

func (f *fakeNotifier) SessionCompleted(_ context.Context, msg notify.CompletionMessage) error {
	f.messages = append(f.messages, msg)
	return f.err
}

func newPipelineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	// Single attempts keep stage failures from sleeping through backoff.
	cfg.Workflow.StageAttempts = 1
	cfg.Workflow.AnalysisAttempts = 1
	return cfg
}

func seedRecordedSession(t *testing.T, st *store.Store, guildID int64) *store.Session {
	t.Helper()
	sess := testsupport.NewSession(t, st, guildID, "processor")
	audioDir := t.TempDir()
	sess.AudioDirectory = audioDir
	sess.NotificationChannelID = 9000
	sess.DurationSeconds = 120
	if err := st.UpdateSession(context.Background(), sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	src := filepath.Join(audioDir, "speaker_100.wav")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
	if err := st.AddAudioTrack(context.Background(), &store.AudioTrack{
		SessionID:   sess.ID,
		SpeakerID:   100,
		SpeakerName: "Alice",
		FilePath:    src,
	}); err != nil {
		t.Fatalf("AddAudioTrack: %v", err)
	}
	return sess
}

func happyTranscriber() *fakeTranscriber {
	return &fakeTranscriber{results: map[string]*transcribe.Result{}}
}

func (f *fakeTranscriber) stub(path string) {
	f.results[path] = &transcribe.Result{
		Utterances:      []transcribe.Utterance{{Text: "We set off at dawn.", StartMS: 0, EndMS: 2500, Confidence: 0.9}},
		LanguageCode:    "en",
		DurationSeconds: 120,
		Confidence:      0.9,
	}
}

func happyAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{result: &analysis.Result{
		SessionAnalysis: analysis.SessionAnalysis{
			ShortSummary:    "A journey begins.",
			DetailedSummary: "The party departs the village.",
		},
		Model:            "test-model",
		PromptTokens:     1000,
		CompletionTokens: 200,
	}}
}

func TestProcessorHappyPath(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 1)

	transcriber := happyTranscriber()
	transcriber.stub(filepath.Join(sess.AudioDirectory, "speaker_100.wav"))
	analyzer := happyAnalyzer()
	notifier := &fakeNotifier{}

	processor := NewProcessor(cfg, st, transcriber, analyzer, notifier, logging.NewNop())
	if err := processor.Process(context.Background(), sess.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if final.Status != store.StatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.ProcessingStartedAt == nil || final.ProcessingCompletedAt == nil {
		t.Error("processing timestamps must be stamped")
	}
	if final.MergedAudioPath == "" {
		t.Error("merged audio path must be recorded")
	}
	if final.TranscriptionCostCents != transcribe.EstimateCostCents(120) {
		t.Errorf("transcription cost = %d", final.TranscriptionCostCents)
	}
	if final.LLMCostCents != analysis.EstimateCostCents(1000, 200) {
		t.Errorf("llm cost = %d", final.LLMCostCents)
	}

	if summary, err := st.SummaryBySession(context.Background(), sess.ID); err != nil || summary == nil {
		t.Fatalf("SummaryBySession: %v, %v", summary, err)
	} else if summary.ShortSummary != "A journey begins." {
		t.Errorf("summary = %q", summary.ShortSummary)
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if msg.ChannelID != 9000 || msg.SessionID != sess.ID {
		t.Errorf("notification addressed wrong: %+v", msg)
	}
	if msg.SpeakerCount != 1 {
		t.Errorf("speaker count = %d", msg.SpeakerCount)
	}
	if !strings.Contains(string(msg.Report), "## Full Transcript") {
		t.Error("report attachment must contain the transcript section")
	}
	if len(msg.Report) > notify.MaxAttachmentBytes {
		t.Error("report must fit the attachment limit")
	}
}

func TestProcessorRejectsNonRecordingSession(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 2)

	sess.Status = store.StatusCompleted
	if err := st.UpdateSession(context.Background(), sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	processor := NewProcessor(cfg, st, happyTranscriber(), happyAnalyzer(), &fakeNotifier{}, logging.NewNop())
	err := processor.Process(context.Background(), sess.ID)

	var notProcessable *NotProcessableError
	if !errors.As(err, &notProcessable) {
		t.Fatalf("expected NotProcessableError, got %v", err)
	}
	if notProcessable.Status != store.StatusCompleted {
		t.Errorf("rejection status = %s", notProcessable.Status)
	}
}

// gateHandler blocks inside the stage until released, holding the winning
// trigger mid-pipeline while a rival tries to start the same session.
type gateHandler struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gateHandler) Execute(ctx context.Context, _ *store.Session) error {
	g.calls.Add(1)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestProcessorConcurrentTriggersRunStagesOnce(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 6)

	gate := &gateHandler{release: make(chan struct{})}
	processor := &Processor{
		cfg:    cfg,
		store:  st,
		logger: logging.NewNop(),
		now:    time.Now,
		stages: []stageSpec{{name: "merge", processing: store.StatusProcessing, policy: PolicyFromConfig(cfg.Workflow), handler: gate}},
	}

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			errs <- processor.Process(context.Background(), sess.ID)
		}()
	}

	// The winner is parked in the stage, so the first result is the loser's.
	var notProcessable *NotProcessableError
	if err := <-errs; !errors.As(err, &notProcessable) {
		t.Fatalf("expected the losing trigger to be rejected, got %v", err)
	}
	close(gate.release)
	if err := <-errs; err != nil {
		t.Fatalf("winning trigger failed: %v", err)
	}
	if got := gate.calls.Load(); got != 1 {
		t.Fatalf("stage executed %d times, want 1", got)
	}
}

func TestProcessorUnknownSession(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	processor := NewProcessor(cfg, st, happyTranscriber(), happyAnalyzer(), &fakeNotifier{}, logging.NewNop())
	err := processor.Process(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestProcessorCompletesWhenAllTracksFailTranscription(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 7)

	transcriber := &fakeTranscriber{errs: map[string]error{
		filepath.Join(sess.AudioDirectory, "speaker_100.wav"): services.Wrap(services.ErrExternalAPI, "transcribe", "upload", "provider down", nil),
	}}
	analyzer := happyAnalyzer()
	notifier := &fakeNotifier{}

	processor := NewProcessor(cfg, st, transcriber, analyzer, notifier, logging.NewNop())
	if err := processor.Process(context.Background(), sess.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if final.Status != store.StatusCompleted {
		t.Errorf("status = %s, lost tracks must not fail the session", final.Status)
	}
	if analyzer.calls != 1 || analyzer.lastTranscript != "" {
		t.Errorf("analyzer got %d calls with %q, want one call with an empty transcript", analyzer.calls, analyzer.lastTranscript)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("expected the report to be delivered, got %d messages", len(notifier.messages))
	}
}

func TestProcessorStageFailureMarksSessionFailed(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 3)

	transcriber := happyTranscriber()
	transcriber.stub(filepath.Join(sess.AudioDirectory, "speaker_100.wav"))
	analyzer := &fakeAnalyzer{err: services.Wrap(services.ErrExternalAPI, "analyze", "request", "model unavailable", nil)}

	processor := NewProcessor(cfg, st, transcriber, analyzer, &fakeNotifier{}, logging.NewNop())
	err := processor.Process(context.Background(), sess.ID)
	if !errors.Is(err, services.ErrExternalAPI) {
		t.Fatalf("expected the stage error, got %v", err)
	}

	final, getErr := st.GetSession(context.Background(), sess.ID)
	if getErr != nil {
		t.Fatalf("GetSession: %v", getErr)
	}
	if final.Status != store.StatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "model unavailable") {
		t.Errorf("error message = %q", final.ErrorMessage)
	}
}

func TestProcessorDeliveryFailureKeepsCompleted(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 4)

	transcriber := happyTranscriber()
	transcriber.stub(filepath.Join(sess.AudioDirectory, "speaker_100.wav"))
	notifier := &fakeNotifier{err: services.Wrap(services.ErrExternalAPI, "notify", "send", "channel gone", nil)}

	processor := NewProcessor(cfg, st, transcriber, happyAnalyzer(), notifier, logging.NewNop())
	err := processor.Process(context.Background(), sess.ID)
	if !errors.Is(err, services.ErrExternalAPI) {
		t.Fatalf("expected delivery error to surface, got %v", err)
	}

	final, getErr := st.GetSession(context.Background(), sess.ID)
	if getErr != nil {
		t.Fatalf("GetSession: %v", getErr)
	}
	if final.Status != store.StatusCompleted {
		t.Errorf("status = %s, a failed delivery must not undo completion", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "channel gone") {
		t.Errorf("error message = %q", final.ErrorMessage)
	}
}

func TestDispatcherProcessesSubmissions(t *testing.T) {
	cfg := newPipelineConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := seedRecordedSession(t, st, 5)

	transcriber := happyTranscriber()
	transcriber.stub(filepath.Join(sess.AudioDirectory, "speaker_100.wav"))
	notifier := &fakeNotifier{}

	processor := NewProcessor(cfg, st, transcriber, happyAnalyzer(), notifier, logging.NewNop())
	dispatcher := NewDispatcher(processor, 2, logging.NewNop())
	dispatcher.Start(context.Background())

	if err := dispatcher.Submit(sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	dispatcher.Stop()

	final, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if final.Status != store.StatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("expected one delivery, got %d", len(notifier.messages))
	}

	if err := dispatcher.Submit("later"); err == nil {
		t.Error("submit after stop must fail")
	}
}
