package report

import (
	"strings"
	"testing"
	"time"

	"chronicle/internal/analysis"
	"chronicle/internal/store"
)

func sampleSession() *store.Session {
	return &store.Session{
		ID:                     "11111111-2222-3333-4444-555555555555",
		Name:                   "Session 2026-02-14 19:00",
		StartedAt:              time.Date(2026, 2, 14, 19, 0, 0, 0, time.UTC),
		DurationSeconds:        5400,
		TranscriptionCostCents: 90,
		LLMCostCents:           35,
	}
}

func sampleSummary(t *testing.T) *store.Summary {
	t.Helper()
	return &store.Summary{
		ShortSummary:    "The party crossed the mountain pass.",
		DetailedSummary: "A longer account of the crossing.",
		KeyEventsJSON: analysis.EncodeList([]analysis.KeyEvent{
			{Description: "Avalanche on the pass", Participants: []string{"Mira", "Thorin"}},
		}),
		CombatEncountersJSON: analysis.EncodeList([]analysis.CombatEncounter{
			{Enemies: []string{"Winter Wolves"}, Outcome: "victory", Description: "Ambush at dusk.", NotableMoments: []string{"Mira's critical hit"}},
		}),
		NPCsJSON: analysis.EncodeList([]analysis.NPC{
			{Name: "Old Hern", Role: "guide", Description: "Knows the passes."},
		}),
		LocationsJSON: analysis.EncodeList([]analysis.Location{
			{Name: "Frostfang Pass", Type: "mountain pass", Description: "Treacherous in winter."},
		}),
		ModelUsed: "test-model",
	}
}

func sampleTranscript() *store.Transcript {
	return &store.Transcript{
		FullText: "Mira: Hello\nThorin: Well met",
		Utterances: []store.Utterance{
			{Speaker: "Mira", Text: "Hello", StartMS: 0, EndMS: 900, Confidence: 0.95},
			{Speaker: "Thorin", Text: "Well met", StartMS: 1000, EndMS: 2100, Confidence: 0.91},
		},
		Language:             "en",
		AudioDurationSeconds: 5400,
		ConfidenceAverage:    0.93,
	}
}

func TestRenderFullReport(t *testing.T) {
	got := Render(sampleSession(), sampleSummary(t), sampleTranscript())

	wantSubstrings := []string{
		"# Session Report: Session 2026-02-14 19:00",
		"**Date:** February 14, 2026",
		"**Duration:** 1h 30m 0s",
		"**Language:** English",
		"**Average Confidence:** 93%",
		"**Speakers:** 2",
		"**Processing Cost:** $1.25",
		"## Summary\n\nThe party crossed the mountain pass.",
		"## Key Events\n\n1. Avalanche on the pass _(Mira, Thorin)_",
		"### vs. Winter Wolves",
		"**Outcome:** victory",
		"- Mira's critical hit",
		"- **Old Hern** (guide): Knows the passes.",
		"- **Frostfang Pass** (mountain pass): Treacherous in winter.",
		"## Full Transcript",
		"**Mira** _[00:00:00]_: Hello",
		"**Thorin** _[00:00:01]_: Well met",
	}
	for _, want := range wantSubstrings {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if !strings.HasSuffix(got, footer) {
		t.Errorf("report should end with footer, got tail %q", got[len(got)-40:])
	}
	if idx := strings.Index(got, transcriptMarker); idx < 0 || strings.Index(got, "## Summary") > idx {
		t.Error("summary sections must precede the transcript")
	}
}

func TestRenderWithoutAnalysisOrTranscript(t *testing.T) {
	got := Render(sampleSession(), nil, nil)
	if !strings.Contains(got, "_Analysis unavailable for this session._") {
		t.Error("missing analysis placeholder")
	}
	if !strings.Contains(got, "_No transcript available._") {
		t.Error("missing transcript placeholder")
	}
	if !strings.HasSuffix(got, footer) {
		t.Error("footer missing")
	}
}

func TestRenderEmptySummaryLists(t *testing.T) {
	summary := &store.Summary{ShortSummary: "Short."}
	got := Render(sampleSession(), summary, sampleTranscript())
	for _, section := range []string{"## Key Events", "## Combat Encounters", "## NPCs Mentioned", "## Locations Mentioned"} {
		if !strings.Contains(got, section+"\n\n_None recorded._") {
			t.Errorf("section %q should render its empty placeholder", section)
		}
	}
}

func TestLanguageName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"en", "English"},
		{"en-US", "American English"},
		{"en_us", "American English"},
		{"de", "German"},
		{"", "Unknown"},
		{"??", "??"},
	}
	for _, tc := range cases {
		if got := languageName(tc.in); got != tc.want {
			t.Errorf("languageName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
