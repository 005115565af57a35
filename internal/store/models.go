package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusRecording    Status = "recording"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusRecording,
		StatusProcessing,
		StatusTranscribing,
		StatusAnalyzing,
		StatusCompleted,
		StatusFailed,
	}
}

// ParseStatus converts a string to a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range AllStatuses() {
		if candidate == status {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the raw status value.
func (s Status) String() string { return string(s) }

var statusOrder = map[Status]int{
	StatusRecording:    0,
	StatusProcessing:   1,
	StatusTranscribing: 2,
	StatusAnalyzing:    3,
	StatusCompleted:    4,
}

// CanTransition reports whether the lifecycle permits moving from one status
// to the next. Progress is strictly forward through the pipeline; any
// non-terminal status may move to failed.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fromIdx, ok := statusOrder[from]
	if !ok {
		return false
	}
	toIdx, ok := statusOrder[to]
	if !ok {
		return false
	}
	return toIdx == fromIdx+1
}

// Session is a recorded voice session moving through the pipeline.
type Session struct {
	ID                     string
	GuildID                int64
	ChannelID              int64
	NotificationChannelID  int64
	Name                   string
	Status                 Status
	StartedAt              time.Time
	EndedAt                *time.Time
	DurationSeconds        int64
	ProcessingStartedAt    *time.Time
	ProcessingCompletedAt  *time.Time
	ErrorMessage           string
	AudioDirectory         string
	MergedAudioPath        string
	TranscriptionCostCents int64
	LLMCostCents           int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// AudioTrack is one speaker's capture file for a session.
type AudioTrack struct {
	ID              string
	SessionID       string
	SpeakerID       int64
	SpeakerName     string
	FilePath        string
	FileSizeBytes   int64
	DurationSeconds int64
	CreatedAt       time.Time
}

// Utterance is a single attributed segment of speech.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the combined multi-speaker transcript for a session.
type Transcript struct {
	ID                   string
	SessionID            string
	FullText             string
	Utterances           []Utterance
	Language             string
	AudioDurationSeconds int64
	ConfidenceAverage    float64
	CreatedAt            time.Time
}

// Summary is the LLM narrative analysis for a session. The structured lists
// are stored as raw JSON; the analysis package owns their element types.
type Summary struct {
	ID                   string
	SessionID            string
	ShortSummary         string
	DetailedSummary      string
	KeyEventsJSON        string
	CombatEncountersJSON string
	NPCsJSON             string
	LocationsJSON        string
	ModelUsed            string
	PromptTokens         int64
	CompletionTokens     int64
	CreatedAt            time.Time
}
