package analysis

import "encoding/json"

// KeyEvent is a notable moment in the session narrative.
type KeyEvent struct {
	Description  string   `json:"description"`
	Participants []string `json:"participants,omitempty"`
	Significance string   `json:"significance,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

// CombatEncounter is one fight the party was involved in.
type CombatEncounter struct {
	Enemies        []string `json:"enemies,omitempty"`
	Outcome        string   `json:"outcome,omitempty"`
	Description    string   `json:"description,omitempty"`
	NotableMoments []string `json:"notable_moments,omitempty"`
}

// NPC is a non-player character referenced during the session.
type NPC struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

// Location is a place visited or discussed during the session.
type Location struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// SessionAnalysis is the structured payload the model must return.
type SessionAnalysis struct {
	ShortSummary       string            `json:"short_summary"`
	DetailedSummary    string            `json:"detailed_summary"`
	KeyEvents          []KeyEvent        `json:"key_events"`
	CombatEncounters   []CombatEncounter `json:"combat_encounters"`
	NPCsMentioned      []NPC             `json:"npcs_mentioned"`
	LocationsMentioned []Location        `json:"locations_mentioned"`
}

// Result pairs the decoded analysis with usage accounting.
type Result struct {
	SessionAnalysis
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// EncodeList marshals a list for storage, returning "[]" on nil input.
func EncodeList(v any) string {
	data, err := json.Marshal(v)
	if err != nil || len(data) == 0 || string(data) == "null" {
		return "[]"
	}
	return string(data)
}

// DecodeKeyEvents parses a stored key event list, tolerating empty input.
func DecodeKeyEvents(raw string) []KeyEvent {
	var out []KeyEvent
	decodeList(raw, &out)
	return out
}

// DecodeCombatEncounters parses a stored combat encounter list.
func DecodeCombatEncounters(raw string) []CombatEncounter {
	var out []CombatEncounter
	decodeList(raw, &out)
	return out
}

// DecodeNPCs parses a stored NPC list.
func DecodeNPCs(raw string) []NPC {
	var out []NPC
	decodeList(raw, &out)
	return out
}

// DecodeLocations parses a stored location list.
func DecodeLocations(raw string) []Location {
	var out []Location
	decodeList(raw, &out)
	return out
}

func decodeList(raw string, target any) {
	if raw == "" {
		return
	}
	// Stored lists are written by EncodeList; a decode failure means a
	// hand-edited row and is treated as empty rather than fatal.
	_ = json.Unmarshal([]byte(raw), target)
}
