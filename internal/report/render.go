// Package report renders a session's analysis and transcript into a markdown
// document and trims it to a byte budget without splitting lines.
package report

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"chronicle/internal/analysis"
	"chronicle/internal/store"
)

const (
	transcriptMarker = "## Full Transcript"
	footerMarker     = "---\n*Generated by"
	footer           = "---\n*Generated by Chronicle*\n"
)

// Render produces the full markdown report for a completed session. A nil
// summary or transcript yields placeholder sections rather than an error so
// partially processed sessions still render.
func Render(sess *store.Session, summary *store.Summary, transcript *store.Transcript) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session Report: %s\n\n", sess.Name)
	fmt.Fprintf(&b, "**Session ID:** %s\n", sess.ID)
	fmt.Fprintf(&b, "**Date:** %s\n", sess.StartedAt.Format("January 2, 2006"))
	fmt.Fprintf(&b, "**Duration:** %s\n", formatDuration(sess.DurationSeconds))
	if transcript != nil {
		fmt.Fprintf(&b, "**Language:** %s\n", languageName(transcript.Language))
		fmt.Fprintf(&b, "**Average Confidence:** %.0f%%\n", transcript.ConfidenceAverage*100)
		fmt.Fprintf(&b, "**Audio Duration:** %s\n", formatDuration(transcript.AudioDurationSeconds))
		fmt.Fprintf(&b, "**Speakers:** %d\n", speakerCount(transcript.Utterances))
	}
	totalCents := sess.TranscriptionCostCents + sess.LLMCostCents
	fmt.Fprintf(&b, "**Processing Cost:** $%d.%02d\n\n", totalCents/100, totalCents%100)

	if summary != nil {
		writeSummarySections(&b, summary)
	} else {
		b.WriteString("## Summary\n\n_Analysis unavailable for this session._\n\n")
	}

	b.WriteString(transcriptMarker + "\n\n")
	if transcript != nil && len(transcript.Utterances) > 0 {
		for _, u := range transcript.Utterances {
			fmt.Fprintf(&b, "**%s** _[%s]_: %s\n\n", u.Speaker, formatTimestamp(u.StartMS), u.Text)
		}
	} else if transcript != nil && transcript.FullText != "" {
		b.WriteString(transcript.FullText + "\n\n")
	} else {
		b.WriteString("_No transcript available._\n\n")
	}

	b.WriteString(footer)
	return b.String()
}

func writeSummarySections(b *strings.Builder, summary *store.Summary) {
	b.WriteString("## Summary\n\n" + orPlaceholder(summary.ShortSummary) + "\n\n")
	b.WriteString("## Detailed Summary\n\n" + orPlaceholder(summary.DetailedSummary) + "\n\n")

	b.WriteString("## Key Events\n\n")
	events := analysis.DecodeKeyEvents(summary.KeyEventsJSON)
	if len(events) == 0 {
		b.WriteString("_None recorded._\n\n")
	} else {
		for i, ev := range events {
			fmt.Fprintf(b, "%d. %s", i+1, ev.Description)
			if len(ev.Participants) > 0 {
				fmt.Fprintf(b, " _(%s)_", strings.Join(ev.Participants, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Combat Encounters\n\n")
	encounters := analysis.DecodeCombatEncounters(summary.CombatEncountersJSON)
	if len(encounters) == 0 {
		b.WriteString("_None recorded._\n\n")
	} else {
		for _, enc := range encounters {
			fmt.Fprintf(b, "### vs. %s\n\n", strings.Join(enc.Enemies, ", "))
			if enc.Outcome != "" {
				fmt.Fprintf(b, "**Outcome:** %s\n\n", enc.Outcome)
			}
			if enc.Description != "" {
				b.WriteString(enc.Description + "\n\n")
			}
			for _, moment := range enc.NotableMoments {
				fmt.Fprintf(b, "- %s\n", moment)
			}
			if len(enc.NotableMoments) > 0 {
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("## NPCs Mentioned\n\n")
	npcs := analysis.DecodeNPCs(summary.NPCsJSON)
	if len(npcs) == 0 {
		b.WriteString("_None recorded._\n\n")
	} else {
		for _, npc := range npcs {
			fmt.Fprintf(b, "- **%s**", npc.Name)
			if npc.Role != "" {
				fmt.Fprintf(b, " (%s)", npc.Role)
			}
			if npc.Description != "" {
				fmt.Fprintf(b, ": %s", npc.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Locations Mentioned\n\n")
	locations := analysis.DecodeLocations(summary.LocationsJSON)
	if len(locations) == 0 {
		b.WriteString("_None recorded._\n\n")
	} else {
		for _, loc := range locations {
			fmt.Fprintf(b, "- **%s**", loc.Name)
			if loc.Type != "" {
				fmt.Fprintf(b, " (%s)", loc.Type)
			}
			if loc.Description != "" {
				fmt.Fprintf(b, ": %s", loc.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "_Not available._"
	}
	return s
}

func speakerCount(utterances []store.Utterance) int {
	seen := make(map[string]struct{}, 8)
	for _, u := range utterances {
		seen[u.Speaker] = struct{}{}
	}
	return len(seen)
}

// languageName turns a BCP 47 tag like "en_us" into a human-readable name.
// Unrecognized tags are returned as-is.
func languageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "Unknown"
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

func formatTimestamp(ms int64) string {
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
