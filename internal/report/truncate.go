package report

import (
	"strings"
	"unicode/utf8"
)

const (
	truncationNotice        = "\n\n_[Transcript truncated to fit the attachment size limit.]_\n\n"
	genericTruncationNotice = "\n\n_[Report truncated to fit the attachment size limit.]_\n"

	// markerSafetyBuffer leaves room for the section header and joining
	// newlines when reassembling around the transcript marker.
	markerSafetyBuffer  = 1000
	genericSafetyBuffer = 100
)

// Truncate trims content to at most limit bytes, preferring to drop transcript
// lines from the end while keeping the report header, summary sections, and
// footer intact. It reports whether any trimming happened. The result always
// ends on a complete line.
func Truncate(content string, limit int) (string, bool) {
	if len(content) <= limit {
		return content, false
	}

	markerIdx := strings.Index(content, transcriptMarker)
	if markerIdx < 0 {
		return truncateWhole(content, limit), true
	}

	before := content[:markerIdx]
	tail := footer
	if footerIdx := strings.LastIndex(content, footerMarker); footerIdx > markerIdx {
		tail = content[footerIdx:]
	}
	transcript := content[markerIdx+len(transcriptMarker):]
	if footerIdx := strings.LastIndex(transcript, footerMarker); footerIdx >= 0 {
		transcript = transcript[:footerIdx]
	}

	overhead := len(before) + len(transcriptMarker) + len(tail) + len(truncationNotice)
	available := limit - overhead - markerSafetyBuffer
	if available <= 0 {
		return before + truncationNotice + tail, true
	}

	partial := trimPartialRune(transcript[:min(available, len(transcript))])
	partial = trimToLineBoundary(partial)
	return before + transcriptMarker + partial + truncationNotice + tail, true
}

func truncateWhole(content string, limit int) string {
	available := limit - len(genericTruncationNotice) - genericSafetyBuffer
	if available <= 0 {
		return strings.TrimSpace(genericTruncationNotice) + "\n"
	}
	partial := trimPartialRune(content[:min(available, len(content))])
	partial = trimToLineBoundary(partial)
	return partial + genericTruncationNotice
}

// trimPartialRune drops a trailing incomplete UTF-8 sequence left by a byte
// slice.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}

func trimToLineBoundary(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
