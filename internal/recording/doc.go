// Package recording manages live capture sessions per guild.
//
// The Manager enforces the guild-level state machine (idle, recording,
// paused), runs a disk space preflight before any capture begins, and
// persists the session plus its per-speaker tracks when capture stops.
// Actual audio capture is delegated to a VoiceSource so the daemon can plug
// in an external capture helper while tests use fakes.
package recording
