// Package analysis extracts structured narrative data from a session
// transcript using an LLM.
//
// The model is asked for a single JSON object with a fixed set of keys:
// short and detailed summaries plus lists of key events, combat encounters,
// NPCs, and locations. Model output is decoded leniently because providers
// wrap JSON in prose or code fences more often than they should; a payload
// that still fails to decode is reported as an external API failure so the
// pipeline can retry the call.
package analysis
