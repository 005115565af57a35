// Package transcribe talks to the speech-to-text provider.
//
// The flow is upload, create job, poll: the audio file is streamed to the
// provider's upload endpoint, a transcription job is created against the
// returned URL, and the job is polled until it completes or errors. Transient
// HTTP failures are retried with exponential backoff; a job that the provider
// itself marks as errored is surfaced as an external API failure so the
// pipeline's retry policy can decide what to do with it.
package transcribe
