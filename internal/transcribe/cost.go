package transcribe

// centsPerMinute is the provider's per-audio-minute rate ($0.0025) in cents.
const centsPerMinute = 0.25

// EstimateCostCents prices a transcription by audio length, truncated to
// whole cents so session totals stay integral.
func EstimateCostCents(durationSeconds int64) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	minutes := float64(durationSeconds) / 60
	return int64(minutes * centsPerMinute)
}
