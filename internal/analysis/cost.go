package analysis

const (
	// Model pricing in dollars per million tokens.
	inputDollarsPerMTok  = 3.0
	outputDollarsPerMTok = 15.0
)

// EstimateCostCents prices an analysis call from token usage, truncated to
// whole cents so session totals stay integral.
func EstimateCostCents(promptTokens, completionTokens int64) int64 {
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	inputDollars := float64(promptTokens) / 1_000_000 * inputDollarsPerMTok
	outputDollars := float64(completionTokens) / 1_000_000 * outputDollarsPerMTok
	return int64((inputDollars + outputDollars) * 100)
}
