package memory

import "time"

// Config holds Manager, Pipeline and Dispatcher configuration.
type Config struct {
	// Enabled toggles context assembly on/off.
	// Default: true.
	Enabled bool

	// MinSimilarity is the exclusive cosine cutoff for recall [0.0-1.0].
	// Default: 0.5. Zero means unset; use a tiny value such as 1e-9 for "any
	// positive similarity".
	// Note: Tiny local models (all-MiniLM-L6-v2) score lower than API models,
	// callers running the ONNX embedder usually lower this to ~0.3.
	MinSimilarity float64

	// SearchK is the number of relevant memories put into the context.
	SearchK int

	// RecentLimit is the number of recent memories used when nothing is relevant.
	RecentLimit int

	// ProfileListLimit caps likes and interests rendered per list.
	ProfileListLimit int

	// CandidateMultiplier widens the store query so decay can reorder results.
	CandidateMultiplier int

	// MaxContextChars bounds the assembled context block.
	MaxContextChars int

	// MaxEmbedChars truncates text before it is sent to the embedder.
	MaxEmbedChars int

	// EmbedTimeout bounds a single embedding call. Zero means no extra timeout.
	EmbedTimeout time.Duration

	// HalfLife is the time for an unrecalled memory to lose half its weight.
	HalfLife time.Duration

	// DecayFloor is the minimum decay factor; memories are never fully forgotten.
	// Zero means unset.
	DecayFloor float64

	// RecallBoost is added to strength each time a memory is recalled.
	RecallBoost float64

	// MaxStrength caps reinforcement.
	MaxStrength float64

	// ExtractionTimeout bounds one background extraction job.
	ExtractionTimeout time.Duration

	// ExtractionMaxTokens is the completion budget of each classification call.
	ExtractionMaxTokens int

	// HistoryTurns is how many prior utterances go into the profile prompt.
	HistoryTurns int

	// MaxConcurrentExtractions bounds in-flight background jobs.
	MaxConcurrentExtractions int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:                  true,
		MinSimilarity:            0.5,
		SearchK:                  3,
		RecentLimit:              2,
		ProfileListLimit:         5,
		CandidateMultiplier:      4,
		MaxContextChars:          2000,
		MaxEmbedChars:            2000,
		EmbedTimeout:             10 * time.Second,
		HalfLife:                 30 * 24 * time.Hour,
		DecayFloor:               0.1,
		RecallBoost:              0.2,
		MaxStrength:              3.0,
		ExtractionTimeout:        45 * time.Second,
		ExtractionMaxTokens:      400,
		HistoryTurns:             6,
		MaxConcurrentExtractions: 8,
	}
}

// withDefaults fills zero values from DefaultConfig. Enabled is taken as is.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MinSimilarity == 0 {
		out.MinSimilarity = d.MinSimilarity
	}
	if out.SearchK <= 0 {
		out.SearchK = d.SearchK
	}
	if out.RecentLimit <= 0 {
		out.RecentLimit = d.RecentLimit
	}
	if out.ProfileListLimit <= 0 {
		out.ProfileListLimit = d.ProfileListLimit
	}
	if out.CandidateMultiplier <= 0 {
		out.CandidateMultiplier = d.CandidateMultiplier
	}
	if out.MaxContextChars <= 0 {
		out.MaxContextChars = d.MaxContextChars
	}
	if out.MaxEmbedChars <= 0 {
		out.MaxEmbedChars = d.MaxEmbedChars
	}
	if out.HalfLife <= 0 {
		out.HalfLife = d.HalfLife
	}
	if out.DecayFloor <= 0 {
		out.DecayFloor = d.DecayFloor
	}
	if out.RecallBoost <= 0 {
		out.RecallBoost = d.RecallBoost
	}
	if out.MaxStrength <= 0 {
		out.MaxStrength = d.MaxStrength
	}
	if out.ExtractionTimeout <= 0 {
		out.ExtractionTimeout = d.ExtractionTimeout
	}
	if out.ExtractionMaxTokens <= 0 {
		out.ExtractionMaxTokens = d.ExtractionMaxTokens
	}
	if out.HistoryTurns < 0 {
		out.HistoryTurns = 0
	}
	if out.MaxConcurrentExtractions <= 0 {
		out.MaxConcurrentExtractions = d.MaxConcurrentExtractions
	}
	return &out
}
