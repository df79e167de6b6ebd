package generator

import "time"

// Config drives the synthetic social graph generator.
type Config struct {
	NumUsers int
	// Degree is the number of neighbours each user is wired to on the base ring.
	Degree int
	// RewireChance moves a ring connection to a random user, which shortens paths.
	RewireChance   float64
	InferredChance float64
	OneWayChance   float64
	ActivityWindow time.Duration
	Seed           int64
	Now            time.Time
}

// DefaultConfig returns a mid-sized small-world graph.
func DefaultConfig() Config {
	return Config{
		NumUsers:       5000,
		Degree:         6,
		RewireChance:   0.1,
		InferredChance: 0.2,
		OneWayChance:   0.05,
		ActivityWindow: 180 * 24 * time.Hour,
		Seed:           42,
	}
}
