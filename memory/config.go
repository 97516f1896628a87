package memory

import "time"

// Config holds Manager configuration.
type Config struct {
	// Enabled toggles the engine. When false, StoreMessage returns -1
	// and GetContext returns an empty slice.
	Enabled bool

	// RecentK is the size of the chronological recency slice.
	RecentK int

	// SimilarK is the total context budget. The similarity slice is
	// capped at SimilarK - RecentK, so it contributes nothing when
	// RecentK >= SimilarK; callers should configure SimilarK > RecentK.
	SimilarK int

	// RetentionDays bounds message age. 0 means unbounded: the sweeper
	// never runs.
	RetentionDays int

	// SweepInterval is how often the retention sweeper fires.
	SweepInterval time.Duration

	// QueueSize bounds the embedding job queue. Submissions beyond
	// capacity are rejected and reported through the Sink.
	QueueSize int

	// Workers is the number of embedding pipeline goroutines.
	Workers int
}

// DefaultConfig returns sensible defaults for a single relay bot.
var DefaultConfig = &Config{
	Enabled:       true,
	RecentK:       4,
	SimilarK:      12,
	RetentionDays: 0, // unbounded
	SweepInterval: time.Hour,
	QueueSize:     256,
	Workers:       2,
}

// Retention returns the retention window as a duration, 0 when
// unbounded.
func (c *Config) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
