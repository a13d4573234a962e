package config

import "time"

// RetentionConfig controls data retention and cleanup behavior for cases,
// runs, and artifact bookkeeping.
type RetentionConfig struct {
	// CaseRetentionDays is how many days to keep completed cases/runs before
	// soft-deleting the index rows (the artifact store objects themselves
	// are left to bucket lifecycle policy, out of Tarka's scope).
	CaseRetentionDays int

	// DedupCacheTTL is the maximum age of a freshness-gate dedup entry
	// before it is evicted from Redis; set generously above TimeWindow so
	// Postgres fallback entries age out on the same schedule.
	DedupCacheTTL time.Duration

	// CleanupInterval is how often the retention loop runs.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		CaseRetentionDays: 90,
		DedupCacheTTL:     4 * time.Hour,
		CleanupInterval:   12 * time.Hour,
	}
}
