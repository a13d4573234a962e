package config

import "time"

// QueueConfig controls how InvestigationJobs are polled, claimed, and
// processed by the worker pool.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod. Each
	// worker independently polls and processes jobs.
	WorkerCount int

	// MaxConcurrentJobs is the global limit of concurrent jobs being
	// processed across ALL replicas/pods, enforced by a database COUNT(*)
	// check at claim time.
	MaxConcurrentJobs int

	// PollInterval is the base interval for checking pending jobs.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	PollIntervalJitter time.Duration

	// JobTimeout is the maximum time a job can be processed before the
	// pipeline context is cancelled.
	JobTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for active jobs to
	// finish during shutdown.
	GracefulShutdownTimeout time.Duration

	// OrphanDetectionInterval is how often to scan for orphaned jobs.
	OrphanDetectionInterval time.Duration

	// OrphanThreshold is how long a job can go without a heartbeat before
	// it is considered orphaned and recovered.
	OrphanThreshold time.Duration

	// MaxAttempts is the maximum number of claim attempts before a job is
	// moved to the dead-letter state instead of being requeued.
	MaxAttempts int
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentJobs:       5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		JobTimeout:              5 * time.Minute,
		GracefulShutdownTimeout: 5 * time.Minute,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
		MaxAttempts:             3,
	}
}
