package ingestion

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts ingestion outcomes in-process, mirroring the
// "received/enqueued/skipped_allowlist/skipped_freshness" enqueue stats
// spec.md §4.1 requires be persisted; GET /healthz reports the live
// values and the same counts are exported as Prometheus counters for
// external scraping.
type Stats struct {
	Received          atomic.Int64
	Enqueued          atomic.Int64
	SkippedAllowlist  atomic.Int64
	SkippedFreshness  atomic.Int64
	PublishFailed     atomic.Int64
}

// Snapshot is the point-in-time value of Stats, safe to serialize.
type Snapshot struct {
	Received         int64 `json:"received"`
	Enqueued         int64 `json:"enqueued"`
	SkippedAllowlist int64 `json:"skipped_allowlist"`
	SkippedFreshness int64 `json:"skipped_freshness"`
	PublishFailed    int64 `json:"publish_failed"`
}

// Snapshot reads all counters without blocking concurrent increments.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Received:         s.Received.Load(),
		Enqueued:         s.Enqueued.Load(),
		SkippedAllowlist: s.SkippedAllowlist.Load(),
		SkippedFreshness: s.SkippedFreshness.Load(),
		PublishFailed:    s.PublishFailed.Load(),
	}
}

var (
	receivedTotal         = promCounter("tarka_ingestion_received_total", "Total Alertmanager alerts received.")
	enqueuedTotal         = promCounter("tarka_ingestion_enqueued_total", "Total alerts enqueued as investigation jobs.")
	skippedAllowlistTotal = promCounter("tarka_ingestion_skipped_allowlist_total", "Total alerts dropped by the alertname allowlist.")
	skippedFreshnessTotal = promCounter("tarka_ingestion_skipped_freshness_total", "Total alerts skipped by the rollout-noisy freshness gate.")
	publishFailedTotal    = promCounter("tarka_ingestion_publish_failed_total", "Total queue publish failures.")
)

func promCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	prometheus.MustRegister(c)
	return c
}
