// Package queue implements the durable job queue between ingestion and the
// pipeline: a Postgres-backed table (`investigation_jobs`) claimed with
// `SELECT ... FOR UPDATE SKIP LOCKED`, a bounded worker pool with heartbeat-
// based orphan recovery, and exponential-backoff retry up to a configured
// max-attempts before a job is parked in the dead_letter state. This plays
// the role spec.md §6 describes for a NATS JetStream durable consumer
// (ack/retry/DLQ, publish-time dedup window), adapted to the teacher's own
// claim/heartbeat/orphan-recovery queue shape over Postgres rather than
// introducing a message broker the example pack never uses.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// ErrNoJobsAvailable indicates no queued job was ready to claim.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Executor runs one InvestigationJob end to end: collecting evidence,
// scoring, rendering, and persisting the result. Implemented by the
// caller (cmd/tarka) so pkg/queue stays free of pipeline/artifact/services
// imports and is testable with a fake.
type Executor interface {
	Execute(ctx context.Context, job models.InvestigationJob) error
}

// PoolHealth summarizes the worker pool for GET /healthz and the CLI.
type PoolHealth struct {
	Healthy          bool      `json:"healthy"`
	DBReachable      bool      `json:"db_reachable"`
	DBError          string    `json:"db_error,omitempty"`
	WorkerCount      int       `json:"worker_count"`
	ActiveJobs       int       `json:"active_jobs"`
	QueueDepth       int       `json:"queue_depth"`
	LastOrphanScan   time.Time `json:"last_orphan_scan"`
	OrphansRecovered int       `json:"orphans_recovered"`
}
