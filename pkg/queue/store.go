package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// jobPayload is the JSON shape stored in investigation_jobs.alert_data: the
// alert plus the identity/family ingestion already resolved, so a worker
// never has to re-run owner-chain resolution or family classification —
// those are normalize-stage concerns that happened once, at ingestion time.
type jobPayload struct {
	Alert    models.AlertInstance `json:"alert"`
	Identity models.Identity      `json:"identity"`
	Family   models.Family        `json:"family"`
}

// Store is the Postgres-backed durable job queue. Every operation is a
// single statement or a short transaction; there is no in-process buffering,
// so any worker replica sees the same queue state immediately.
type Store struct {
	db *sql.DB
}

// NewStore builds a Store over a ready connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Publish inserts a new job, or does nothing if a job with the same
// (identity_key, family, dedup_bucket) key already exists — the
// publish-time dedup window spec.md §6 describes, implemented as a unique
// index rather than a broker-side window since Tarka's durable queue lives
// in Postgres, not a separate message broker.
func (s *Store) Publish(ctx context.Context, job models.InvestigationJob) error {
	payload, err := json.Marshal(jobPayload{Alert: job.Alert, Identity: job.Identity, Family: job.Family})
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO investigation_jobs (id, fingerprint, alert_name, alert_data, identity_key, family, dedup_bucket, status, available_at, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (identity_key, family, dedup_bucket) DO NOTHING`,
		job.ID, job.Alert.Fingerprint, job.Alert.AlertName, payload, job.IdentityKey, string(job.Family),
		job.DedupBucket, models.JobQueued, job.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest available queued job for
// workerID, using SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers
// (in this process or another replica) never claim the same row twice.
// Returns ErrNoJobsAvailable when the queue is empty.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*models.InvestigationJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		job          models.InvestigationJob
		payloadBytes []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, alert_data, dedup_bucket, attempts, enqueued_at
		FROM investigation_jobs
		WHERE status = $1 AND available_at <= now()
		ORDER BY enqueued_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, models.JobQueued,
	).Scan(&job.ID, &payloadBytes, &job.DedupBucket, &job.Attempts, &job.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	var payload jobPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal job payload: %w", err)
	}
	job.Alert = payload.Alert
	job.Identity = payload.Identity
	job.Family = payload.Family

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE investigation_jobs
		SET status = $1, attempts = attempts + 1, claimed_at = $2, claimed_by = $3, last_heartbeat_at = $2
		WHERE id = $4`,
		models.JobInProgress, now, workerID, job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = models.JobInProgress
	job.ClaimedAt = &now
	job.ClaimedBy = workerID
	job.Attempts++
	return &job, nil
}

// Heartbeat refreshes last_heartbeat_at for an in-progress job, so the
// orphan scanner does not mistake a slow-but-alive job for a crashed one.
func (s *Store) Heartbeat(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE investigation_jobs SET last_heartbeat_at = now() WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return nil
}

// Complete marks a job finished successfully.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE investigation_jobs SET status = $1, completed_at = now(), error = NULL WHERE id = $2`,
		models.JobCompleted, jobID,
	)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Fail records a processing failure. If the job's attempts are still below
// maxAttempts it is requeued with an exponential backoff delay; otherwise
// it is parked in the dead_letter state and never retried again.
func (s *Store) Fail(ctx context.Context, jobID, reason string, attempts, maxAttempts int) error {
	if attempts >= maxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE investigation_jobs SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
			models.JobDeadLetter, reason, jobID,
		)
		if err != nil {
			return fmt.Errorf("dead-letter job %s: %w", jobID, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE investigation_jobs
		SET status = $1, error = $2, claimed_at = NULL, claimed_by = NULL, last_heartbeat_at = NULL, available_at = now() + $3
		WHERE id = $4`,
		models.JobQueued, reason, backoff(attempts), jobID,
	)
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	return nil
}

// RecoverOrphans requeues in-progress jobs whose heartbeat is older than
// threshold — a worker that crashed or was killed mid-run leaves its job
// claimed forever otherwise. Returns the number of jobs recovered.
func (s *Store) RecoverOrphans(ctx context.Context, threshold time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE investigation_jobs
		SET status = $1, claimed_at = NULL, claimed_by = NULL, last_heartbeat_at = NULL, available_at = now()
		WHERE status = $2 AND last_heartbeat_at < now() - $3::interval`,
		models.JobQueued, models.JobInProgress, threshold.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("recover orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// QueueDepth returns the number of jobs currently queued and available.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM investigation_jobs WHERE status = $1 AND available_at <= now()`, models.JobQueued,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// backoff computes an exponential retry delay capped at 5 minutes,
// matching the CSV-configurable backoff schedule spec.md §6 describes for
// the NATS durable consumer, adapted to a formula since Tarka's queue has
// no separate per-consumer backoff-schedule config surface.
func backoff(attempts int) time.Duration {
	d := time.Duration(1<<uint(attempts)) * time.Second
	const maxBackoff = 5 * time.Minute
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
