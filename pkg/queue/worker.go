package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/models"
)

// WorkerPool runs cfg.WorkerCount independent polling loops against Store,
// each claiming and executing one job at a time, plus a background orphan-
// recovery scan. Shutdown is graceful: Stop cancels the shared context so
// loops stop claiming new work, then waits (up to
// cfg.GracefulShutdownTimeout) for in-flight executions to finish.
type WorkerPool struct {
	store    *Store
	db       *sql.DB
	cfg      *config.QueueConfig
	executor Executor

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	activeJobs atomic.Int64

	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool builds a WorkerPool over store, executing claimed jobs via
// executor.
func NewWorkerPool(store *Store, db *sql.DB, cfg *config.QueueConfig, executor Executor) *WorkerPool {
	return &WorkerPool{store: store, db: db, cfg: cfg, executor: executor}
}

// Start launches the worker loops and the orphan-detection loop. Safe to
// call once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func(id string) {
			defer p.wg.Done()
			p.runLoop(runCtx, id)
		}(workerID)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanLoop(runCtx)
	}()

	slog.Info("queue: worker pool started", "worker_count", p.cfg.WorkerCount)
}

// Stop cancels the shared context and waits for all loops to exit, up to
// GracefulShutdownTimeout. A worker mid-execution keeps running until its
// current job finishes (or the job's own JobTimeout context expires) —
// Stop does not abort in-flight pipeline runs, it only stops claiming new
// ones.
func (p *WorkerPool) Stop() {
	if p.cancel == nil {
		return
	}
	slog.Info("queue: stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("queue: worker pool stopped cleanly")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		slog.Warn("queue: graceful shutdown timeout elapsed, some jobs may still be in-flight")
	}
}

// runLoop repeatedly claims and processes jobs, sleeping PollInterval (plus
// jitter) between polls when the queue is empty.
func (p *WorkerPool) runLoop(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.store.ClaimNext(ctx, workerID)
		if err == ErrNoJobsAvailable {
			p.sleep(ctx)
			continue
		}
		if err != nil {
			slog.Error("queue: claim failed", "worker_id", workerID, "error", err)
			p.sleep(ctx)
			continue
		}

		p.activeJobs.Add(1)
		p.process(ctx, workerID, job)
		p.activeJobs.Add(-1)
	}
}

// process runs one job under a JobTimeout-bounded context, heartbeating
// periodically, and records the outcome back to the store.
func (p *WorkerPool) process(ctx context.Context, workerID string, job *models.InvestigationJob) {
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		ticker := time.NewTicker(p.cfg.JobTimeout / 4)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				if err := p.store.Heartbeat(ctx, job.ID); err != nil {
					slog.Warn("queue: heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()

	err := p.executor.Execute(jobCtx, *job)
	cancel()
	<-hbDone

	if err != nil {
		slog.Error("queue: job execution failed", "worker_id", workerID, "job_id", job.ID, "attempts", job.Attempts, "error", err)
		if failErr := p.store.Fail(ctx, job.ID, err.Error(), job.Attempts, p.cfg.MaxAttempts); failErr != nil {
			slog.Error("queue: failed to record job failure", "job_id", job.ID, "error", failErr)
		}
		return
	}
	if err := p.store.Complete(ctx, job.ID); err != nil {
		slog.Error("queue: failed to mark job complete", "job_id", job.ID, "error", err)
	}
}

func (p *WorkerPool) sleep(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(p.cfg.PollIntervalJitter) + 1))
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.PollInterval + jitter):
	}
}

// runOrphanLoop periodically recovers jobs whose heartbeat has gone stale —
// the worker that claimed them crashed or was killed without finishing.
func (p *WorkerPool) runOrphanLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.RecoverOrphans(ctx, p.cfg.OrphanThreshold)
			p.mu.Lock()
			p.lastOrphanScan = time.Now()
			if err == nil {
				p.orphansRecovered += n
			}
			p.mu.Unlock()
			if err != nil {
				slog.Error("queue: orphan recovery scan failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("queue: recovered orphaned jobs", "count", n)
			}
		}
	}
}

// Health reports the pool's current state for GET /healthz.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	depth, err := p.store.QueueDepth(ctx)
	dbReachable := err == nil
	var dbErr string
	if err != nil {
		dbErr = err.Error()
	}
	if dbReachable {
		if pingErr := p.db.PingContext(ctx); pingErr != nil {
			dbReachable = false
			dbErr = pingErr.Error()
		}
	}

	p.mu.Lock()
	lastScan := p.lastOrphanScan
	recovered := p.orphansRecovered
	p.mu.Unlock()

	return &PoolHealth{
		Healthy:          dbReachable,
		DBReachable:      dbReachable,
		DBError:          dbErr,
		WorkerCount:      p.cfg.WorkerCount,
		ActiveJobs:       int(p.activeJobs.Load()),
		QueueDepth:       depth,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}
