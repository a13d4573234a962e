// Package services implements the relational-index side of Tarka: the
// `cases`/`runs` upsert the pipeline's completed Investigations persist
// into, the history lookup the scoring engine's noise score consults, and
// the freshness-gate fallback lookup ingestion uses when Redis has no
// marker. There is no ORM here, matching pkg/database: every query is
// plain SQL issued through database/sql against the pooled *sql.DB.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tarkyaio/tarka/pkg/ingestion"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/scoring"
)

// rolloutNoisyRunWindow is the window within which a rollout-noisy
// family's run is updated in place rather than inserted as a new row,
// mirroring the same 1h freshness window ingestion's gate enforces.
const rolloutNoisyRunWindow = time.Hour

// CaseService owns the `cases` and `runs` tables: upserting a completed
// Investigation, listing/filtering cases for the CLI and console, and
// answering the two read paths pkg/pipeline and pkg/ingestion depend on
// through narrow function-typed interfaces (scoring.History, the
// freshness-gate fallback) so neither package imports this one directly.
type CaseService struct {
	db *sql.DB
}

// NewCaseService builds a CaseService over a ready connection pool.
func NewCaseService(db *sql.DB) *CaseService {
	return &CaseService{db: db}
}

// PersistInvestigation upserts the case row for inv.Identity/inv.Family and
// writes its run, returning the stable case_id and the run_id the caller
// should hand to pkg/artifact for the x-case-id/x-run-id object headers.
//
// For rollout-noisy alert families, an existing run within
// rolloutNoisyRunWindow is overwritten in place (UPDATE) rather than
// appended (INSERT) — spec.md's "at most one Run per (workload,container)
// per 1h freshness window" invariant. All other families always append a
// new run: Cases accumulate Runs over time, and the latest run is
// canonical for display.
func (s *CaseService) PersistInvestigation(ctx context.Context, inv *models.Investigation) (caseID, runID string, err error) {
	caseID, err = s.EnsureCase(ctx, inv)
	if err != nil {
		return "", "", err
	}
	runID, err = s.PersistRun(ctx, caseID, inv)
	if err != nil {
		return "", "", err
	}
	return caseID, runID, nil
}

// EnsureCase upserts the case row for inv.Identity/inv.Family and returns
// its stable id, without touching the runs table. Split out from
// PersistInvestigation so a caller that needs the case_id before rendering
// the artifact's x-case-id header (pkg/artifact.Store.Put) can call this
// first and PersistRun afterward, once the artifact keys are known.
func (s *CaseService) EnsureCase(ctx context.Context, inv *models.Investigation) (string, error) {
	identityJSON, err := json.Marshal(inv.Identity)
	if err != nil {
		return "", fmt.Errorf("marshal identity: %w", err)
	}
	identityKey := ingestion.IdentityKey(inv.Identity)

	var caseID string
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO cases (id, fingerprint, alert_name, family, identity, identity_key, classification, impact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (identity_key, family) WHERE deleted_at IS NULL DO UPDATE SET
			fingerprint    = EXCLUDED.fingerprint,
			alert_name     = EXCLUDED.alert_name,
			identity       = EXCLUDED.identity,
			classification = EXCLUDED.classification,
			impact         = EXCLUDED.impact,
			updated_at     = now()
		RETURNING id`,
		uuid.NewString(), inv.Alert.Fingerprint, inv.Alert.AlertName, string(inv.Family), identityJSON, identityKey,
		inv.Analysis.Classification, inv.Analysis.Impact,
	)
	if err := row.Scan(&caseID); err != nil {
		return "", fmt.Errorf("upsert case: %w", err)
	}
	return caseID, nil
}

// PersistRun writes inv's run row under caseID (overwriting the latest run
// in place for rollout-noisy families within the freshness window, else
// appending) and updates the case's latest_run_id pointer. Call EnsureCase
// first; PersistRun assumes the case row already exists.
func (s *CaseService) PersistRun(ctx context.Context, caseID string, inv *models.Investigation) (runID string, err error) {
	analysisJSON, err := json.Marshal(inv.Analysis)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ingestion.IsRolloutNoisy(inv.Alert.AlertName) {
		runID, err = s.overwriteOrInsertRun(ctx, tx, caseID, inv, analysisJSON)
	} else {
		runID, err = s.insertRun(ctx, tx, caseID, inv, analysisJSON)
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE cases SET latest_run_id = $1, updated_at = now() WHERE id = $2`, runID, caseID); err != nil {
		return "", fmt.Errorf("update latest_run_id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

func (s *CaseService) insertRun(ctx context.Context, tx *sql.Tx, caseID string, inv *models.Investigation, analysisJSON []byte) (string, error) {
	runID := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, case_id, job_id, analysis, report_markdown, report_json, artifact_key_md, artifact_key_json, llm_status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		runID, caseID, inv.JobID, analysisJSON, inv.ReportMarkdown, inv.ReportJSON,
		nullableString(inv.ArtifactKeyMD), nullableString(inv.ArtifactKeyJSON), nullableString(inv.LLMStatus),
		inv.StartedAt, inv.CompletedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// overwriteOrInsertRun updates the most recent run for caseID in place when
// it completed within rolloutNoisyRunWindow; otherwise it inserts a new run
// the same way insertRun does. This is the only place Tarka ever mutates a
// run row after it was written.
func (s *CaseService) overwriteOrInsertRun(ctx context.Context, tx *sql.Tx, caseID string, inv *models.Investigation, analysisJSON []byte) (string, error) {
	var existingID string
	var completedAt time.Time
	err := tx.QueryRowContext(ctx, `
		SELECT id, completed_at FROM runs WHERE case_id = $1 ORDER BY completed_at DESC LIMIT 1`,
		caseID,
	).Scan(&existingID, &completedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.insertRun(ctx, tx, caseID, inv, analysisJSON)
	case err != nil:
		return "", fmt.Errorf("lookup latest run: %w", err)
	}

	if time.Since(completedAt) >= rolloutNoisyRunWindow {
		return s.insertRun(ctx, tx, caseID, inv, analysisJSON)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET job_id = $1, analysis = $2, report_markdown = $3, report_json = $4,
			artifact_key_md = $5, artifact_key_json = $6, llm_status = $7, started_at = $8, completed_at = $9
		WHERE id = $10`,
		inv.JobID, analysisJSON, inv.ReportMarkdown, inv.ReportJSON,
		nullableString(inv.ArtifactKeyMD), nullableString(inv.ArtifactKeyJSON), nullableString(inv.LLMStatus),
		inv.StartedAt, inv.CompletedAt, existingID,
	)
	if err != nil {
		return "", fmt.Errorf("overwrite run: %w", err)
	}
	return existingID, nil
}

// History implements pipeline.HistoryLookup: the noise score's recurrence
// signal, counting runs for this (identity, family) within a 7-day
// lookback. Returning an error here only degrades scoring (pkg/pipeline
// logs and continues with a zero-value History) — it never fails a run.
func (s *CaseService) History(ctx context.Context, identity models.Identity, family models.Family) (scoring.History, error) {
	identityKey := ingestion.IdentityKey(identity)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM runs r
		JOIN cases c ON c.id = r.case_id
		WHERE c.identity_key = $1 AND c.family = $2 AND r.completed_at >= now() - interval '7 days'`,
		identityKey, string(family),
	).Scan(&count)
	if err != nil {
		return scoring.History{}, fmt.Errorf("query recurrence: %w", err)
	}
	return scoring.History{RecentRunCount: count}, nil
}

// LastRunTime implements ingestion.LastRunLookup: the Postgres fallback
// path the freshness gate uses when Redis has no cached marker (cold
// cache, or Redis itself unavailable).
func (s *CaseService) LastRunTime(ctx context.Context, identityKey string, family models.Family) (time.Time, bool, error) {
	var completedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT r.completed_at FROM runs r
		JOIN cases c ON c.id = r.case_id
		WHERE c.identity_key = $1 AND c.family = $2
		ORDER BY r.completed_at DESC LIMIT 1`,
		identityKey, string(family),
	).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last run: %w", err)
	}
	return completedAt, true, nil
}

// ListCases returns a paginated, filtered case listing for the CLI's
// `list-alerts` subcommand and the read-only console.
func (s *CaseService) ListCases(ctx context.Context, filters models.CaseFilters) (*models.CaseListResponse, error) {
	where := "WHERE deleted_at IS NULL"
	args := []any{}
	argN := 1
	add := func(clause string, v any) {
		where += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, v)
		argN++
	}
	if filters.AlertName != "" {
		add("alert_name =", filters.AlertName)
	}
	if filters.Family != "" {
		add("family =", filters.Family)
	}
	if filters.Classification != "" {
		add("classification =", filters.Classification)
	}
	if filters.Since != nil {
		add("created_at >=", *filters.Since)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM cases "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, fingerprint, alert_name, family, identity, classification, impact, coalesce(latest_run_id::text, ''), created_at, updated_at
		FROM cases %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, argN, argN+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		var identityJSON []byte
		if err := rows.Scan(&c.ID, &c.Fingerprint, &c.AlertName, &c.Family, &identityJSON, &c.Classification, &c.Impact, &c.LatestRunID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		_ = json.Unmarshal(identityJSON, &c.Identity)
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.CaseListResponse{Cases: cases, TotalCount: total, Limit: limit, Offset: offset}, nil
}

// GetCase fetches one case by id.
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	var c models.Case
	var identityJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, alert_name, family, identity, classification, impact, coalesce(latest_run_id::text, ''), created_at, updated_at
		FROM cases WHERE id = $1 AND deleted_at IS NULL`, caseID,
	).Scan(&c.ID, &c.Fingerprint, &c.AlertName, &c.Family, &identityJSON, &c.Classification, &c.Impact, &c.LatestRunID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	_ = json.Unmarshal(identityJSON, &c.Identity)
	return &c, nil
}

// RunRecord is one persisted run, reconstituted from the `runs` table.
type RunRecord struct {
	ID              string
	CaseID          string
	JobID           string
	Analysis        models.Analysis
	ReportMarkdown  string
	ReportJSON      string
	ArtifactKeyMD   string
	ArtifactKeyJSON string
	LLMStatus       string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// GetLatestRun returns the most recently completed run for a case — "the
// latest run is canonical for display" per spec.md's Case/Run lifecycle.
func (s *CaseService) GetLatestRun(ctx context.Context, caseID string) (*RunRecord, error) {
	var r RunRecord
	var analysisJSON []byte
	var artifactMD, artifactJSON, llmStatus sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, job_id, analysis, report_markdown, report_json, artifact_key_md, artifact_key_json, llm_status, started_at, completed_at
		FROM runs WHERE case_id = $1 ORDER BY completed_at DESC LIMIT 1`, caseID,
	).Scan(&r.ID, &r.CaseID, &r.JobID, &analysisJSON, &r.ReportMarkdown, &r.ReportJSON, &artifactMD, &artifactJSON, &llmStatus, &r.StartedAt, &r.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	_ = json.Unmarshal(analysisJSON, &r.Analysis)
	r.ArtifactKeyMD = artifactMD.String
	r.ArtifactKeyJSON = artifactJSON.String
	r.LLMStatus = llmStatus.String
	return &r, nil
}

// SoftDeleteOlderThan marks cases (and, by cascade at read time, their
// latest-run linkage) past the retention window as deleted, implementing
// pkg/retention's cleanup loop. Runs themselves are left intact — only
// cases are hidden from listing, matching spec.md §6's case/run split
// (the relational index, not the artifact store, owns retention here).
func (s *CaseService) SoftDeleteOlderThan(ctx context.Context, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET deleted_at = now()
		WHERE deleted_at IS NULL AND updated_at < now() - ($1 || ' days')::interval`, days,
	)
	if err != nil {
		return 0, fmt.Errorf("soft delete old cases: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
