package models

import "time"

// JobStatus is the lifecycle state of an InvestigationJob as it moves
// through the durable queue and worker pool.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobTimedOut   JobStatus = "timed_out"
	JobDeadLetter JobStatus = "dead_letter"
)

// InvestigationJob is one unit of queued work: an alert instance to be run
// through the pipeline. It is the row claimed by workers via
// `SELECT ... FOR UPDATE SKIP LOCKED`.
type InvestigationJob struct {
	ID                string     `json:"id"`
	Alert             AlertInstance `json:"alert"`
	Identity          Identity   `json:"identity"`
	Family            Family     `json:"family"`
	IdentityKey       string     `json:"identity_key"`
	DedupBucket       int64      `json:"dedup_bucket"`
	Status            JobStatus  `json:"status"`
	Attempts          int        `json:"attempts"`
	EnqueuedAt        time.Time  `json:"enqueued_at"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty"`
	ClaimedBy         string     `json:"claimed_by,omitempty"`
	LastHeartbeatAt   *time.Time `json:"last_heartbeat_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// Finding is one concrete observation produced by a diagnostic module: a
// named symptom plus the evidence that supports it.
type Finding struct {
	ModuleID    string   `json:"module_id"`
	Summary     string   `json:"summary"`
	Severity    string   `json:"severity"` // "info", "warning", "critical"
	Evidence    []string `json:"evidence"` // human-readable evidence references, e.g. "k8s.events[2]"
}

// Hypothesis is one candidate explanation surfaced by a playbook's
// interpreter, ranked implicitly by the order the playbook emits them in.
type Hypothesis struct {
	Statement  string   `json:"statement"`
	Confidence int      `json:"confidence"` // 0-100
	Supporting []string `json:"supporting"` // Finding summaries or evidence references
}

// Features holds family-specific structured facts extracted from evidence,
// kept separate from narrative Findings so a consumer reads one fixed shape
// per family instead of parsing prose. Present on every Analysis even when
// no family-specific extractor applies (its sub-fields are then all nil) —
// spec's "present or explicitly null, never elided" rule applies to the
// composite's top-level fields, not to every family's optional payload.
type Features struct {
	JobMetrics *JobMetrics `json:"job_metrics,omitempty"`
}

// JobMetrics is the job_failed family's feature set: how many times the Job
// retried, its configured backoff_limit, why it ultimately failed, and how
// many error-pattern log lines were seen across whichever pod(s) ran it.
type JobMetrics struct {
	Attempts     int    `json:"attempts"`
	BackoffLimit int    `json:"backoff_limit"`
	ExitReason   string `json:"exit_reason,omitempty"`
	ErrorCount   int    `json:"error_count"`
}

// Analysis is the scored, classified conclusion of a completed investigation.
type Analysis struct {
	Impact         int      `json:"impact"`     // 0-100
	Confidence     int      `json:"confidence"` // 0-100
	Noise          int      `json:"noise"`       // 0-100
	Classification string   `json:"classification"` // actionable | informational | noisy | artifact
	Features       Features `json:"features"`
	Findings       []Finding    `json:"findings"`
	Hypotheses     []Hypothesis `json:"hypotheses"`
	Blocked        []string `json:"blocked,omitempty"` // Blocked Scenario identifiers encountered (A-D)
	NextSteps      []string `json:"next_steps,omitempty"`
}

// Investigation is the complete, persisted result of running one
// InvestigationJob through the pipeline: the alert, identity, family,
// evidence bundle, analysis, and rendered report.
type Investigation struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	Alert          AlertInstance `json:"alert"`
	Identity       Identity  `json:"identity"`
	Family         Family    `json:"family"`
	Evidence       Evidence  `json:"evidence"`
	Analysis       Analysis  `json:"analysis"`
	ReportMarkdown string    `json:"report_markdown"`
	ReportJSON     string    `json:"report_json"`
	ArtifactKeyMD  string    `json:"artifact_key_md,omitempty"`
	ArtifactKeyJSON string   `json:"artifact_key_json,omitempty"`
	LLMStatus      string    `json:"llm_status,omitempty"` // "", "ok", "skipped", "error:<reason>"
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}
