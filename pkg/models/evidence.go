package models

import "time"

// SlotStatus is the availability marker every evidence slot carries. A slot
// is never silently empty — absence of data is always distinguished from
// data that could not be obtained, and why.
type SlotStatus string

const (
	SlotOK          SlotStatus = "ok"
	SlotEmpty       SlotStatus = "empty"       // queried successfully, nothing came back
	SlotUnavailable SlotStatus = "unavailable" // could not be queried; Reason explains why
)

// K8sContextSlot holds the resolved Kubernetes object graph for the
// investigation's identity: the target object itself plus its owner chain
// and any events attached to it.
type K8sContextSlot struct {
	Status          SlotStatus        `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	ObjectYAML      string            `json:"object_yaml,omitempty"`
	OwnerChain      []OwnerRef        `json:"owner_chain,omitempty"`
	Events          []K8sEvent        `json:"events,omitempty"`
	NodeName        string            `json:"node_name,omitempty"`
	Phase           string            `json:"phase,omitempty"` // Pod phase, e.g. "Running", "Pending", "Failed"
	Conditions      []K8sCondition    `json:"conditions,omitempty"`
	ContainerStates []ContainerState  `json:"container_states,omitempty"`
	JobStatus       *JobStatusInfo    `json:"job_status,omitempty"`
	FetchedAt       time.Time         `json:"fetched_at,omitempty"`
}

// JobStatusInfo summarizes a batch/v1 Job's status and spec, the shape the
// job_failed family's feature extraction reads attempts/backoff_limit/
// exit_reason from when the Job's pod has already been TTL-deleted.
type JobStatusInfo struct {
	Active        int32  `json:"active"`
	Succeeded     int32  `json:"succeeded"`
	Failed        int32  `json:"failed"`
	BackoffLimit  int32  `json:"backoff_limit"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// K8sCondition mirrors a status.conditions entry (PodScheduled, Ready,
// ContainersReady, Initialized, or a Node/Deployment condition type).
type K8sCondition struct {
	Type    string `json:"type"`
	Status  string `json:"status"` // "True", "False", "Unknown"
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ContainerState summarizes one container's current and last-terminated
// state, the shape diagnostic modules need to detect CrashLoopBackOff,
// ImagePullBackOff, and OOMKilled without re-parsing ObjectYAML.
type ContainerState struct {
	Name           string `json:"name"`
	Ready          bool   `json:"ready"`
	RestartCount   int32  `json:"restart_count"`
	WaitingReason  string `json:"waiting_reason,omitempty"`  // e.g. "CrashLoopBackOff", "ImagePullBackOff"
	WaitingMessage string `json:"waiting_message,omitempty"`
	LastTermReason string `json:"last_term_reason,omitempty"` // e.g. "OOMKilled", "Error"
	LastExitCode   int32  `json:"last_exit_code,omitempty"`
}

// OwnerRef is one hop in a Kubernetes ownerReference chain.
type OwnerRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// K8sEvent mirrors a core/v1 Event relevant to the identity.
type K8sEvent struct {
	Reason         string    `json:"reason"`
	Message        string    `json:"message"`
	Type           string    `json:"type"` // "Normal" or "Warning"
	Count          int32     `json:"count"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

// MetricsSlot holds the time-windowed metric samples collected for the
// identity from the metrics provider.
type MetricsSlot struct {
	Status    SlotStatus         `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Series    []MetricSeries     `json:"series,omitempty"`
	FetchedAt time.Time          `json:"fetched_at,omitempty"`
}

// MetricSeries is one named metric's sampled points over the investigation
// window (e.g. "container_memory_working_set_bytes").
type MetricSeries struct {
	Name    string        `json:"name"`
	Labels  map[string]string `json:"labels,omitempty"`
	Samples []MetricPoint `json:"samples"`
}

// MetricPoint is a single (timestamp, value) sample.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// LogsSlot holds raw log lines plus the deterministic parser's output.
// "empty" means the logs backend was reachable and returned zero lines for
// the window (e.g. a TTL-deleted pod with no retained logs); "unavailable"
// means the backend itself could not be reached or queried.
type LogsSlot struct {
	Status         SlotStatus      `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	RawLineCount   int             `json:"raw_line_count"`
	ParsedPatterns []ParsedPattern `json:"parsed_patterns,omitempty"`
	FetchedAt      time.Time       `json:"fetched_at,omitempty"`
}

// ParsedPattern is one deduplicated, representative line extracted by the
// deterministic log parser for a given pattern kind.
type ParsedPattern struct {
	Kind            string `json:"kind"` // error_prefix, fatal_prefix, exception, stack_frame, oom, connection, timeout, http_status_5xx
	RepresentativeLine string `json:"representative_line"`
	Count           int    `json:"count"`
}

// AWSSlot holds CloudTrail/EC2 evidence for AWS-resident identities.
type AWSSlot struct {
	Status        SlotStatus      `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Events        []AWSEvent      `json:"events,omitempty"`
	ResourceState string          `json:"resource_state,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at,omitempty"`
}

// AWSEvent is one CloudTrail LookupEvents result entry.
type AWSEvent struct {
	EventName string    `json:"event_name"`
	EventTime time.Time `json:"event_time"`
	Username  string    `json:"username,omitempty"`
}

// ChangeSlot holds recent deploy/config change correlation evidence (GitHub
// commits, workflow runs, and their logs) for the identity's owning
// repository, when one can be inferred.
type ChangeSlot struct {
	Status  SlotStatus     `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Commits []ChangeCommit `json:"commits,omitempty"`
	Runs    []WorkflowRun  `json:"runs,omitempty"`
	FetchedAt time.Time    `json:"fetched_at,omitempty"`
}

// ChangeCommit is one recent commit plausibly correlated with the alert.
type ChangeCommit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowRun is one recent CI workflow run plausibly correlated with the alert.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Conclusion string    `json:"conclusion"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Evidence is the full evidence bundle accumulated for one investigation.
// Every slot starts unpopulated (Status == "" treated as not-yet-attempted)
// and is written exactly once per pipeline run; collectors never overwrite a
// populated slot except on an explicit refresh.
type Evidence struct {
	K8s     K8sContextSlot `json:"k8s"`
	Metrics MetricsSlot    `json:"metrics"`
	Logs    LogsSlot       `json:"logs"`
	AWS     AWSSlot        `json:"aws"`
	Change  ChangeSlot     `json:"change"`
}
