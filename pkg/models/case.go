package models

import "time"

// Case is the index row summarizing one investigated alert identity over
// time: the relational-index counterpart to a full Investigation, used for
// listing and filtering without loading the full evidence bundle.
type Case struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	AlertName   string    `json:"alert_name"`
	Family      Family    `json:"family"`
	Identity    Identity  `json:"identity"`
	Classification string `json:"classification"`
	Impact      int       `json:"impact"`
	LatestRunID string    `json:"latest_run_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CaseFilters narrows a case listing query.
type CaseFilters struct {
	AlertName      string     `json:"alert_name,omitempty"`
	Family         string     `json:"family,omitempty"`
	Classification string     `json:"classification,omitempty"`
	Since          *time.Time `json:"since,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}

// CaseListResponse is a paginated case listing.
type CaseListResponse struct {
	Cases      []Case `json:"cases"`
	TotalCount int    `json:"total_count"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

// IngestAlertRequest is the Alertmanager webhook payload shape accepted by
// POST /alerts (a subset of Alertmanager's own webhook schema).
type IngestAlertRequest struct {
	Version  string       `json:"version"`
	Receiver string       `json:"receiver"`
	Status   string       `json:"status"`
	Alerts   []WebhookAlert `json:"alerts"`
}

// WebhookAlert is one entry in an Alertmanager webhook's `alerts` array.
type WebhookAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// IngestStats tracks webhook intake outcomes for observability.
type IngestStats struct {
	Received         int64 `json:"received"`
	Enqueued         int64 `json:"enqueued"`
	SkippedAllowlist int64 `json:"skipped_allowlist"`
	SkippedFreshness int64 `json:"skipped_freshness"`
	SkippedResolved  int64 `json:"skipped_resolved"`
}
