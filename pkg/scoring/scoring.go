// Package scoring computes the three 0-100 integer scores (impact,
// confidence, noise) and the resulting classification for a completed
// investigation. Every computation here is pure and deterministic: the
// same evidence/findings/history input always yields the same scores.
package scoring

import (
	"github.com/tarkyaio/tarka/pkg/models"
)

// Thresholds controls the classification tie-breaks; exposed so operators
// can tune them without a code change, with the defaults matching what
// spec.md's seed scenarios expect.
type Thresholds struct {
	ActionableImpact int // impact >= this AND noise below NoisyThreshold => actionable
	NoisyThreshold   int // noise >= this => noisy (unless blocked)
}

// DefaultThresholds matches the seed-scenario expectations: CrashLoopBackOff
// with high restart count and full evidence should score impact >= 70, and
// the identity-missing scenario should cap both impact and confidence at 25.
var DefaultThresholds = Thresholds{ActionableImpact: 50, NoisyThreshold: 70}

// History is the index-backed recurrence signal the noise score consults.
// RecentRunCount is how many runs exist for this (identity, family) within
// the noise-lookback window the index maintains; it is supplied by the
// caller (pkg/services), not queried here, keeping this package free of I/O.
type History struct {
	RecentRunCount int
}

// Score computes impact/confidence/noise and the resulting classification.
// blocked lists the Blocked Scenario identifiers (A-D) that fired during
// this investigation; a non-empty blocked list forces classification to
// "artifact" regardless of the raw scores, per the honesty contract's
// tie-break rule. family selects any family-specific Features extraction
// (e.g. job_failed's job_metrics); families with none get a zero Features.
func Score(identity models.Identity, family models.Family, ev *models.Evidence, findings []models.Finding, severity string, hist History, blocked []string, th Thresholds) models.Analysis {
	impact := computeImpact(identity, ev, findings, severity)
	confidence := computeConfidence(ev, findings)
	noise := computeNoise(hist, findings)

	if len(blocked) > 0 {
		if impact > 25 {
			impact = 25
		}
		if confidence > 25 {
			confidence = 25
		}
	}

	classification := classify(impact, noise, blocked, th)

	return models.Analysis{
		Impact:         impact,
		Confidence:     confidence,
		Noise:          noise,
		Classification: classification,
		Features:       computeFeatures(family, ev),
		Findings:       findings,
		Blocked:        blocked,
	}
}

// computeFeatures extracts the family-specific structured feature payload
// from evidence. Only job_failed has one today; other families get a zero
// Features value (its pointer fields are nil, which is the honest "no
// family-specific feature set" signal rather than an invented one).
func computeFeatures(family models.Family, ev *models.Evidence) models.Features {
	if family != models.FamilyJobFailure {
		return models.Features{}
	}
	return models.Features{JobMetrics: jobMetrics(ev)}
}

// jobMetrics reads the Job's attempts/backoff_limit/failure reason from
// K8sContextSlot.JobStatus (populated by K8sClient's Job-kind fetch) and
// the error-pattern count from the parsed logs — the combination scenario
// 6 names, since a TTL-deleted pod's log lines are all the evidence left
// of what actually happened inside an attempt.
func jobMetrics(ev *models.Evidence) *models.JobMetrics {
	jm := &models.JobMetrics{}

	if ev.K8s.Status == models.SlotOK && ev.K8s.JobStatus != nil {
		jm.Attempts = int(ev.K8s.JobStatus.Failed) + int(ev.K8s.JobStatus.Succeeded)
		jm.BackoffLimit = int(ev.K8s.JobStatus.BackoffLimit)
		jm.ExitReason = ev.K8s.JobStatus.FailureReason
	}

	if ev.Logs.Status == models.SlotOK {
		for _, p := range ev.Logs.ParsedPatterns {
			switch p.Kind {
			case "error_prefix", "fatal_prefix", "exception":
				jm.ErrorCount += p.Count
				if jm.ExitReason == "" && p.Kind == "fatal_prefix" {
					jm.ExitReason = p.RepresentativeLine
				}
			}
		}
	}

	return jm
}

func classify(impact, noise int, blocked []string, th Thresholds) string {
	if len(blocked) > 0 {
		return "artifact"
	}
	if noise >= th.NoisyThreshold {
		return "noisy"
	}
	if impact >= th.ActionableImpact {
		return "actionable"
	}
	return "informational"
}

// computeImpact blends scope (how many objects are affected, inferred from
// identity kind), severity label, and proxy signals from findings (5xx
// rate, restart storms, OOM) into a single 0-100 score.
func computeImpact(identity models.Identity, ev *models.Evidence, findings []models.Finding, severity string) int {
	score := 0

	switch identity.Kind {
	case "Node":
		score += 40 // node-scoped failures have cluster-wide blast radius potential
	case "Pod":
		score += 15
	default:
		score += 25 // workload-scoped (Deployment, Job, ...): multiple replicas
	}

	switch severity {
	case "critical":
		score += 30
	case "warning":
		score += 15
	case "page":
		score += 30
	}

	for _, f := range findings {
		switch f.Severity {
		case "critical":
			score += 10
		case "warning":
			score += 5
		}
	}

	if ev.K8s.Status == models.SlotOK {
		for _, cs := range ev.K8s.ContainerStates {
			if cs.RestartCount >= 10 {
				score += 10
				break
			}
		}
	}

	return clamp(score)
}

// computeConfidence rewards evidence completeness (how many slots
// successfully returned data) and diagnostic coverage (did at least one
// module fire to explain the family).
func computeConfidence(ev *models.Evidence, findings []models.Finding) int {
	score := 0
	slots := []models.SlotStatus{ev.K8s.Status, ev.Metrics.Status, ev.Logs.Status, ev.AWS.Status, ev.Change.Status}
	for _, s := range slots {
		switch s {
		case models.SlotOK:
			score += 15
		case models.SlotEmpty:
			score += 8 // queried successfully; absence of data is still informative
		}
	}

	if len(findings) > 0 {
		score += 25
	}
	return clamp(score)
}

// computeNoise rewards historical recurrence (the index's run count for
// this identity/family) and penalizes the absence of any impact proxy.
func computeNoise(hist History, findings []models.Finding) int {
	score := 0
	switch {
	case hist.RecentRunCount >= 10:
		score += 60
	case hist.RecentRunCount >= 5:
		score += 35
	case hist.RecentRunCount >= 2:
		score += 15
	}

	if len(findings) == 0 {
		score += 30
	}
	return clamp(score)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
