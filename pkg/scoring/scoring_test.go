package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarkyaio/tarka/pkg/models"
)

func TestScore_BlockedScenarioCapsAndForcesArtifact(t *testing.T) {
	identity := models.Identity{Status: models.IdentityMissing, Reason: "no namespace/pod labels"}
	analysis := Score(identity, models.FamilyUnknownPod, &models.Evidence{}, nil, "critical", History{}, []string{"A"}, DefaultThresholds)

	assert.Equal(t, "artifact", analysis.Classification)
	assert.LessOrEqual(t, analysis.Impact, 25)
	assert.LessOrEqual(t, analysis.Confidence, 25)
}

func TestScore_CrashLoopOOMHighImpact(t *testing.T) {
	identity := models.Identity{Status: models.IdentityOK, Kind: "Pod"}
	ev := &models.Evidence{
		K8s: models.K8sContextSlot{Status: models.SlotOK, ContainerStates: []models.ContainerState{{RestartCount: 15}}},
		Metrics: models.MetricsSlot{Status: models.SlotOK},
		Logs:    models.LogsSlot{Status: models.SlotOK},
	}
	findings := []models.Finding{
		{ModuleID: "container.oom_killed", Severity: "critical"},
		{ModuleID: "container.crash_loop_backoff", Severity: "critical"},
	}
	analysis := Score(identity, models.FamilyCrashLoopBackOff, ev, findings, "critical", History{}, nil, DefaultThresholds)

	assert.GreaterOrEqual(t, analysis.Impact, 70)
	assert.Equal(t, "actionable", analysis.Classification)
}

func TestScore_HighRecurrenceNoFindingsIsNoisy(t *testing.T) {
	identity := models.Identity{Status: models.IdentityOK, Kind: "Pod"}
	analysis := Score(identity, models.FamilyUnknownPod, &models.Evidence{}, nil, "info", History{RecentRunCount: 12}, nil, DefaultThresholds)
	assert.Equal(t, "noisy", analysis.Classification)
}

func TestScore_JobFailureExtractsJobMetrics(t *testing.T) {
	identity := models.Identity{Status: models.IdentityOK, Kind: "Job"}
	ev := &models.Evidence{
		K8s: models.K8sContextSlot{
			Status: models.SlotOK,
			JobStatus: &models.JobStatusInfo{
				Failed: 3, BackoffLimit: 4, FailureReason: "BackoffLimitExceeded",
			},
		},
		Logs: models.LogsSlot{
			Status: models.SlotOK,
			ParsedPatterns: []models.ParsedPattern{
				{Kind: "error_prefix", Count: 2, RepresentativeLine: "ERROR: connection refused"},
				{Kind: "fatal_prefix", Count: 1, RepresentativeLine: "FATAL: could not connect to database"},
			},
		},
	}
	analysis := Score(identity, models.FamilyJobFailure, ev, nil, "critical", History{}, nil, DefaultThresholds)

	jm := analysis.Features.JobMetrics
	assert.NotNil(t, jm)
	assert.Equal(t, 3, jm.Attempts)
	assert.Equal(t, 4, jm.BackoffLimit)
	assert.Equal(t, "BackoffLimitExceeded", jm.ExitReason)
	assert.Equal(t, 3, jm.ErrorCount)
}

func TestScore_NonJobFamilyHasNilJobMetrics(t *testing.T) {
	identity := models.Identity{Status: models.IdentityOK, Kind: "Pod"}
	analysis := Score(identity, models.FamilyOOMKilled, &models.Evidence{}, nil, "critical", History{}, nil, DefaultThresholds)
	assert.Nil(t, analysis.Features.JobMetrics)
}

func TestScore_ScoresAlwaysInRange(t *testing.T) {
	identity := models.Identity{Status: models.IdentityOK, Kind: "Node"}
	findings := make([]models.Finding, 20)
	for i := range findings {
		findings[i] = models.Finding{ModuleID: "x", Severity: "critical"}
	}
	analysis := Score(identity, models.FamilyNodeNotReady, &models.Evidence{}, findings, "critical", History{RecentRunCount: 50}, nil, DefaultThresholds)
	assert.GreaterOrEqual(t, analysis.Impact, 0)
	assert.LessOrEqual(t, analysis.Impact, 100)
	assert.GreaterOrEqual(t, analysis.Confidence, 0)
	assert.LessOrEqual(t, analysis.Confidence, 100)
	assert.GreaterOrEqual(t, analysis.Noise, 0)
	assert.LessOrEqual(t, analysis.Noise, 100)
}
