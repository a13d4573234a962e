package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
)

func sampleInvestigation() *models.Investigation {
	return &models.Investigation{
		ID:    "inv-1",
		Alert: models.AlertInstance{AlertName: "KubeContainerOOMKilled", Labels: map[string]string{"namespace": "prod", "pod": "api-7f9"}},
		Identity: models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"},
		Evidence: models.Evidence{
			K8s: models.K8sContextSlot{Status: models.SlotOK, Phase: "Running"},
			Logs: models.LogsSlot{Status: models.SlotEmpty},
		},
		Analysis: models.Analysis{
			Impact: 80, Confidence: 60, Noise: 10, Classification: "actionable",
			Findings: []models.Finding{{ModuleID: "container.oom_killed", Summary: "OOMKilled (exit 137)", Severity: "critical"}},
			NextSteps: []string{"kubectl logs api-7f9 -n prod --previous", "check the dashboard"},
		},
	}
}

func TestMarkdown_IsDeterministic(t *testing.T) {
	inv := sampleInvestigation()
	a := Markdown(inv)
	b := Markdown(inv)
	assert.Equal(t, a, b)
}

func TestMarkdown_SectionOrderAndContent(t *testing.T) {
	inv := sampleInvestigation()
	out := Markdown(inv)

	decisionIdx := indexOf(t, out, "## Decision")
	identityIdx := indexOf(t, out, "## Identity")
	evidenceIdx := indexOf(t, out, "## Evidence")
	findingsIdx := indexOf(t, out, "## Findings")
	featuresIdx := indexOf(t, out, "## Features")
	nextIdx := indexOf(t, out, "## Next Steps")
	scoresIdx := indexOf(t, out, "## Scores")

	assert.Less(t, decisionIdx, identityIdx)
	assert.Less(t, identityIdx, evidenceIdx)
	assert.Less(t, evidenceIdx, findingsIdx)
	assert.Less(t, findingsIdx, featuresIdx)
	assert.Less(t, featuresIdx, nextIdx)
	assert.Less(t, nextIdx, scoresIdx)

	assert.Contains(t, out, "logs = empty")
	assert.Contains(t, out, "```\nkubectl logs api-7f9 -n prod --previous\n```")
	assert.Contains(t, out, "- check the dashboard")
}

func TestMarkdown_JobMetricsFeaturesRendered(t *testing.T) {
	inv := sampleInvestigation()
	inv.Analysis.Features = models.Features{JobMetrics: &models.JobMetrics{
		Attempts: 3, BackoffLimit: 4, ExitReason: "BackoffLimitExceeded", ErrorCount: 7,
	}}
	out := Markdown(inv)
	assert.Contains(t, out, "job_metrics.attempts: 3")
	assert.Contains(t, out, "job_metrics.backoff_limit: 4")
	assert.Contains(t, out, "job_metrics.exit_reason: BackoffLimitExceeded")
	assert.Contains(t, out, "job_metrics.error_count: 7")
}

func TestMarkdown_IdentityMissingLabelsDecision(t *testing.T) {
	inv := sampleInvestigation()
	inv.Identity = models.Identity{Status: models.IdentityMissing, Reason: "no namespace/pod labels"}
	out := Markdown(inv)
	assert.Contains(t, out, "target identity unknown")
	assert.Contains(t, out, "no namespace/pod labels")
}

func TestJSON_RoundTripsAndIsDeterministic(t *testing.T) {
	inv := sampleInvestigation()
	a, err := JSON(inv)
	require.NoError(t, err)
	b, err := JSON(inv)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "\"classification\": \"actionable\"")
}

func indexOf(t *testing.T, s, substr string) int {
	t.Helper()
	idx := strings.Index(s, substr)
	require.GreaterOrEqual(t, idx, 0, "expected %q to contain %q", s, substr)
	return idx
}
