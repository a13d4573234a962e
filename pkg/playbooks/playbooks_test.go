package playbooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
)

func TestFor_KnownFamilyReturnsRegisteredPlaybook(t *testing.T) {
	p := For(models.FamilyOOMKilled, "Pod")
	assert.Equal(t, models.FamilyOOMKilled, p.Family)
	require.NotNil(t, p.Interpret)
}

func TestFor_UnknownFamilyFallsBackToBaseline(t *testing.T) {
	pod := For(models.Family("totally-unregistered"), "Pod")
	assert.Equal(t, BaselinePodFamily, pod.Family)

	nonPod := For(models.Family("totally-unregistered"), "Node")
	assert.Equal(t, BaselineNonPodFamily, nonPod.Family)
}

func TestInterpret_OOMKilled_UsesFindingsNotInvention(t *testing.T) {
	id := models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"}
	ev := &models.Evidence{}
	findings := []models.Finding{{ModuleID: "container.oom_killed", Summary: "container \"api\" was OOMKilled (exit 137)", Severity: "critical"}}

	p := For(models.FamilyOOMKilled, "Pod")
	enrichment := p.Interpret(id, ev, findings)

	assert.Equal(t, "OOMKilled (exit 137)", enrichment.Label)
	assert.Contains(t, enrichment.Why[0], "OOMKilled")
	require.NotEmpty(t, enrichment.Next)
	assert.Contains(t, enrichment.Next[0], "api-7f9 -n prod")
}

func TestInterpret_NoFindings_NamesTheGap(t *testing.T) {
	id := models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"}
	p := For(models.FamilyCPUThrottle, "Pod")
	enrichment := p.Interpret(id, &models.Evidence{}, nil)
	assert.Equal(t, "CPU throttling", enrichment.Label)
	assert.Contains(t, enrichment.Why[0], "no CPU-throttle finding")
}

func TestAllFamilyConstantsAreRegistered(t *testing.T) {
	families := []models.Family{
		models.FamilyImagePullBackOff, models.FamilyCrashLoopBackOff, models.FamilyOOMKilled,
		models.FamilyCPUThrottle, models.FamilyPodPending, models.FamilyVolumeMount,
		models.FamilyProbeFailing, models.FamilyRBACForbidden, models.FamilyNetworkPolicy,
		models.FamilyDNSResolution, models.FamilyNodeNotReady, models.FamilyNodePressure,
		models.FamilyHPAMaxed, models.FamilyRolloutStuck, models.FamilyJobFailure,
		models.FamilyRestartStorm, models.FamilyAWSEBS, models.FamilyAWSNetwork,
		models.FamilyAWSELB, models.FamilyAWSRDS, models.FamilyAWSECR, models.FamilyHTTP5xx,
		models.FamilyTargetDown, models.FamilyObservabilityPipelineLag,
	}
	for _, f := range families {
		p, ok := registry[f]
		assert.True(t, ok, "family %q has no registered playbook", f)
		assert.Equal(t, f, p.Family)
	}
}
