package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarkyaio/tarka/pkg/models"
)

func TestResolveIdentity_PodScoped(t *testing.T) {
	labels := map[string]string{"namespace": "prod", "pod": "api-7f9", "cluster": "us-east"}
	id := resolveIdentity(context.Background(), "CPUThrottlingHigh", labels, nil)
	assert.Equal(t, models.IdentityOK, id.Status)
	assert.Equal(t, "Pod", id.Kind)
	assert.Equal(t, "prod", id.Namespace)
	assert.Equal(t, "api-7f9", id.Name)
}

func TestResolveIdentity_MissingLabelsIsBlockedScenarioA(t *testing.T) {
	id := resolveIdentity(context.Background(), "Watchdog", map[string]string{}, nil)
	assert.Equal(t, models.IdentityMissing, id.Status)
	assert.NotEmpty(t, id.Reason)
}

func TestResolveIdentity_JobScoped(t *testing.T) {
	labels := map[string]string{"namespace": "batch", "job": "nightly-etl"}
	id := resolveIdentity(context.Background(), "KubeJobFailed", labels, nil)
	assert.Equal(t, "Job", id.Kind)
	assert.Equal(t, "nightly-etl", id.Name)
}

type fakeK8s struct {
	slot models.K8sContextSlot
}

func (f fakeK8s) FetchContext(ctx context.Context, identity models.Identity) models.K8sContextSlot {
	return f.slot
}

func (f fakeK8s) ResolvePodForOwner(ctx context.Context, identity models.Identity) (string, bool) {
	return "", false
}

func TestResolveIdentity_RolloutNoisyResolvesOwner(t *testing.T) {
	k8s := fakeK8s{slot: models.K8sContextSlot{
		Status:     models.SlotOK,
		OwnerChain: []models.OwnerRef{{Kind: "ReplicaSet", Name: "api-7f9-rs"}, {Kind: "Deployment", Name: "api"}},
	}}
	labels := map[string]string{"namespace": "prod", "pod": "api-7f9-abcde"}
	id := resolveIdentity(context.Background(), "KubernetesPodNotHealthy", labels, k8s)
	assert.Equal(t, "Deployment", id.Kind)
	assert.Equal(t, "api", id.Name)
}

func TestResolveIdentity_RolloutNoisyFallsBackToPodOnResolveFailure(t *testing.T) {
	k8s := fakeK8s{slot: models.K8sContextSlot{Status: models.SlotUnavailable}}
	labels := map[string]string{"namespace": "prod", "pod": "api-7f9-abcde"}
	id := resolveIdentity(context.Background(), "KubernetesPodNotHealthy", labels, k8s)
	assert.Equal(t, "Pod", id.Kind)
	assert.Equal(t, "api-7f9-abcde", id.Name)
}

func TestResolveFamily_KnownAlertnameAndFallback(t *testing.T) {
	assert.Equal(t, models.FamilyOOMKilled, resolveFamily("KubeContainerOOMKilled", models.Identity{}))
	assert.Equal(t, models.FamilyUnknownPod, resolveFamily("SomeUnknownAlert", models.Identity{Kind: "Pod"}))
	assert.Equal(t, models.FamilyUnknownNonPod, resolveFamily("SomeUnknownAlert", models.Identity{Kind: "Node"}))
}
