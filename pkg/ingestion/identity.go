package ingestion

import (
	"context"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// rolloutNoisyAlertnames names the alerts whose pod identity churns across
// rollouts faster than the incident it describes — resolving to the owning
// workload keeps these from producing a fresh case on every pod restart.
var rolloutNoisyAlertnames = map[string]bool{
	"KubernetesPodNotHealthy":       true,
	"KubernetesContainerOomKiller":  true,
}

// IsRolloutNoisy reports whether alertname is subject to the 1-hour
// freshness gate and the "overwrite, don't append" run-persistence rule.
// Exported for pkg/services, which applies the same rule when deciding
// whether to update the latest run in place rather than insert a new one.
func IsRolloutNoisy(alertname string) bool {
	return rolloutNoisyAlertnames[alertname]
}

// alertnameFamily maps a known alertname straight to a Family. Alertnames
// not present here fall through to labelFamily, which infers from label
// shape; both fall back to FamilyUnknownPod/FamilyUnknownNonPod.
var alertnameFamily = map[string]models.Family{
	"KubeContainerWaitingImagePullBackOff": models.FamilyImagePullBackOff,
	"KubernetesPodNotHealthy":              models.FamilyCrashLoopBackOff,
	"KubernetesContainerOomKiller":         models.FamilyOOMKilled,
	"KubeContainerOOMKilled":               models.FamilyOOMKilled,
	"CPUThrottlingHigh":                    models.FamilyCPUThrottle,
	"KubePodNotReady":                      models.FamilyPodPending,
	"KubePersistentVolumeFillingUp":        models.FamilyVolumeMount,
	"KubeNodeNotReady":                     models.FamilyNodeNotReady,
	"KubeNodePressure":                     models.FamilyNodePressure,
	"KubeHpaMaxedOut":                      models.FamilyHPAMaxed,
	"KubeDeploymentRolloutStuck":           models.FamilyRolloutStuck,
	"KubeJobFailed":                        models.FamilyJobFailure,
	"Http5xxRateHigh":                      models.FamilyHTTP5xx,
	"TargetDown":                           models.FamilyTargetDown,
	"ObservabilityPipelineLag":             models.FamilyObservabilityPipelineLag,
}

// resolveFamily infers a Family from the alertname first, falling back to
// the identity's kind when the alertname is unrecognized.
func resolveFamily(alertname string, identity models.Identity) models.Family {
	if f, ok := alertnameFamily[alertname]; ok {
		return f
	}
	if identity.Kind == "Pod" {
		return models.FamilyUnknownPod
	}
	return models.FamilyUnknownNonPod
}

// ResolveIdentity is the exported form of resolveIdentity, used by the
// `investigate` CLI subcommand to resolve a one-off alert the same way the
// webhook handler does.
func ResolveIdentity(ctx context.Context, alertname string, labels map[string]string, k8s providers.K8sProvider) models.Identity {
	return resolveIdentity(ctx, alertname, labels, k8s)
}

// resolveIdentity builds an Identity from an alert's labels per spec:
// pod-scoped = (cluster,namespace,pod); workload-scoped =
// (cluster,namespace,kind,owner); job-scoped = (cluster,namespace,job);
// non-pod = labels-minus-ephemeral. For rollout-noisy alertnames it
// additionally resolves pod→owning workload via ownerReferences when a K8s
// provider is available, and falls back to the pod identity (never fails
// closed) if that lookup doesn't succeed.
func resolveIdentity(ctx context.Context, alertname string, labels map[string]string, k8s providers.K8sProvider) models.Identity {
	cluster := labels["cluster"]

	switch {
	case labels["pod"] != "" && labels["namespace"] != "":
		id := models.Identity{Status: models.IdentityOK, Kind: "Pod", Cluster: cluster, Namespace: labels["namespace"], Name: labels["pod"]}
		if rolloutNoisyAlertnames[alertname] && k8s != nil {
			if owner, ok := resolveOwner(ctx, k8s, id); ok {
				return owner
			}
		}
		return id

	case labels["job"] != "" && labels["namespace"] != "":
		return models.Identity{Status: models.IdentityOK, Kind: "Job", Cluster: cluster, Namespace: labels["namespace"], Name: labels["job"]}

	case labels["workload"] != "" && labels["namespace"] != "":
		return models.Identity{Status: models.IdentityOK, Kind: "Deployment", Cluster: cluster, Namespace: labels["namespace"], Name: labels["workload"]}

	case labels["node"] != "":
		return models.Identity{Status: models.IdentityOK, Kind: "Node", Cluster: cluster, Name: labels["node"]}

	default:
		return models.Identity{Status: models.IdentityMissing, Reason: "alert labels did not contain enough to resolve a namespace/pod, job, workload, or node target"}
	}
}

// resolveOwner fetches the pod's K8s context and, if its owner chain names
// a workload, returns the workload's Identity instead of the pod's.
func resolveOwner(ctx context.Context, k8s providers.K8sProvider, pod models.Identity) (models.Identity, bool) {
	slot := k8s.FetchContext(ctx, pod)
	if slot.Status != models.SlotOK || len(slot.OwnerChain) == 0 {
		return models.Identity{}, false
	}
	top := slot.OwnerChain[len(slot.OwnerChain)-1]
	return models.Identity{
		Status:    models.IdentityOK,
		Kind:      top.Kind,
		Cluster:   pod.Cluster,
		Namespace: pod.Namespace,
		Name:      top.Name,
	}, true
}
