// Package models contains the domain types shared across Tarka's packages:
// the alert/identity/evidence data model plus the request/response wrappers
// used at the API boundary.
package models

import "time"

// AlertInstance is the normalized representation of an inbound Alertmanager
// webhook firing, independent of any storage or transport concern.
type AlertInstance struct {
	Fingerprint string            `json:"fingerprint"`
	AlertName   string            `json:"alert_name"`
	Status      string            `json:"status"` // "firing" or "resolved"
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      time.Time         `json:"ends_at,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// Identity is the resolved subject of an investigation: the Kubernetes
// object (or AWS resource) the alert's labels point at. IdentityStatus
// distinguishes "we resolved a target" from the honesty-contract cases
// where we could not.
type Identity struct {
	Status      IdentityStatus `json:"status"`
	Kind        string         `json:"kind,omitempty"` // "Pod", "Deployment", "Node", "AWSResource", ...
	Namespace   string         `json:"namespace,omitempty"`
	Name        string         `json:"name,omitempty"`
	Cluster     string         `json:"cluster,omitempty"`
	AWSRegion   string         `json:"aws_region,omitempty"`
	Reason      string         `json:"reason,omitempty"` // populated when Status != IdentityOK
}

// IdentityStatus enumerates how target resolution concluded.
type IdentityStatus string

const (
	IdentityOK      IdentityStatus = "ok"
	IdentityMissing IdentityStatus = "missing" // labels did not contain enough to resolve a target (Blocked Scenario A)
)

// Family classifies an alert by the kind of situation it represents, driving
// diagnostic-module and playbook selection.
type Family string

const (
	FamilyImagePullBackOff          Family = "image_pull_backoff"
	FamilyCrashLoopBackOff          Family = "crash_loop_backoff"
	FamilyOOMKilled                 Family = "oom_killed"
	FamilyCPUThrottle               Family = "cpu_throttle"
	FamilyPodPending                Family = "pod_pending"
	FamilyVolumeMount               Family = "volume_mount"
	FamilyProbeFailing              Family = "probe_failing"
	FamilyRBACForbidden             Family = "rbac_forbidden"
	FamilyNetworkPolicy             Family = "network_policy"
	FamilyDNSResolution             Family = "dns_resolution"
	FamilyNodeNotReady              Family = "node_not_ready"
	FamilyNodePressure              Family = "node_pressure"
	FamilyHPAMaxed                  Family = "hpa_maxed"
	FamilyRolloutStuck              Family = "rollout_stuck"
	FamilyJobFailure                Family = "job_failure"
	FamilyRestartStorm              Family = "restart_storm"
	FamilyAWSEBS                    Family = "aws_ebs"
	FamilyAWSNetwork                Family = "aws_network"
	FamilyAWSELB                    Family = "aws_elb"
	FamilyAWSRDS                    Family = "aws_rds"
	FamilyAWSECR                    Family = "aws_ecr"
	FamilyHTTP5xx                   Family = "http_5xx"
	FamilyTargetDown                Family = "target_down"
	FamilyObservabilityPipelineLag  Family = "observability_pipeline_lag"
	FamilyUnknownPod                Family = "baseline_pod"
	FamilyUnknownNonPod             Family = "baseline_nonpod"
)

// ClassifyFamily maps a firing alertname to a Family. Unknown alertnames
// fall back to a baseline family keyed on whether the identity resolved to
// a pod-shaped object, never to an error.
func ClassifyFamily(alertName string, identityKind string) Family {
	if f, ok := alertNameFamilies[alertName]; ok {
		return f
	}
	if identityKind == "Pod" {
		return FamilyUnknownPod
	}
	return FamilyUnknownNonPod
}

var alertNameFamilies = map[string]Family{
	"KubeImagePullBackOff":        FamilyImagePullBackOff,
	"KubernetesImagePullBackOff":  FamilyImagePullBackOff,
	"KubeCrashLooping":            FamilyCrashLoopBackOff,
	"KubernetesCrashLoopBackOff":  FamilyCrashLoopBackOff,
	"KubernetesContainerOomKiller": FamilyOOMKilled,
	"KubeContainerOOMKilled":      FamilyOOMKilled,
	"KubeCPUThrottlingHigh":       FamilyCPUThrottle,
	"KubernetesPodNotHealthy":     FamilyPodPending,
	"KubePodNotScheduled":         FamilyPodPending,
	"KubePersistentVolumeFillingUp": FamilyVolumeMount,
	"KubePodReadinessFailing":     FamilyProbeFailing,
	"KubeDeploymentRolloutStuck":  FamilyRolloutStuck,
	"KubeJobFailed":               FamilyJobFailure,
	"KubeNodeNotReady":            FamilyNodeNotReady,
	"KubeNodeUnreachable":         FamilyNodeNotReady,
	"KubeHpaMaxedOut":             FamilyHPAMaxed,
	"HTTPErrorRateHigh":           FamilyHTTP5xx,
	"TargetDown":                  FamilyTargetDown,
}
