package playbooks

import (
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

// findingsByModule filters findings to those whose module id matches one of
// ids, preserving Run's deterministic order.
func findingsByModule(findings []models.Finding, ids ...string) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		for _, id := range ids {
			if f.ModuleID == id {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func summaries(findings []models.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Summary)
	}
	return out
}

// withFallback builds an Enrichment from matched findings when present, or
// falls back to a scope-bound, honest default that names what's missing
// rather than inventing a cause.
func withFallback(label string, matched []models.Finding, next []string, fallbackWhy string) Enrichment {
	if len(matched) == 0 {
		return Enrichment{Label: label, Why: []string{fallbackWhy}, Next: next}
	}
	return Enrichment{Label: label, Why: summaries(matched), Next: next}
}

func init() {
	register(Playbook{
		Family: models.FamilyImagePullBackOff, NeedsChange: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "container.image_pull_backoff", "aws.ecr_pull_failure")
			return withFallback("image pull failing", matched,
				[]string{"kubectl describe pod " + podRef(id), "kubectl get events -n " + id.Namespace + " --field-selector reason=Failed"},
				"no image-pull finding fired but the family classification expected one; evidence may be incomplete")
		},
	})

	register(Playbook{
		Family: models.FamilyCrashLoopBackOff, NeedsLogs: true, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "container.crash_loop_backoff", "container.restart_storm", "logs.fatal", "logs.exception")
			return withFallback("container crash-looping", matched,
				[]string{"kubectl logs " + podRef(id) + " --previous", "kubectl describe pod " + podRef(id)},
				"crash-loop family but no corroborating container-state or log finding")
		},
	})

	register(Playbook{
		Family: models.FamilyOOMKilled, NeedsLogs: true, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "container.oom_killed", "metrics.memory_saturation")
			return withFallback("OOMKilled (exit 137)", matched,
				[]string{
					"kubectl logs " + podRef(id) + " --previous",
					"promql: container_memory_working_set_bytes{" + podLabelSelector(id) + "}",
				},
				"OOM family classification but no OOMKilled container-state finding — check the limit/request configuration directly")
		},
	})

	register(Playbook{
		Family: models.FamilyCPUThrottle, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "metrics.cpu_throttle_saturation")
			return withFallback("CPU throttling", matched,
				[]string{"promql: rate(container_cpu_cfs_throttled_periods_total{" + podLabelSelector(id) + "}[5m])"},
				"no CPU-throttle finding fired; metrics may be unavailable")
		},
	})

	register(Playbook{
		Family: models.FamilyPodPending,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "scheduling.pod_pending_no_schedule", "scheduling.volume_mount_failure")
			return withFallback("pod not scheduling", matched,
				[]string{"kubectl describe pod " + podRef(id), "kubectl get nodes -o wide"},
				"pod-pending family but no scheduling finding — check for admission webhook denial")
		},
	})

	register(Playbook{
		Family: models.FamilyVolumeMount,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "scheduling.volume_mount_failure")
			return withFallback("volume mount failing", matched,
				[]string{"kubectl describe pod " + podRef(id), "kubectl get pv,pvc -n " + id.Namespace},
				"volume-mount family but no corroborating mount-failure event")
		},
	})

	register(Playbook{
		Family: models.FamilyProbeFailing, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "container.readiness_probe_failing")
			return withFallback("readiness probe failing", matched,
				[]string{"kubectl describe pod " + podRef(id), "kubectl logs " + podRef(id)},
				"probe-failing family but pod currently reports Ready")
		},
	})

	register(Playbook{
		Family: models.FamilyRBACForbidden,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "scheduling.serviceaccount_forbidden")
			return withFallback("RBAC forbidden", matched,
				[]string{"kubectl auth can-i --list --as=system:serviceaccount:" + id.Namespace + ":default -n " + id.Namespace},
				"RBAC family but no forbidden event found in the window")
		},
	})

	register(Playbook{
		Family: models.FamilyNetworkPolicy, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "network.policy_blocked", "aws.nat_unreachable")
			return withFallback("network connectivity blocked", matched,
				[]string{"kubectl get networkpolicy -n " + id.Namespace, "kubectl logs " + podRef(id)},
				"network-policy family but no blocked-connectivity pattern found in logs or events")
		},
	})

	register(Playbook{
		Family: models.FamilyDNSResolution, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "network.dns_resolution_failure")
			return withFallback("DNS resolution failing", matched,
				[]string{"kubectl exec " + podRef(id) + " -- nslookup kubernetes.default", "kubectl logs -n kube-system -l k8s-app=kube-dns"},
				"DNS family but no resolution-failure pattern found")
		},
	})

	register(Playbook{
		Family: models.FamilyNodeNotReady,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "scheduling.node_not_ready")
			return withFallback("node not ready", matched,
				[]string{"kubectl describe node " + nodeRef(id, ev), "kubectl get nodes"},
				"node-not-ready family but the Ready condition currently reports True")
		},
	})

	register(Playbook{
		Family: models.FamilyNodePressure, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "scheduling.node_pressure")
			return withFallback("node under resource pressure", matched,
				[]string{"kubectl describe node " + nodeRef(id, ev), "kubectl top node " + nodeRef(id, ev)},
				"node-pressure family but no pressure condition currently set")
		},
	})

	register(Playbook{
		Family: models.FamilyHPAMaxed, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "metrics.cpu_throttle_saturation", "metrics.memory_saturation")
			return withFallback("HorizontalPodAutoscaler at max replicas", matched,
				[]string{"kubectl describe hpa -n " + id.Namespace, "kubectl get hpa -n " + id.Namespace},
				"HPA-maxed family but no saturation metric corroborates sustained load")
		},
	})

	register(Playbook{
		Family: models.FamilyRolloutStuck, NeedsChange: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "change.recent_deploy_correlation", "change.ci_workflow_failure_correlation", "container.crash_loop_backoff")
			return withFallback("rollout stuck", matched,
				[]string{"kubectl rollout status deployment -n " + id.Namespace, "kubectl rollout history deployment -n " + id.Namespace},
				"rollout-stuck family but no correlated commit, workflow, or crash finding")
		},
	})

	register(Playbook{
		Family: models.FamilyJobFailure, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "logs.fatal", "logs.exception", "container.crash_loop_backoff")
			return withFallback("Job failed", matched,
				[]string{"kubectl logs job/" + id.Name + " -n " + id.Namespace, "kubectl describe job " + id.Name + " -n " + id.Namespace},
				"job-failure family but no error pattern found in the available logs")
		},
	})

	register(Playbook{
		Family: models.FamilyRestartStorm, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "container.restart_storm", "metrics.restart_rate")
			return withFallback("restart storm", matched,
				[]string{"kubectl describe pod " + podRef(id), "kubectl logs " + podRef(id) + " --previous"},
				"restart-storm family but restart count metrics do not corroborate it")
		},
	})

	register(Playbook{
		Family: models.FamilyAWSEBS, NeedsAWS: true, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "aws.ebs_throttling")
			return withFallback("EBS throttling", matched,
				[]string{"aws ec2 describe-volumes-modifications --volume-ids " + id.Name},
				"EBS family but no throttling-related CloudTrail event found")
		},
	})

	register(Playbook{
		Family: models.FamilyAWSNetwork, NeedsAWS: true, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "aws.nat_unreachable")
			return withFallback("AWS network path unreachable", matched,
				[]string{"aws ec2 describe-nat-gateways --region " + id.AWSRegion, "aws ec2 describe-route-tables --region " + id.AWSRegion},
				"AWS-network family but no unreachable-path signal in logs or CloudTrail")
		},
	})

	register(Playbook{
		Family: models.FamilyAWSELB, NeedsAWS: true, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "aws.elb_unhealthy_targets", "logs.http_5xx")
			return withFallback("load balancer unhealthy targets", matched,
				[]string{"aws elbv2 describe-target-health --target-group-arn " + id.Name},
				"AWS-ELB family but no target-group change correlates with the observed errors")
		},
	})

	register(Playbook{
		Family: models.FamilyAWSRDS, NeedsAWS: true, NeedsLogs: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "aws.rds_connection_exhaustion")
			return withFallback("RDS connection exhaustion", matched,
				[]string{"aws rds describe-db-instances --db-instance-identifier " + id.Name},
				"AWS-RDS family but logs do not show connection-pool exhaustion")
		},
	})

	register(Playbook{
		Family: models.FamilyAWSECR, NeedsAWS: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "aws.ecr_pull_failure")
			return withFallback("ECR image pull failing", matched,
				[]string{"aws ecr describe-images --repository-name " + id.Name, "kubectl describe pod " + podRef(id)},
				"AWS-ECR family but no ECR-specific pull failure found")
		},
	})

	register(Playbook{
		Family: models.FamilyHTTP5xx, NeedsLogs: true, NeedsMetrics: true, NeedsChange: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			matched := findingsByModule(findings, "logs.http_5xx", "aws.elb_unhealthy_targets", "change.recent_deploy_correlation")
			return withFallback("HTTP 5xx error rate elevated", matched,
				[]string{"promql: sum(rate(http_requests_total{status=~\"5..\"}[5m]))", "kubectl logs " + podRef(id)},
				"HTTP-5xx family but no corroborating log pattern or deploy correlation found")
		},
	})

	register(Playbook{
		Family: models.FamilyTargetDown, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			return Enrichment{
				Label: "scrape target down",
				Why:   []string{fmt.Sprintf("Prometheus could not scrape the target for %s/%s", id.Namespace, id.Name)},
				Next:  []string{"kubectl get endpoints -n " + id.Namespace, "promql: up{" + podLabelSelector(id) + "}"},
			}
		},
	})

	register(Playbook{
		Family: models.FamilyObservabilityPipelineLag, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			return Enrichment{
				Label: "observability pipeline lagging",
				Why:   []string{"alert fired on pipeline-internal lag rather than a workload symptom"},
				Next:  []string{"check the collector/exporter backlog directly; this family has no workload-scoped remediation"},
			}
		},
	})

	register(Playbook{
		Family: BaselinePodFamily, NeedsLogs: true, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			return withFallback("unrecognized pod-scoped alert", findings,
				[]string{"kubectl describe pod " + podRef(id), "kubectl logs " + podRef(id)},
				"no diagnostic module fired for this alert; evidence collected but uninterpreted")
		},
	})

	register(Playbook{
		Family: BaselineNonPodFamily, NeedsMetrics: true,
		Interpret: func(id models.Identity, ev *models.Evidence, findings []models.Finding) Enrichment {
			return withFallback("unrecognized non-pod-scoped alert", findings,
				[]string{"kubectl get events -A --field-selector type=Warning"},
				"no diagnostic module fired for this alert; evidence collected but uninterpreted")
		},
	})
}

func podRef(id models.Identity) string {
	return id.Name + " -n " + id.Namespace
}

func podLabelSelector(id models.Identity) string {
	return fmt.Sprintf("namespace=%q, pod=%q", id.Namespace, id.Name)
}

func nodeRef(id models.Identity, ev *models.Evidence) string {
	if ev.K8s.NodeName != "" {
		return ev.K8s.NodeName
	}
	return id.Name
}
