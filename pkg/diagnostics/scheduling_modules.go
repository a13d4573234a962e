package diagnostics

import (
	"fmt"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

func init() {
	register(podPendingNoSchedule{})
	register(volumeMountFailure{})
	register(serviceAccountForbidden{})
	register(nodeNotReady{})
	register(nodePressure{})
}

type podPendingNoSchedule struct{}

func (podPendingNoSchedule) ID() string { return "scheduling.pod_pending_no_schedule" }

func (podPendingNoSchedule) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && ev.K8s.Phase == "Pending" && hasCondition(ev, "PodScheduled", "False")
}

func (podPendingNoSchedule) Run(ev *models.Evidence) *models.Finding {
	for _, c := range ev.K8s.Conditions {
		if c.Type != "PodScheduled" || c.Status != "False" {
			continue
		}
		return &models.Finding{
			ModuleID: "scheduling.pod_pending_no_schedule",
			Summary:  fmt.Sprintf("pod cannot be scheduled: %s", firstNonEmpty(c.Message, c.Reason, "no matching node")),
			Severity: "critical",
			Evidence: []string{"k8s.conditions[PodScheduled]"},
		}
	}
	return nil
}

type volumeMountFailure struct{}

func (volumeMountFailure) ID() string { return "scheduling.volume_mount_failure" }

func (volumeMountFailure) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && eventReasonContains(ev, "FailedMount", "FailedAttachVolume")
}

func (volumeMountFailure) Run(ev *models.Evidence) *models.Finding {
	for _, e := range ev.K8s.Events {
		if e.Reason != "FailedMount" && e.Reason != "FailedAttachVolume" {
			continue
		}
		return &models.Finding{
			ModuleID: "scheduling.volume_mount_failure",
			Summary:  fmt.Sprintf("volume mount failing: %s", e.Message),
			Severity: "critical",
			Evidence: []string{"k8s.events[" + e.Reason + "]"},
		}
	}
	return nil
}

type serviceAccountForbidden struct{}

func (serviceAccountForbidden) ID() string { return "scheduling.serviceaccount_forbidden" }

func (serviceAccountForbidden) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && eventMessageContains(ev, "forbidden", "is forbidden")
}

func (serviceAccountForbidden) Run(ev *models.Evidence) *models.Finding {
	for _, e := range ev.K8s.Events {
		if !strings.Contains(strings.ToLower(e.Message), "forbidden") {
			continue
		}
		return &models.Finding{
			ModuleID: "scheduling.serviceaccount_forbidden",
			Summary:  fmt.Sprintf("RBAC forbidden: %s", e.Message),
			Severity: "critical",
			Evidence: []string{"k8s.events[" + e.Reason + "]"},
		}
	}
	return nil
}

type nodeNotReady struct{}

func (nodeNotReady) ID() string { return "scheduling.node_not_ready" }

func (nodeNotReady) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && hasCondition(ev, "Ready", "False") && ev.K8s.NodeName == ""
}

func (nodeNotReady) Run(ev *models.Evidence) *models.Finding {
	for _, c := range ev.K8s.Conditions {
		if c.Type != "Ready" || c.Status != "False" {
			continue
		}
		return &models.Finding{
			ModuleID: "scheduling.node_not_ready",
			Summary:  fmt.Sprintf("node not ready: %s", firstNonEmpty(c.Message, c.Reason, "node condition Ready=False")),
			Severity: "critical",
			Evidence: []string{"k8s.conditions[Ready]"},
		}
	}
	return nil
}

type nodePressure struct{}

func (nodePressure) ID() string { return "scheduling.node_pressure" }

var pressureConditions = map[string]bool{
	"MemoryPressure": true,
	"DiskPressure":   true,
	"PIDPressure":    true,
}

func (nodePressure) Applies(ev *models.Evidence) bool {
	if ev.K8s.Status != models.SlotOK {
		return false
	}
	for _, c := range ev.K8s.Conditions {
		if pressureConditions[c.Type] && c.Status == "True" {
			return true
		}
	}
	return false
}

func (nodePressure) Run(ev *models.Evidence) *models.Finding {
	for _, c := range ev.K8s.Conditions {
		if !pressureConditions[c.Type] || c.Status != "True" {
			continue
		}
		return &models.Finding{
			ModuleID: "scheduling.node_pressure",
			Summary:  fmt.Sprintf("node under %s", c.Type),
			Severity: "warning",
			Evidence: []string{"k8s.conditions[" + c.Type + "]"},
		}
	}
	return nil
}

func eventReasonContains(ev *models.Evidence, reasons ...string) bool {
	for _, e := range ev.K8s.Events {
		for _, r := range reasons {
			if e.Reason == r {
				return true
			}
		}
	}
	return false
}

func eventMessageContains(ev *models.Evidence, substrs ...string) bool {
	for _, e := range ev.K8s.Events {
		lower := strings.ToLower(e.Message)
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
	}
	return false
}
