package diagnostics

import (
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

func init() {
	register(imagePullBackOff{})
	register(crashLoopBackOff{})
	register(oomKilled{})
	register(restartStorm{})
	register(probeFailing{})
}

type imagePullBackOff struct{}

func (imagePullBackOff) ID() string { return "container.image_pull_backoff" }

func (imagePullBackOff) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && waitingReasonAny(ev, "ImagePullBackOff", "ErrImagePull")
}

func (imagePullBackOff) Run(ev *models.Evidence) *models.Finding {
	for _, cs := range ev.K8s.ContainerStates {
		if cs.WaitingReason != "ImagePullBackOff" && cs.WaitingReason != "ErrImagePull" {
			continue
		}
		return &models.Finding{
			ModuleID: "container.image_pull_backoff",
			Summary:  fmt.Sprintf("container %q cannot pull its image: %s", cs.Name, cs.WaitingMessage),
			Severity: "critical",
			Evidence: []string{"k8s.container_states[" + cs.Name + "]"},
		}
	}
	return nil
}

type crashLoopBackOff struct{}

func (crashLoopBackOff) ID() string { return "container.crash_loop_backoff" }

func (crashLoopBackOff) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && waitingReasonAny(ev, "CrashLoopBackOff")
}

func (crashLoopBackOff) Run(ev *models.Evidence) *models.Finding {
	for _, cs := range ev.K8s.ContainerStates {
		if cs.WaitingReason != "CrashLoopBackOff" {
			continue
		}
		summary := fmt.Sprintf("container %q is crash-looping (%d restarts)", cs.Name, cs.RestartCount)
		if cs.LastTermReason != "" {
			summary += fmt.Sprintf(", last terminated: %s (exit %d)", cs.LastTermReason, cs.LastExitCode)
		}
		return &models.Finding{
			ModuleID: "container.crash_loop_backoff",
			Summary:  summary,
			Severity: "critical",
			Evidence: []string{"k8s.container_states[" + cs.Name + "]"},
		}
	}
	return nil
}

type oomKilled struct{}

func (oomKilled) ID() string { return "container.oom_killed" }

func (oomKilled) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && termReasonAny(ev, "OOMKilled")
}

func (oomKilled) Run(ev *models.Evidence) *models.Finding {
	for _, cs := range ev.K8s.ContainerStates {
		if cs.LastTermReason != "OOMKilled" {
			continue
		}
		return &models.Finding{
			ModuleID: "container.oom_killed",
			Summary:  fmt.Sprintf("container %q was OOMKilled (exit %d)", cs.Name, cs.LastExitCode),
			Severity: "critical",
			Evidence: []string{"k8s.container_states[" + cs.Name + "]"},
		}
	}
	return nil
}

type restartStorm struct{}

func (restartStorm) ID() string { return "container.restart_storm" }

const restartStormThreshold = 5

func (restartStorm) Applies(ev *models.Evidence) bool {
	if ev.K8s.Status != models.SlotOK {
		return false
	}
	for _, cs := range ev.K8s.ContainerStates {
		if cs.RestartCount >= restartStormThreshold {
			return true
		}
	}
	return false
}

func (restartStorm) Run(ev *models.Evidence) *models.Finding {
	var worst *models.ContainerState
	for i, cs := range ev.K8s.ContainerStates {
		if cs.RestartCount < restartStormThreshold {
			continue
		}
		if worst == nil || cs.RestartCount > worst.RestartCount {
			worst = &ev.K8s.ContainerStates[i]
		}
	}
	if worst == nil {
		return nil
	}
	return &models.Finding{
		ModuleID: "container.restart_storm",
		Summary:  fmt.Sprintf("container %q has restarted %d times", worst.Name, worst.RestartCount),
		Severity: "warning",
		Evidence: []string{"k8s.container_states[" + worst.Name + "]"},
	}
}

type probeFailing struct{}

func (probeFailing) ID() string { return "container.readiness_probe_failing" }

func (probeFailing) Applies(ev *models.Evidence) bool {
	return ev.K8s.Status == models.SlotOK && hasCondition(ev, "Ready", "False")
}

func (probeFailing) Run(ev *models.Evidence) *models.Finding {
	for _, c := range ev.K8s.Conditions {
		if c.Type != "Ready" || c.Status != "False" {
			continue
		}
		return &models.Finding{
			ModuleID: "container.readiness_probe_failing",
			Summary:  fmt.Sprintf("pod not Ready: %s", firstNonEmpty(c.Message, c.Reason, "readiness probe failing")),
			Severity: "warning",
			Evidence: []string{"k8s.conditions[Ready]"},
		}
	}
	return nil
}

func waitingReasonAny(ev *models.Evidence, reasons ...string) bool {
	for _, cs := range ev.K8s.ContainerStates {
		for _, r := range reasons {
			if cs.WaitingReason == r {
				return true
			}
		}
	}
	return false
}

func termReasonAny(ev *models.Evidence, reasons ...string) bool {
	for _, cs := range ev.K8s.ContainerStates {
		for _, r := range reasons {
			if cs.LastTermReason == r {
				return true
			}
		}
	}
	return false
}

func hasCondition(ev *models.Evidence, typ, status string) bool {
	for _, c := range ev.K8s.Conditions {
		if c.Type == typ && c.Status == status {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
