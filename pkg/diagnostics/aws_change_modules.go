package diagnostics

import (
	"fmt"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

func init() {
	register(ebsThrottling{})
	register(natUnreachable{})
	register(elbUnhealthyTargets{})
	register(rdsConnectionExhaustion{})
	register(ecrPullFailure{})
	register(recentDeployCorrelation{})
	register(ciWorkflowFailureCorrelation{})
}

func awsEventNameContains(ev *models.Evidence, substrs ...string) *models.AWSEvent {
	if ev.AWS.Status != models.SlotOK {
		return nil
	}
	for i, e := range ev.AWS.Events {
		lower := strings.ToLower(e.EventName)
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return &ev.AWS.Events[i]
			}
		}
	}
	return nil
}

type ebsThrottling struct{}

func (ebsThrottling) ID() string { return "aws.ebs_throttling" }

func (ebsThrottling) Applies(ev *models.Evidence) bool {
	return awsEventNameContains(ev, "volumeiops", "modifyvolume") != nil
}

func (ebsThrottling) Run(ev *models.Evidence) *models.Finding {
	e := awsEventNameContains(ev, "volumeiops", "modifyvolume")
	if e == nil {
		return nil
	}
	return &models.Finding{
		ModuleID: "aws.ebs_throttling",
		Summary:  fmt.Sprintf("EBS volume activity (%s) consistent with IOPS throttling", e.EventName),
		Severity: "warning",
		Evidence: []string{"aws.events[" + e.EventName + "]"},
	}
}

type natUnreachable struct{}

func (natUnreachable) ID() string { return "aws.nat_unreachable" }

func (natUnreachable) Applies(ev *models.Evidence) bool {
	return awsEventNameContains(ev, "deletenatgateway", "natgatewayfailure") != nil ||
		logMessageContains(ev, "no route to host", "network is unreachable")
}

func (natUnreachable) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "aws.nat_unreachable",
		Summary:  "egress pattern consistent with an unreachable NAT gateway",
		Severity: "warning",
		Evidence: []string{"aws.events", "logs.parsed_patterns[connection]"},
	}
}

type elbUnhealthyTargets struct{}

func (elbUnhealthyTargets) ID() string { return "aws.elb_unhealthy_targets" }

func (elbUnhealthyTargets) Applies(ev *models.Evidence) bool {
	return findPattern(ev, "http_status_5xx") != nil && awsEventNameContains(ev, "deregistertargets", "modifytargetgroup") != nil
}

func (elbUnhealthyTargets) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "aws.elb_unhealthy_targets",
		Summary:  "load balancer target-group changes correlate with the observed 5xx responses",
		Severity: "warning",
		Evidence: []string{"aws.events", "logs.parsed_patterns[http_status_5xx]"},
	}
}

type rdsConnectionExhaustion struct{}

func (rdsConnectionExhaustion) ID() string { return "aws.rds_connection_exhaustion" }

func (rdsConnectionExhaustion) Applies(ev *models.Evidence) bool {
	return logMessageContains(ev, "too many connections", "connection pool exhausted", "remaining connection slots")
}

func (rdsConnectionExhaustion) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "aws.rds_connection_exhaustion",
		Summary:  "logs indicate the database connection pool is exhausted",
		Severity: "critical",
		Evidence: []string{"logs.parsed_patterns[connection]"},
	}
}

type ecrPullFailure struct{}

func (ecrPullFailure) ID() string { return "aws.ecr_pull_failure" }

func (ecrPullFailure) Applies(ev *models.Evidence) bool {
	if ev.K8s.Status != models.SlotOK {
		return false
	}
	for _, cs := range ev.K8s.ContainerStates {
		if cs.WaitingReason == "ErrImagePull" && strings.Contains(strings.ToLower(cs.WaitingMessage), "ecr") {
			return true
		}
	}
	return false
}

func (ecrPullFailure) Run(ev *models.Evidence) *models.Finding {
	for _, cs := range ev.K8s.ContainerStates {
		if cs.WaitingReason != "ErrImagePull" || !strings.Contains(strings.ToLower(cs.WaitingMessage), "ecr") {
			continue
		}
		return &models.Finding{
			ModuleID: "aws.ecr_pull_failure",
			Summary:  fmt.Sprintf("container %q failed to pull its image from ECR: %s", cs.Name, cs.WaitingMessage),
			Severity: "critical",
			Evidence: []string{"k8s.container_states[" + cs.Name + "]"},
		}
	}
	return nil
}

type recentDeployCorrelation struct{}

func (recentDeployCorrelation) ID() string { return "change.recent_deploy_correlation" }

func (recentDeployCorrelation) Applies(ev *models.Evidence) bool {
	return ev.Change.Status == models.SlotOK && len(ev.Change.Commits) > 0
}

func (recentDeployCorrelation) Run(ev *models.Evidence) *models.Finding {
	c := ev.Change.Commits[0]
	return &models.Finding{
		ModuleID: "change.recent_deploy_correlation",
		Summary:  fmt.Sprintf("most recent commit %s by %s: %q", shortSHA(c.SHA), c.Author, c.Message),
		Severity: "info",
		Evidence: []string{"change.commits[0]"},
	}
}

type ciWorkflowFailureCorrelation struct{}

func (ciWorkflowFailureCorrelation) ID() string { return "change.ci_workflow_failure_correlation" }

func (ciWorkflowFailureCorrelation) Applies(ev *models.Evidence) bool {
	if ev.Change.Status != models.SlotOK {
		return false
	}
	for _, r := range ev.Change.Runs {
		if r.Conclusion == "failure" {
			return true
		}
	}
	return false
}

func (ciWorkflowFailureCorrelation) Run(ev *models.Evidence) *models.Finding {
	for _, r := range ev.Change.Runs {
		if r.Conclusion != "failure" {
			continue
		}
		return &models.Finding{
			ModuleID: "change.ci_workflow_failure_correlation",
			Summary:  fmt.Sprintf("recent workflow run %q concluded in failure", r.Name),
			Severity: "warning",
			Evidence: []string{"change.runs"},
		}
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
