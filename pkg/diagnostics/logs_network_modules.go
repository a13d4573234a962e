package diagnostics

import (
	"fmt"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

func init() {
	register(logsUnavailable{})
	register(logsEmpty{})
	register(exceptionInLogs{})
	register(fatalInLogs{})
	register(connectionFailuresInLogs{})
	register(http5xxInLogs{})
	register(dnsResolutionFailure{})
	register(networkPolicyBlocked{})
}

// logsUnavailable and logsEmpty exist so the honesty contract's Blocked
// Scenario C (logs missing vs empty vs unavailable) is surfaced as a
// Finding, not just left implicit in the evidence slot.

type logsUnavailable struct{}

func (logsUnavailable) ID() string { return "logs.unavailable" }

func (logsUnavailable) Applies(ev *models.Evidence) bool {
	return ev.Logs.Status == models.SlotUnavailable
}

func (logsUnavailable) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "logs.unavailable",
		Summary:  fmt.Sprintf("logs unavailable (%s)", ev.Logs.Reason),
		Severity: "warning",
		Evidence: []string{"logs.status"},
	}
}

type logsEmpty struct{}

func (logsEmpty) ID() string { return "logs.empty" }

func (logsEmpty) Applies(ev *models.Evidence) bool {
	return ev.Logs.Status == models.SlotEmpty
}

func (logsEmpty) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "logs.empty",
		Summary:  "logs queried successfully but returned no entries for the investigation window",
		Severity: "info",
		Evidence: []string{"logs.status"},
	}
}

func findPattern(ev *models.Evidence, kind string) *models.ParsedPattern {
	if ev.Logs.Status != models.SlotOK {
		return nil
	}
	for i := range ev.Logs.ParsedPatterns {
		if ev.Logs.ParsedPatterns[i].Kind == kind {
			return &ev.Logs.ParsedPatterns[i]
		}
	}
	return nil
}

type exceptionInLogs struct{}

func (exceptionInLogs) ID() string { return "logs.exception" }

func (exceptionInLogs) Applies(ev *models.Evidence) bool { return findPattern(ev, "exception") != nil }

func (exceptionInLogs) Run(ev *models.Evidence) *models.Finding {
	p := findPattern(ev, "exception")
	if p == nil {
		return nil
	}
	return &models.Finding{
		ModuleID: "logs.exception",
		Summary:  fmt.Sprintf("%d log line(s) matching an exception pattern, e.g. %q", p.Count, p.RepresentativeLine),
		Severity: "warning",
		Evidence: []string{"logs.parsed_patterns[exception]"},
	}
}

type fatalInLogs struct{}

func (fatalInLogs) ID() string { return "logs.fatal" }

func (fatalInLogs) Applies(ev *models.Evidence) bool { return findPattern(ev, "fatal_prefix") != nil }

func (fatalInLogs) Run(ev *models.Evidence) *models.Finding {
	p := findPattern(ev, "fatal_prefix")
	if p == nil {
		return nil
	}
	return &models.Finding{
		ModuleID: "logs.fatal",
		Summary:  fmt.Sprintf("%d FATAL log line(s), e.g. %q", p.Count, p.RepresentativeLine),
		Severity: "critical",
		Evidence: []string{"logs.parsed_patterns[fatal_prefix]"},
	}
}

type connectionFailuresInLogs struct{}

func (connectionFailuresInLogs) ID() string { return "logs.connection_failures" }

func (connectionFailuresInLogs) Applies(ev *models.Evidence) bool {
	return findPattern(ev, "connection") != nil
}

func (connectionFailuresInLogs) Run(ev *models.Evidence) *models.Finding {
	p := findPattern(ev, "connection")
	if p == nil {
		return nil
	}
	return &models.Finding{
		ModuleID: "logs.connection_failures",
		Summary:  fmt.Sprintf("%d log line(s) indicating connection failures, e.g. %q", p.Count, p.RepresentativeLine),
		Severity: "warning",
		Evidence: []string{"logs.parsed_patterns[connection]"},
	}
}

type http5xxInLogs struct{}

func (http5xxInLogs) ID() string { return "logs.http_5xx" }

func (http5xxInLogs) Applies(ev *models.Evidence) bool {
	return findPattern(ev, "http_status_5xx") != nil
}

func (http5xxInLogs) Run(ev *models.Evidence) *models.Finding {
	p := findPattern(ev, "http_status_5xx")
	if p == nil {
		return nil
	}
	return &models.Finding{
		ModuleID: "logs.http_5xx",
		Summary:  fmt.Sprintf("%d log line(s) reporting HTTP 5xx responses, e.g. %q", p.Count, p.RepresentativeLine),
		Severity: "warning",
		Evidence: []string{"logs.parsed_patterns[http_status_5xx]"},
	}
}

type dnsResolutionFailure struct{}

func (dnsResolutionFailure) ID() string { return "network.dns_resolution_failure" }

func (dnsResolutionFailure) Applies(ev *models.Evidence) bool {
	return eventMessageContains(ev, "nxdomain", "could not resolve", "no such host") ||
		logMessageContains(ev, "nxdomain", "no such host", "name resolution")
}

func (dnsResolutionFailure) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "network.dns_resolution_failure",
		Summary:  "DNS resolution failures detected",
		Severity: "warning",
		Evidence: []string{"k8s.events", "logs.parsed_patterns"},
	}
}

type networkPolicyBlocked struct{}

func (networkPolicyBlocked) ID() string { return "network.policy_blocked" }

func (networkPolicyBlocked) Applies(ev *models.Evidence) bool {
	return eventMessageContains(ev, "networkpolicy") || logMessageContains(ev, "connection refused", "i/o timeout")
}

func (networkPolicyBlocked) Run(ev *models.Evidence) *models.Finding {
	return &models.Finding{
		ModuleID: "network.policy_blocked",
		Summary:  "connectivity pattern consistent with a NetworkPolicy or security-group block",
		Severity: "info",
		Evidence: []string{"k8s.events", "logs.parsed_patterns[connection]"},
	}
}

func logMessageContains(ev *models.Evidence, substrs ...string) bool {
	if ev.Logs.Status != models.SlotOK {
		return false
	}
	for _, p := range ev.Logs.ParsedPatterns {
		lower := strings.ToLower(p.RepresentativeLine)
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
	}
	return false
}
