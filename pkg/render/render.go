// Package render produces the deterministic Markdown and JSON forms of a
// completed Investigation. Section order is fixed and is part of the
// external contract (the console UI parses sections by heading); rendering
// never consults wall-clock time or randomness, so the same Investigation
// always renders byte-identical output.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// commandPrefixes recognizes next-step bullets that name a runnable
// command, so the renderer can wrap them in fenced code blocks instead of
// plain list items.
var commandPrefixes = []string{"kubectl ", "aws ", "promql:", "curl "}

// Markdown renders inv as the deterministic Markdown report. Section order:
// Title, Decision, Identity, Evidence, Findings, Features, Hypotheses, Next
// Steps, Scores. Independent evidence producers (k8s/metrics/logs/aws/change) are
// always emitted in this fixed field order regardless of the order their
// collectors happened to finish in, satisfying the permutation-stability
// property.
func Markdown(inv *models.Investigation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Investigation: %s\n\n", inv.Alert.AlertName)

	b.WriteString("## Decision\n\n")
	fmt.Fprintf(&b, "**%s**\n\n", decisionLabel(inv))
	for _, w := range decisionWhy(inv) {
		fmt.Fprintf(&b, "- %s\n", w)
	}
	b.WriteString("\n")

	b.WriteString("## Identity\n\n")
	writeIdentity(&b, inv.Identity)
	writeLabels(&b, inv.Alert.Labels)
	b.WriteString("\n")

	b.WriteString("## Evidence\n\n")
	writeEvidence(&b, &inv.Evidence)

	b.WriteString("## Findings\n\n")
	writeFindings(&b, inv.Analysis.Findings)

	b.WriteString("## Features\n\n")
	writeFeatures(&b, inv.Analysis.Features)

	b.WriteString("## Hypotheses\n\n")
	writeHypotheses(&b, inv.Analysis.Hypotheses)

	b.WriteString("## Next Steps\n\n")
	writeNextSteps(&b, inv.Analysis.NextSteps)

	b.WriteString("## Scores\n\n")
	fmt.Fprintf(&b, "- impact: %d\n", inv.Analysis.Impact)
	fmt.Fprintf(&b, "- confidence: %d\n", inv.Analysis.Confidence)
	fmt.Fprintf(&b, "- noise: %d\n", inv.Analysis.Noise)
	fmt.Fprintf(&b, "- classification: %s\n", inv.Analysis.Classification)

	return b.String()
}

func decisionLabel(inv *models.Investigation) string {
	if inv.Identity.Status != models.IdentityOK {
		return "target identity unknown"
	}
	return inv.Analysis.Classification
}

func decisionWhy(inv *models.Investigation) []string {
	if inv.Identity.Status != models.IdentityOK {
		reason := inv.Identity.Reason
		if reason == "" {
			reason = "insufficient labels to resolve a target"
		}
		return []string{reason}
	}
	why := make([]string, 0, len(inv.Analysis.Findings))
	for _, f := range inv.Analysis.Findings {
		why = append(why, f.Summary)
	}
	return why
}

func writeIdentity(b *strings.Builder, id models.Identity) {
	if id.Status != models.IdentityOK {
		fmt.Fprintf(b, "- status: %s (%s)\n", id.Status, id.Reason)
		return
	}
	fmt.Fprintf(b, "- kind: %s\n", id.Kind)
	fmt.Fprintf(b, "- namespace: %s\n", id.Namespace)
	fmt.Fprintf(b, "- name: %s\n", id.Name)
	if id.Cluster != "" {
		fmt.Fprintf(b, "- cluster: %s\n", id.Cluster)
	}
}

func writeEvidence(b *strings.Builder, ev *models.Evidence) {
	writeSlot(b, "k8s", ev.K8s.Status, ev.K8s.Reason, k8sSummaryLines(ev.K8s))
	writeSlot(b, "metrics", ev.Metrics.Status, ev.Metrics.Reason, metricsSummaryLines(ev.Metrics))
	writeSlot(b, "logs", ev.Logs.Status, ev.Logs.Reason, logsSummaryLines(ev.Logs))
	writeSlot(b, "aws", ev.AWS.Status, ev.AWS.Reason, awsSummaryLines(ev.AWS))
	writeSlot(b, "change", ev.Change.Status, ev.Change.Reason, changeSummaryLines(ev.Change))
}

func writeSlot(b *strings.Builder, name string, status models.SlotStatus, reason string, lines []string) {
	if status == "" {
		fmt.Fprintf(b, "### %s\n\nnot collected\n\n", name)
		return
	}
	if reason != "" {
		fmt.Fprintf(b, "### %s = %s (%s)\n\n", name, status, reason)
	} else {
		fmt.Fprintf(b, "### %s = %s\n\n", name, status)
	}
	for _, l := range lines {
		fmt.Fprintf(b, "- %s\n", l)
	}
	b.WriteString("\n")
}

func k8sSummaryLines(s models.K8sContextSlot) []string {
	if s.Status != models.SlotOK {
		return nil
	}
	var lines []string
	if s.Phase != "" {
		lines = append(lines, fmt.Sprintf("phase: %s", s.Phase))
	}
	for _, cs := range s.ContainerStates {
		lines = append(lines, fmt.Sprintf("container %s: ready=%t restarts=%d waiting=%s", cs.Name, cs.Ready, cs.RestartCount, cs.WaitingReason))
	}
	return lines
}

func metricsSummaryLines(s models.MetricsSlot) []string {
	if s.Status != models.SlotOK {
		return nil
	}
	lines := make([]string, 0, len(s.Series))
	for _, series := range s.Series {
		lines = append(lines, fmt.Sprintf("series %s: %d samples", series.Name, len(series.Samples)))
	}
	return lines
}

func logsSummaryLines(s models.LogsSlot) []string {
	if s.Status != models.SlotOK {
		return nil
	}
	lines := []string{fmt.Sprintf("raw_line_count: %d", s.RawLineCount)}
	for _, p := range s.ParsedPatterns {
		lines = append(lines, fmt.Sprintf("%s (x%d): %s", p.Kind, p.Count, p.RepresentativeLine))
	}
	return lines
}

func awsSummaryLines(s models.AWSSlot) []string {
	if s.Status != models.SlotOK {
		return nil
	}
	lines := make([]string, 0, len(s.Events)+1)
	if s.ResourceState != "" {
		lines = append(lines, fmt.Sprintf("resource_state: %s", s.ResourceState))
	}
	for _, e := range s.Events {
		lines = append(lines, fmt.Sprintf("%s by %s", e.EventName, e.Username))
	}
	return lines
}

func changeSummaryLines(s models.ChangeSlot) []string {
	if s.Status != models.SlotOK {
		return nil
	}
	lines := make([]string, 0, len(s.Commits)+len(s.Runs))
	for _, c := range s.Commits {
		lines = append(lines, fmt.Sprintf("commit %s by %s: %s", shortSHA(c.SHA), c.Author, c.Message))
	}
	for _, r := range s.Runs {
		lines = append(lines, fmt.Sprintf("workflow %s: %s", r.Name, r.Conclusion))
	}
	return lines
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func writeFindings(b *strings.Builder, findings []models.Finding) {
	if len(findings) == 0 {
		b.WriteString("none\n\n")
		return
	}
	for _, f := range findings {
		fmt.Fprintf(b, "- **[%s]** %s (%s)\n", f.ModuleID, f.Summary, f.Severity)
	}
	b.WriteString("\n")
}

func writeFeatures(b *strings.Builder, f models.Features) {
	if f.JobMetrics == nil {
		b.WriteString("none\n\n")
		return
	}
	jm := f.JobMetrics
	fmt.Fprintf(b, "- job_metrics.attempts: %d\n", jm.Attempts)
	fmt.Fprintf(b, "- job_metrics.backoff_limit: %d\n", jm.BackoffLimit)
	fmt.Fprintf(b, "- job_metrics.exit_reason: %s\n", jm.ExitReason)
	fmt.Fprintf(b, "- job_metrics.error_count: %d\n", jm.ErrorCount)
	b.WriteString("\n")
}

func writeHypotheses(b *strings.Builder, hyps []models.Hypothesis) {
	if len(hyps) == 0 {
		b.WriteString("none\n\n")
		return
	}
	for _, h := range hyps {
		fmt.Fprintf(b, "- %s (confidence %d)\n", h.Statement, h.Confidence)
	}
	b.WriteString("\n")
}

var leadingWhitespace = regexp.MustCompile(`^\s+`)

func writeNextSteps(b *strings.Builder, steps []string) {
	if len(steps) == 0 {
		b.WriteString("none\n\n")
		return
	}
	for _, s := range steps {
		trimmed := leadingWhitespace.ReplaceAllString(s, "")
		if isCommand(trimmed) {
			fmt.Fprintf(b, "```\n%s\n```\n", trimmed)
		} else {
			fmt.Fprintf(b, "- %s\n", trimmed)
		}
	}
	b.WriteString("\n")
}

func isCommand(s string) bool {
	for _, p := range commandPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// JSON renders inv as structured JSON with stable key order (Go's
// encoding/json emits struct fields in declaration order, never map
// iteration order, which is what makes this deterministic) and two-space
// indentation for readability in the object store.
func JSON(inv *models.Investigation) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(inv); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writeLabels renders the firing alert's labels in sorted-key order so the
// same alert always produces the same label block regardless of Go's
// randomized map iteration.
func writeLabels(b *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("\nlabels:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, labels[k])
	}
}
