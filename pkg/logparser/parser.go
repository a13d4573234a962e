// Package logparser deterministically extracts recognizable error patterns
// from raw container log lines: no LLM involvement, no randomness, same
// input always produces the same ordered output. It is the evidence-layer
// input to diagnostic modules and to the optional LLM enrichment stage.
package logparser

import (
	"regexp"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// kind is the order-stable identifier of a recognized pattern family.
// Order here is the order patterns are emitted in when multiple kinds are
// present, giving the renderer and tests a deterministic sequence.
var kindOrder = []string{
	"fatal_prefix",
	"error_prefix",
	"exception",
	"stack_frame",
	"oom",
	"connection",
	"timeout",
	"http_status_5xx",
}

var patternRegexes = map[string]*regexp.Regexp{
	"fatal_prefix":    regexp.MustCompile(`(?i)\bFATAL\b[:\s]+(.+)`),
	"error_prefix":    regexp.MustCompile(`(?i)\bERROR\b[:\s]+(.+)`),
	"exception":       regexp.MustCompile(`(\w+(?:\.\w+)*(?:Exception|Error))(?::\s*(.+))?`),
	"stack_frame":     regexp.MustCompile(`(?:^|\s)at\s+[\w.$]+\([\w.]+:\d+\)`),
	"oom":             regexp.MustCompile(`(?i)\b(out of memory|oom[- ]?killed|cannot allocate memory|java\.lang\.OutOfMemoryError)\b`),
	"connection":      regexp.MustCompile(`(?i)\b(connection refused|connection reset|no route to host|broken pipe)\b`),
	"timeout":         regexp.MustCompile(`(?i)\b(timed? ?out|deadline exceeded|context deadline exceeded)\b`),
	"http_status_5xx": regexp.MustCompile(`\b(5\d{2})\b.{0,40}`),
}

// ansiEscape strips terminal color codes that otherwise defeat dedup of
// otherwise-identical lines.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// leadingTimestamp strips RFC3339-ish and syslog-ish timestamp prefixes
// before matching, so the same underlying message from different moments
// is recognized as the same representative line.
var leadingTimestamp = regexp.MustCompile(`^\S*\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?\s*`)

// Parse scans lines once (O(n)) and returns one ParsedPattern per kind that
// matched at least once, in kindOrder, each carrying a representative line
// and the count of matching lines collapsed into it.
func Parse(lines []string) []models.ParsedPattern {
	type agg struct {
		representative string
		count          int
	}
	seen := make(map[string]*agg, len(kindOrder))

	for _, raw := range lines {
		line := normalize(raw)
		if line == "" {
			continue
		}
		for _, kind := range kindOrder {
			if !patternRegexes[kind].MatchString(line) {
				continue
			}
			a, ok := seen[kind]
			if !ok {
				seen[kind] = &agg{representative: line, count: 1}
				continue
			}
			a.count++
		}
	}

	out := make([]models.ParsedPattern, 0, len(seen))
	for _, kind := range kindOrder {
		a, ok := seen[kind]
		if !ok {
			continue
		}
		out = append(out, models.ParsedPattern{
			Kind:               kind,
			RepresentativeLine: a.representative,
			Count:              a.count,
		})
	}
	return out
}

func normalize(line string) string {
	line = ansiEscape.ReplaceAllString(line, "")
	line = leadingTimestamp.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}
