package logparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyInput(t *testing.T) {
	out := Parse(nil)
	assert.Empty(t, out)
}

func TestParse_NoRecognizablePatterns(t *testing.T) {
	lines := []string{
		"2026-07-31T10:00:00Z starting server on :8080",
		"2026-07-31T10:00:01Z accepted connection from 10.0.0.1",
	}
	out := Parse(lines)
	assert.Empty(t, out)
}

func TestParse_DedupsByKindAndCounts(t *testing.T) {
	lines := []string{
		"2026-07-31T10:00:00Z ERROR: failed to connect to database",
		"2026-07-31T10:00:01Z ERROR: failed to connect to database",
		"2026-07-31T10:00:02Z ERROR: failed to connect to database",
	}
	out := Parse(lines)
	require.Len(t, out, 1)
	assert.Equal(t, "error_prefix", out[0].Kind)
	assert.Equal(t, 3, out[0].Count)
	assert.Contains(t, out[0].RepresentativeLine, "failed to connect to database")
}

func TestParse_StripsANSIAndTimestampBeforeMatching(t *testing.T) {
	lines := []string{
		"\x1b[31m2026-07-31T10:00:00.123Z ERROR: boom\x1b[0m",
		"2026-07-31T10:00:01Z ERROR: boom",
	}
	out := Parse(lines)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Count)
	assert.NotContains(t, out[0].RepresentativeLine, "\x1b")
}

func TestParse_MultipleKindsPreserveOrder(t *testing.T) {
	lines := []string{
		"connection refused by upstream",
		"FATAL: unrecoverable state",
		"request timed out after 30s",
	}
	out := Parse(lines)
	require.Len(t, out, 3)
	assert.Equal(t, "fatal_prefix", out[0].Kind)
	assert.Equal(t, "connection", out[1].Kind)
	assert.Equal(t, "timeout", out[2].Kind)
}

func TestParse_OOMKilled(t *testing.T) {
	lines := []string{"container process was OOM-killed by the kernel"}
	out := Parse(lines)
	require.Len(t, out, 1)
	assert.Equal(t, "oom", out[0].Kind)
}

func TestParse_JavaException(t *testing.T) {
	lines := []string{"java.lang.NullPointerException: Cannot invoke method on null object"}
	out := Parse(lines)
	require.Len(t, out, 1)
	assert.Equal(t, "exception", out[0].Kind)
}

func TestParse_HTTP5xx(t *testing.T) {
	lines := []string{"upstream request failed with status 503 Service Unavailable"}
	out := Parse(lines)
	require.Len(t, out, 1)
	assert.Equal(t, "http_status_5xx", out[0].Kind)
}
