package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustParse(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAllowlist_EmptyPermitsEverything(t *testing.T) {
	var a Allowlist
	assert.True(t, a.Permits("Watchdog"))
}

func TestAllowlist_ExactCaseSensitiveMatch(t *testing.T) {
	a := NewAllowlist([]string{"CPUThrottlingHigh"})
	assert.True(t, a.Permits("CPUThrottlingHigh"))
	assert.False(t, a.Permits("cputhrottlinghigh"))
	assert.False(t, a.Permits("Watchdog"))
}

func TestDedupBucket_SameFourHourWindowProducesSameBucket(t *testing.T) {
	t1 := mustParse("2026-07-31T10:00:00Z")
	t2 := mustParse("2026-07-31T13:59:00Z")
	t3 := mustParse("2026-07-31T14:01:00Z")
	assert.Equal(t, DedupBucket(t1), DedupBucket(t2))
	assert.NotEqual(t, DedupBucket(t1), DedupBucket(t3))
}
