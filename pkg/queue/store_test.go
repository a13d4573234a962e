package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, backoff(c.attempts))
	}
}

func TestBackoffCapsAtMax(t *testing.T) {
	d := backoff(20)
	assert.Equal(t, 5*time.Minute, d)
}

func TestBackoffMonotonicUntilCap(t *testing.T) {
	prev := time.Duration(0)
	for attempts := 0; attempts < 8; attempts++ {
		d := backoff(attempts)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}
