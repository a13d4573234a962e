package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarkyaio/tarka/pkg/models"
)

// rolloutNoisyFreshness is the 1h window within which a second alert for
// the same (identity, family) is skipped rather than re-investigated.
const rolloutNoisyFreshness = time.Hour

// LastRunLookup resolves the most recent run time for an (identity, family)
// pair from the relational index — the Postgres fallback path when Redis
// doesn't have (or has evicted) the cached marker. Implemented by
// pkg/services over the `cases`/`runs` tables.
type LastRunLookup func(ctx context.Context, identityKey string, family models.Family) (time.Time, bool, error)

// FreshnessGate enforces the 1-hour rollout-noisy freshness rule: at most
// one run per (identity, family) per rolling hour. Redis is the hot path
// (TTL'd marker set on every accepted enqueue); a Postgres lookup covers a
// cold cache, mirroring the teacher's Deduplicator Redis-then-Postgres
// shape.
type FreshnessGate struct {
	redis    *redis.Client
	fallback LastRunLookup
	window   time.Duration
}

// NewFreshnessGate builds a FreshnessGate. redisClient may be nil, in which
// case every check falls straight through to fallback.
func NewFreshnessGate(redisClient *redis.Client, fallback LastRunLookup) *FreshnessGate {
	return &FreshnessGate{redis: redisClient, fallback: fallback, window: rolloutNoisyFreshness}
}

// Allow reports whether a rollout-noisy (identity, family) pair is allowed
// to enqueue a new run right now. A false return means "skip, too fresh".
// On any Redis error it falls back to the Postgres lookup rather than
// failing the request — the freshness gate degrades to slower-but-correct,
// never to blocking ingestion outright.
func (g *FreshnessGate) Allow(ctx context.Context, identityKey string, family models.Family) bool {
	key := freshnessCacheKey(identityKey, family)

	if g.redis != nil {
		exists, err := g.redis.Exists(ctx, key).Result()
		if err == nil {
			if exists > 0 {
				return false
			}
		} else {
			slog.Warn("ingestion: freshness redis check failed, falling back to index lookup", "error", err)
		}
	}

	if g.fallback != nil {
		last, found, err := g.fallback(ctx, identityKey, family)
		if err != nil {
			slog.Warn("ingestion: freshness fallback lookup failed, allowing enqueue", "error", err)
			return true
		}
		if found && time.Since(last) < g.window {
			return false
		}
	}

	return true
}

// MarkEnqueued records that a run was just enqueued for (identityKey,
// family), setting the Redis hot-path marker with the freshness window as
// its TTL. Safe to call even when Redis is unavailable: the fallback lookup
// still has the real enqueue/run time once persisted.
func (g *FreshnessGate) MarkEnqueued(ctx context.Context, identityKey string, family models.Family) {
	if g.redis == nil {
		return
	}
	key := freshnessCacheKey(identityKey, family)
	if err := g.redis.Set(ctx, key, "1", g.window).Err(); err != nil {
		slog.Warn("ingestion: failed to set freshness marker", "error", err)
	}
}

func freshnessCacheKey(identityKey string, family models.Family) string {
	return fmt.Sprintf("tarka:freshness:%s:%s", identityKey, family)
}

// IdentityKey derives a stable string key for an Identity, used both as the
// freshness-gate cache key and (truncated) as part of the dedup bucket the
// durable queue keys on.
func IdentityKey(id models.Identity) string {
	return fmt.Sprintf("%s/%s/%s/%s", id.Cluster, id.Kind, id.Namespace, id.Name)
}

// DedupBucket computes floor(now / 4h) as a Unix-second bucket boundary, the
// coarse time partition the durable queue's publish-time dedup window keys
// on alongside (identity, family).
func DedupBucket(now time.Time) int64 {
	const bucketWidth = 4 * time.Hour
	return now.Unix() / int64(bucketWidth.Seconds())
}
