// Package providers implements Tarka's capability interfaces over external
// systems: Prometheus metrics, Kubernetes objects, log backends (Loki or
// VictoriaLogs), AWS CloudTrail/EC2 evidence, and GitHub change history.
// Every provider method returns (data, status) and never panics for an
// expected failure (auth error, timeout, empty result set) — callers branch
// on the returned models.SlotStatus instead of on error type, so a
// provider being unreachable degrades a single evidence slot rather than
// aborting the investigation.
package providers

import (
	"context"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// MetricsProvider fetches metric series for an identity over a time window.
type MetricsProvider interface {
	FetchMetrics(ctx context.Context, identity models.Identity, window time.Duration) models.MetricsSlot
}

// K8sProvider resolves the Kubernetes object graph for an identity:
// read-only, never mutating cluster state.
type K8sProvider interface {
	FetchContext(ctx context.Context, identity models.Identity) models.K8sContextSlot

	// ResolvePodForOwner finds the live pod backing an owner-shaped identity
	// (e.g. a Job), the pod-for-job resolution capability. Returns
	// (name, false) when no live pod remains — the caller falls back to a
	// historical, prefix-matched log query instead.
	ResolvePodForOwner(ctx context.Context, identity models.Identity) (podName string, found bool)
}

// LogsProvider fetches and the deterministic parser already-run log
// evidence for an identity over a time window.
type LogsProvider interface {
	// FetchLogs queries logs for an exact (namespace, pod) pair.
	FetchLogs(ctx context.Context, identity models.Identity, window time.Duration) models.LogsSlot

	// FetchLogsByPrefix is the historical-fallback query used when no live
	// pod exists for an owner-shaped identity (a TTL-deleted Job pod): it
	// regex-matches any pod in namespace whose name starts with podPrefix,
	// across window.
	FetchLogsByPrefix(ctx context.Context, namespace, podPrefix string, window time.Duration) models.LogsSlot
}

// AWSProvider fetches CloudTrail/EC2 evidence for an AWS-resident identity.
type AWSProvider interface {
	FetchEvidence(ctx context.Context, identity models.Identity, lookback time.Duration) models.AWSSlot
}

// ChangeProvider fetches recent commits/workflow runs plausibly correlated
// with an alert, when a source repository can be inferred for the identity.
type ChangeProvider interface {
	FetchChanges(ctx context.Context, identity models.Identity, window time.Duration) models.ChangeSlot
}
