// Package collectors adapts pkg/providers into the pipeline's evidence-slot
// contract: deterministic, idempotent functions that populate one Evidence
// slot each, never overwrite an already-populated slot, and always record
// provider status rather than leaving a slot silently zero-valued.
package collectors

import (
	"context"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// Set bundles the providers a playbook may draw collectors from. A nil
// field means that capability was not configured (e.g. AWS/GitHub evidence
// disabled) and its collector returns SlotUnavailable without attempting a
// call.
type Set struct {
	K8s     providers.K8sProvider
	Metrics providers.MetricsProvider
	Logs    providers.LogsProvider
	AWS     providers.AWSProvider
	Change  providers.ChangeProvider
}

// CollectK8s populates ev.K8s unless already populated.
func (s *Set) CollectK8s(ctx context.Context, ev *models.Evidence, identity models.Identity) {
	if ev.K8s.Status != "" {
		return
	}
	if s.K8s == nil {
		ev.K8s = models.K8sContextSlot{Status: models.SlotUnavailable, Reason: "k8s provider not configured"}
		return
	}
	ev.K8s = s.K8s.FetchContext(ctx, identity)
}

// CollectMetrics populates ev.Metrics unless already populated.
func (s *Set) CollectMetrics(ctx context.Context, ev *models.Evidence, identity models.Identity, window time.Duration) {
	if ev.Metrics.Status != "" {
		return
	}
	if s.Metrics == nil {
		ev.Metrics = models.MetricsSlot{Status: models.SlotUnavailable, Reason: "metrics provider not configured"}
		return
	}
	ev.Metrics = s.Metrics.FetchMetrics(ctx, identity, window)
}

// CollectLogs populates ev.Logs unless already populated. A Pod identity
// queries directly; an owner-shaped identity (e.g. a Job) first tries to
// resolve its live pod via the K8s provider, falling back to a historical
// pod-name-prefix regex query across window when no live pod remains (the
// TTL-deleted-pod scenario).
func (s *Set) CollectLogs(ctx context.Context, ev *models.Evidence, identity models.Identity, window time.Duration) {
	if ev.Logs.Status != "" {
		return
	}
	if s.Logs == nil {
		ev.Logs = models.LogsSlot{Status: models.SlotUnavailable, Reason: "logs provider not configured"}
		return
	}

	if identity.Kind == "Pod" {
		ev.Logs = s.Logs.FetchLogs(ctx, identity, window)
		return
	}

	if s.K8s != nil {
		if podName, ok := s.K8s.ResolvePodForOwner(ctx, identity); ok {
			podIdentity := identity
			podIdentity.Kind = "Pod"
			podIdentity.Name = podName
			ev.Logs = s.Logs.FetchLogs(ctx, podIdentity, window)
			return
		}
	}

	ev.Logs = s.Logs.FetchLogsByPrefix(ctx, identity.Namespace, identity.Name, window)
}

// CollectAWS populates ev.AWS unless already populated.
func (s *Set) CollectAWS(ctx context.Context, ev *models.Evidence, identity models.Identity, lookback time.Duration) {
	if ev.AWS.Status != "" {
		return
	}
	if s.AWS == nil {
		ev.AWS = models.AWSSlot{Status: models.SlotUnavailable, Reason: "AWS evidence not enabled"}
		return
	}
	ev.AWS = s.AWS.FetchEvidence(ctx, identity, lookback)
}

// CollectChange populates ev.Change unless already populated.
func (s *Set) CollectChange(ctx context.Context, ev *models.Evidence, identity models.Identity, window time.Duration) {
	if ev.Change.Status != "" {
		return
	}
	if s.Change == nil {
		ev.Change = models.ChangeSlot{Status: models.SlotUnavailable, Reason: "GitHub evidence not enabled"}
		return
	}
	ev.Change = s.Change.FetchChanges(ctx, identity, window)
}
