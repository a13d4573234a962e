package ingestion

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// QueuePublisher enqueues a job onto the durable queue, keyed by
// (identity, family, dedup_bucket) with publish-time dedup. Implemented by
// pkg/queue; ingestion depends only on this narrow interface to avoid
// importing the queue's storage internals.
type QueuePublisher interface {
	Publish(ctx context.Context, job models.InvestigationJob) error
}

// Handler wires the ingestion pipeline's steps (parse, allowlist, identity,
// freshness gate, publish) behind gin HTTP handlers.
type Handler struct {
	Allowlist Allowlist
	K8s       providers.K8sProvider // optional: owner-chain resolution for rollout-noisy alerts
	Gate      *FreshnessGate
	Queue     QueuePublisher
	Stats     *Stats
}

// RegisterRoutes attaches POST /alerts and GET /healthz to r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/alerts", h.handleAlerts)
	r.GET("/healthz", h.handleHealthz)
}

func (h *Handler) handleAlerts(c *gin.Context) {
	payload, err := decodeWebhook(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	bucket := DedupBucket(now)

	for _, a := range payload.Alerts {
		h.Stats.Received.Add(1)
		receivedTotal.Inc()

		if a.Status == "resolved" {
			continue
		}

		alertname := a.Labels["alertname"]
		if !h.Allowlist.Permits(alertname) {
			h.Stats.SkippedAllowlist.Add(1)
			skippedAllowlistTotal.Inc()
			continue
		}

		identity := resolveIdentity(c.Request.Context(), alertname, a.Labels, h.K8s)
		family := resolveFamily(alertname, identity)

		if rolloutNoisyAlertnames[alertname] && h.Gate != nil {
			key := IdentityKey(identity)
			if !h.Gate.Allow(c.Request.Context(), key, family) {
				h.Stats.SkippedFreshness.Add(1)
				skippedFreshnessTotal.Inc()
				continue
			}
			h.Gate.MarkEnqueued(c.Request.Context(), key, family)
		}

		instance := models.AlertInstance{
			Fingerprint: a.Fingerprint,
			AlertName:   alertname,
			Status:      a.Status,
			Labels:      a.Labels,
			Annotations: a.Annotations,
			StartsAt:    a.StartsAt,
			EndsAt:      a.EndsAt,
			ReceivedAt:  now,
		}

		job := models.InvestigationJob{
			ID:          uuid.NewString(),
			Alert:       instance,
			Identity:    identity,
			Family:      family,
			IdentityKey: IdentityKey(identity),
			DedupBucket: bucket,
			Status:      models.JobQueued,
			EnqueuedAt:  now,
		}

		if err := h.Queue.Publish(c.Request.Context(), job); err != nil {
			slog.Error("ingestion: queue publish failed", "alertname", alertname, "error", err)
			h.Stats.PublishFailed.Add(1)
			publishFailedTotal.Inc()
			c.JSON(http.StatusBadGateway, gin.H{"error": "queue publish failed"})
			return
		}

		h.Stats.Enqueued.Add(1)
		enqueuedTotal.Inc()
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "stats": h.Stats.Snapshot()})
}

func (h *Handler) handleHealthz(c *gin.Context) {
	status := "ok"
	components := gin.H{"queue": "ok"}
	if h.Queue == nil {
		status = "degraded"
		components["queue"] = "unconfigured"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"components": components,
		"stats":      h.Stats.Snapshot(),
	})
}
