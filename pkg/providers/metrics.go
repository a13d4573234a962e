package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/tarkyaio/tarka/pkg/models"
)

// podSeriesNames are the container/pod metrics pulled for every identity;
// a small fixed set keeps the query volume predictable regardless of alert
// family, with diagnostic modules selecting what matters from the result.
var podSeriesNames = []string{
	"container_memory_working_set_bytes",
	"container_cpu_cfs_throttled_periods_total",
	"container_cpu_cfs_periods_total",
	"kube_pod_container_status_restarts_total",
}

// PrometheusProvider implements MetricsProvider against a Prometheus (or
// Prometheus-API-compatible) server.
type PrometheusProvider struct {
	client promv1.API
}

// NewPrometheusProvider builds a provider from a base URL. Returns an error
// only if the URL itself is malformed; connectivity failures surface later
// as an "unavailable" slot, not a constructor error.
func NewPrometheusProvider(baseURL string) (*PrometheusProvider, error) {
	client, err := promapi.NewClient(promapi.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("providers: build prometheus client: %w", err)
	}
	return &PrometheusProvider{client: promv1.NewAPI(client)}, nil
}

// FetchMetrics queries podSeriesNames for the identity's namespace/pod over
// the given window, using a range query at a resolution proportional to
// the window so series stay small regardless of window size.
func (p *PrometheusProvider) FetchMetrics(ctx context.Context, identity models.Identity, window time.Duration) models.MetricsSlot {
	if identity.Status != models.IdentityOK {
		return models.MetricsSlot{Status: models.SlotUnavailable, Reason: "identity not resolved"}
	}

	now := time.Now()
	step := window / 120
	if step < 15*time.Second {
		step = 15 * time.Second
	}
	r := promv1.Range{Start: now.Add(-window), End: now, Step: step}

	var series []models.MetricSeries
	for _, name := range podSeriesNames {
		query := fmt.Sprintf(`%s{namespace=%q, pod=%q}`, name, identity.Namespace, identity.Name)
		val, warnings, err := p.client.QueryRange(ctx, query, r)
		if err != nil {
			slog.Warn("providers: prometheus query failed", "metric", name, "error", err)
			return models.MetricsSlot{Status: models.SlotUnavailable, Reason: err.Error()}
		}
		for _, w := range warnings {
			slog.Warn("providers: prometheus query warning", "metric", name, "warning", w)
		}
		matrix, ok := val.(model.Matrix)
		if !ok {
			continue
		}
		for _, stream := range matrix {
			s := models.MetricSeries{Name: name, Labels: labelsToMap(stream.Metric)}
			for _, sample := range stream.Values {
				s.Samples = append(s.Samples, models.MetricPoint{
					Timestamp: sample.Timestamp.Time(),
					Value:     float64(sample.Value),
				})
			}
			series = append(series, s)
		}
	}

	if len(series) == 0 {
		return models.MetricsSlot{Status: models.SlotEmpty, FetchedAt: now}
	}
	return models.MetricsSlot{Status: models.SlotOK, Series: series, FetchedAt: now}
}

func labelsToMap(m model.Metric) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = string(v)
	}
	return out
}
