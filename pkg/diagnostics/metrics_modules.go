package diagnostics

import (
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

func init() {
	register(cpuThrottleSaturation{})
	register(memorySaturation{})
	register(restartRateMetric{})
}

// cpuThrottleRatioThreshold is the minimum (throttled/total) periods ratio,
// averaged over the sampled window, that counts as meaningful throttling.
const cpuThrottleRatioThreshold = 0.25

type cpuThrottleSaturation struct{}

func (cpuThrottleSaturation) ID() string { return "metrics.cpu_throttle_saturation" }

func (cpuThrottleSaturation) Applies(ev *models.Evidence) bool {
	if ev.Metrics.Status != models.SlotOK {
		return false
	}
	ratio, ok := throttleRatio(ev.Metrics.Series)
	return ok && ratio >= cpuThrottleRatioThreshold
}

func (cpuThrottleSaturation) Run(ev *models.Evidence) *models.Finding {
	ratio, ok := throttleRatio(ev.Metrics.Series)
	if !ok {
		return nil
	}
	return &models.Finding{
		ModuleID: "metrics.cpu_throttle_saturation",
		Summary:  fmt.Sprintf("CPU throttled %.0f%% of sampled periods", ratio*100),
		Severity: "warning",
		Evidence: []string{"metrics.series[container_cpu_cfs_throttled_periods_total]"},
	}
}

func throttleRatio(series []models.MetricSeries) (float64, bool) {
	var throttled, total *models.MetricSeries
	for i := range series {
		switch series[i].Name {
		case "container_cpu_cfs_throttled_periods_total":
			throttled = &series[i]
		case "container_cpu_cfs_periods_total":
			total = &series[i]
		}
	}
	if throttled == nil || total == nil || len(throttled.Samples) == 0 || len(total.Samples) == 0 {
		return 0, false
	}
	tLast := throttled.Samples[len(throttled.Samples)-1].Value
	totLast := total.Samples[len(total.Samples)-1].Value
	if totLast <= 0 {
		return 0, false
	}
	return tLast / totLast, true
}

const memorySaturationThreshold = 0.90

type memorySaturation struct{}

func (memorySaturation) ID() string { return "metrics.memory_saturation" }

func (memorySaturation) Applies(ev *models.Evidence) bool {
	_, ok := peakMemoryBytes(ev.Metrics.Series)
	return ev.Metrics.Status == models.SlotOK && ok
}

func (memorySaturation) Run(ev *models.Evidence) *models.Finding {
	peak, ok := peakMemoryBytes(ev.Metrics.Series)
	if !ok {
		return nil
	}
	return &models.Finding{
		ModuleID: "metrics.memory_saturation",
		Summary:  fmt.Sprintf("peak working-set memory observed: %.0f bytes", peak),
		Severity: "info",
		Evidence: []string{"metrics.series[container_memory_working_set_bytes]"},
	}
}

func peakMemoryBytes(series []models.MetricSeries) (float64, bool) {
	for _, s := range series {
		if s.Name != "container_memory_working_set_bytes" {
			continue
		}
		var peak float64
		for _, pt := range s.Samples {
			if pt.Value > peak {
				peak = pt.Value
			}
		}
		return peak, peak > 0
	}
	return 0, false
}

const restartRateThreshold = 3

type restartRateMetric struct{}

func (restartRateMetric) ID() string { return "metrics.restart_rate" }

func (restartRateMetric) Applies(ev *models.Evidence) bool {
	delta, ok := restartDelta(ev.Metrics.Series)
	return ev.Metrics.Status == models.SlotOK && ok && delta >= restartRateThreshold
}

func (restartRateMetric) Run(ev *models.Evidence) *models.Finding {
	delta, ok := restartDelta(ev.Metrics.Series)
	if !ok {
		return nil
	}
	return &models.Finding{
		ModuleID: "metrics.restart_rate",
		Summary:  fmt.Sprintf("container restarts increased by %.0f over the sampled window", delta),
		Severity: "warning",
		Evidence: []string{"metrics.series[kube_pod_container_status_restarts_total]"},
	}
}

func restartDelta(series []models.MetricSeries) (float64, bool) {
	for _, s := range series {
		if s.Name != "kube_pod_container_status_restarts_total" || len(s.Samples) < 2 {
			continue
		}
		first := s.Samples[0].Value
		last := s.Samples[len(s.Samples)-1].Value
		return last - first, last-first > 0
	}
	return 0, false
}
