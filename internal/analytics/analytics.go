package analytics

import (
	"github.com/August26/proxyprobe/internal/model"
)

// Compute aggregates a report into batch stats. Average latency only counts
// working proxies.
func Compute(report model.ProbeReport) model.BatchStats {
	stats := model.BatchStats{
		TotalProxies:          len(report.All),
		WorkingProxies:        len(report.Working),
		TotalProcessingTimeMs: report.Duration.Milliseconds(),
	}

	seen := make(map[string]struct{})

	var latencySum int64
	var latencyCount int64

	for _, o := range report.All {
		key := string(o.Endpoint.Scheme) + "://" + o.Endpoint.Address()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
		}

		switch o.Status {
		case model.StatusWorking:
			if o.Latency > 0 {
				latencySum += o.Latency.Milliseconds()
				latencyCount++
			}
		case model.StatusHTTPError:
			stats.HTTPErrors++
		case model.StatusNetworkError, model.StatusUnknown:
			stats.NetworkErrors++
		case model.StatusTimeout:
			stats.Timeouts++
		}
	}

	stats.UniqueProxies = len(seen)

	if latencyCount > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	if stats.TotalProxies > 0 {
		stats.SuccessRatePct = float64(stats.WorkingProxies) / float64(stats.TotalProxies) * 100.0
	}

	return stats
}
