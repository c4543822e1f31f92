package sim

import (
	"log/slog"

	"github.com/pthm-cable/shoal/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and writes it out.
func (s *Simulation) flushTelemetry() {
	if !s.collector.ShouldFlush(s.step) {
		return
	}

	var res telemetry.ResourceTotals
	for g := 0; g < s.resources.NumGroups(); g++ {
		res.Biomass += s.resources.TotalBiomass(g)
		res.Consumed += s.resources.TotalConsumed(g)
	}

	stats := s.collector.Flush(s.step, s.Samples(), res)
	perfStats := s.perf.Flush()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}
	s.metrics.ObserveWindow(stats)

	// Console output
	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if s.output != nil {
		if err := s.output.WriteWindow(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := s.output.WritePerf(perfStats, stats.WindowEndStep); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}
