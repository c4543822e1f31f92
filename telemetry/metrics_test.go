package telemetry

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pthm-cable/shoal/components"
)

// gathered returns the value of the first sample of a metric family whose
// labels include every given pair.
func gathered(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func TestMetricsObserveSchool(t *testing.T) {
	m := NewMetrics([]string{"metrics_sprat"})

	s := &components.School{Species: 0, Weight: 0.5}
	s.NDead[components.CauseFishing] = 4
	s.NDead[components.CausePredation] = 6
	m.ObserveSchool(s)
	m.ObserveSchool(&components.School{Species: 3}) // out of range

	if v := gathered(t, "shoal_deaths_total", map[string]string{"species": "metrics_sprat", "cause": "fishing"}); v != 4 {
		t.Errorf("fishing deaths = %v, want 4", v)
	}
	if v := gathered(t, "shoal_deaths_total", map[string]string{"species": "metrics_sprat", "cause": "predation"}); v != 6 {
		t.Errorf("predation deaths = %v, want 6", v)
	}
	if v := gathered(t, "shoal_yield_tonnes_total", map[string]string{"species": "metrics_sprat"}); math.Abs(v-2) > 1e-12 {
		t.Errorf("yield = %v, want 2", v)
	}
}

func TestMetricsObserveWindow(t *testing.T) {
	m := NewMetrics([]string{"metrics_cod"})
	m.ObserveWindow(WindowStats{Species: []BiomassRecord{{Species: "metrics_cod", Biomass: 12.5}}})
	m.ObserveStep(0.01, 42)

	if v := gathered(t, "shoal_biomass_tonnes", map[string]string{"species": "metrics_cod"}); v != 12.5 {
		t.Errorf("biomass = %v, want 12.5", v)
	}
	if v := gathered(t, "shoal_schools", nil); v != 42 {
		t.Errorf("schools = %v, want 42", v)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	// All methods are no-ops on a nil receiver
	m.ObserveSchool(&components.School{})
	m.ObserveCellIterations(3)
	m.ObserveStep(0.1, 1)
	m.ObserveWindow(WindowStats{})
}
