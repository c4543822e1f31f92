package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pthm-cable/shoal/components"
)

var (
	// deathsTotal counts individuals removed by species and cause
	deathsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoal_deaths_total",
		Help: "Individuals removed by species and mortality cause",
	}, []string{"species", "cause"})

	// yieldTonnes counts fished biomass by species
	yieldTonnes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoal_yield_tonnes_total",
		Help: "Fished biomass in tonnes by species",
	}, []string{"species"})

	// cellIterations tracks iterative solver rounds per cell
	cellIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shoal_cell_iterations",
		Help:    "Iterative mortality solver rounds per cell-step",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	// stepDuration tracks wall time per simulation step
	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shoal_step_duration_seconds",
		Help:    "Simulation step duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})

	// schoolsGauge is the number of living schools
	schoolsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoal_schools",
		Help: "Living schools after the last step",
	})

	// biomassGauge is the biomass by species after the last window
	biomassGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shoal_biomass_tonnes",
		Help: "Species biomass in tonnes at the end of the last stats window",
	}, []string{"species"})
)

// Metrics exports simulation state to Prometheus. A nil *Metrics is a no-op.
type Metrics struct {
	species []string
	causes  []string
}

// NewMetrics returns metrics labelled with the given species names.
func NewMetrics(species []string) *Metrics {
	m := &Metrics{species: species}
	for _, c := range components.Causes() {
		m.causes = append(m.causes, c.String())
	}
	return m
}

// ObserveSchool adds a school's deaths for the step just resolved.
func (m *Metrics) ObserveSchool(s *components.School) {
	if m == nil || s.Species < 0 || s.Species >= len(m.species) {
		return
	}
	name := m.species[s.Species]
	for c, n := range s.NDead {
		if n > 0 {
			deathsTotal.WithLabelValues(name, m.causes[c]).Add(n)
		}
	}
	if f := s.NDead[components.CauseFishing]; f > 0 {
		yieldTonnes.WithLabelValues(name).Add(f * s.Weight)
	}
}

// ObserveCellIterations records the solver rounds of one cell.
func (m *Metrics) ObserveCellIterations(n int) {
	if m == nil {
		return
	}
	cellIterations.Observe(float64(n))
}

// ObserveStep records the duration and population after a step.
func (m *Metrics) ObserveStep(seconds float64, schools int) {
	if m == nil {
		return
	}
	stepDuration.Observe(seconds)
	schoolsGauge.Set(float64(schools))
}

// ObserveWindow publishes the per-species biomass of a window.
func (m *Metrics) ObserveWindow(stats WindowStats) {
	if m == nil {
		return
	}
	for _, b := range stats.Species {
		biomassGauge.WithLabelValues(b.Species).Set(b.Biomass)
	}
}
