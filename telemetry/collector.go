package telemetry

import (
	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/mortality"
)

// SchoolSample is the end-of-window state of one living school.
type SchoolSample struct {
	Species      int
	Abundance    float64
	Weight       float64 // tonnes
	Length       float64
	TrophicLevel float64
}

// ResourceTotals holds domain resource totals for the current step.
type ResourceTotals struct {
	Biomass  float64
	Consumed float64
}

// Collector accumulates per-species events within windows of time steps
// and produces WindowStats.
type Collector struct {
	windowSteps  int
	stepsPerYear int
	species      []string

	// Current window tracking
	windowStart int

	deaths [][components.NumCauses]float64 // individuals, per species
	yield  []float64                       // tonnes fished, per species
	preyed []float64                       // tonnes eaten, per species

	iterCells   int
	iterMin     int
	iterMax     int
	iterSum     float64
	unconverged int
}

// NewCollector creates a collector flushing every windowSteps steps.
func NewCollector(windowSteps, stepsPerYear int, species []string) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps:  windowSteps,
		stepsPerYear: max(stepsPerYear, 1),
		species:      species,
		deaths:       make([][components.NumCauses]float64, len(species)),
		yield:        make([]float64, len(species)),
		preyed:       make([]float64, len(species)),
	}
}

// RecordSchool adds the deaths and predation of a school for the step just resolved.
// Must be called before the school's abundance is updated.
func (c *Collector) RecordSchool(s *components.School) {
	if s.Species < 0 || s.Species >= len(c.species) {
		return
	}
	for cause, n := range s.NDead {
		c.deaths[s.Species][cause] += n
	}
	c.yield[s.Species] += s.NDead[components.CauseFishing] * s.Weight
	c.preyed[s.Species] += s.PreyedBiomass
}

// RecordIterations adds the iterative solver effort of one step.
func (c *Collector) RecordIterations(st mortality.IterationStats) {
	if st.Cells == 0 {
		return
	}
	if c.iterCells == 0 || st.Min < c.iterMin {
		c.iterMin = st.Min
	}
	if st.Max > c.iterMax {
		c.iterMax = st.Max
	}
	c.iterSum += st.Mean * float64(st.Cells)
	c.iterCells += st.Cells
	c.unconverged += st.Unconverged
}

// StartAt moves the window start, for runs resumed from a snapshot.
func (c *Collector) StartAt(steps int) {
	c.windowStart = steps
}

// ShouldFlush returns true once the step count since the window start
// reaches the window length. steps is the number of completed steps.
func (c *Collector) ShouldFlush(steps int) bool {
	return steps-c.windowStart >= c.windowSteps
}

// Flush produces a WindowStats and resets counters for the next window.
// schools describes the living population after the last step; steps is
// the number of completed steps.
func (c *Collector) Flush(steps int, schools []SchoolSample, res ResourceTotals) WindowStats {
	year := (steps - 1) / c.stepsPerYear
	if year < 0 {
		year = 0
	}
	stats := WindowStats{
		WindowStartStep:  c.windowStart,
		WindowEndStep:    steps,
		Year:             year,
		Schools:          len(schools),
		ResourceBiomass:  res.Biomass,
		ResourceConsumed: res.Consumed,
		IterMin:          c.iterMin,
		IterMax:          c.iterMax,
		Unconverged:      c.unconverged,
		Mortality:        make([]MortalityRecord, len(c.species)),
		Species:          make([]BiomassRecord, len(c.species)),
	}
	if c.iterCells > 0 {
		stats.IterMean = c.iterSum / float64(c.iterCells)
	}

	for i, name := range c.species {
		d := c.deaths[i]
		m := MortalityRecord{
			WindowEnd:  steps,
			Year:       year,
			Species:    name,
			Predation:  d[components.CausePredation],
			Starvation: d[components.CauseStarvation],
			Additional: d[components.CauseAdditional],
			Fishing:    d[components.CauseFishing],
			Out:        d[components.CauseOut],
			Oxidative:  d[components.CauseOxidative],
			Yield:      c.yield[i],
			Preyed:     c.preyed[i],
		}
		for _, n := range d {
			m.Total += n
		}
		stats.Mortality[i] = m
		stats.Deaths += m.Total
		stats.Yield += m.Yield
	}

	lengths := make([][]float64, len(c.species))
	tls := make([][]float64, len(c.species))
	weights := make([][]float64, len(c.species))
	for _, s := range schools {
		if s.Species < 0 || s.Species >= len(c.species) {
			continue
		}
		b := s.Abundance * s.Weight
		rec := &stats.Species[s.Species]
		rec.Schools++
		rec.Abundance += s.Abundance
		rec.Biomass += b
		lengths[s.Species] = append(lengths[s.Species], s.Length)
		tls[s.Species] = append(tls[s.Species], s.TrophicLevel)
		weights[s.Species] = append(weights[s.Species], b)
		stats.Abundance += s.Abundance
		stats.Biomass += b
	}
	for i, name := range c.species {
		rec := &stats.Species[i]
		rec.WindowEnd = steps
		rec.Year = year
		rec.Species = name
		rec.MeanTL, _, _, _ = ComputeDistribution(tls[i], weights[i])
		rec.LengthMean, rec.LengthP10, rec.LengthP50, rec.LengthP90 = ComputeDistribution(lengths[i], nil)
	}

	// Reset for next window
	c.windowStart = steps
	for i := range c.species {
		c.deaths[i] = [components.NumCauses]float64{}
		c.yield[i] = 0
		c.preyed[i] = 0
	}
	c.iterCells, c.iterMin, c.iterMax, c.iterSum, c.unconverged = 0, 0, 0, 0, 0

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}
