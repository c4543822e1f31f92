package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MortalityRecord holds the deaths of one species over a stats window.
// Cause columns count individuals; Yield is the fished biomass in tonnes.
type MortalityRecord struct {
	WindowEnd  int     `csv:"window_end"`
	Year       int     `csv:"year"`
	Species    string  `csv:"species"`
	Predation  float64 `csv:"predation"`
	Starvation float64 `csv:"starvation"`
	Additional float64 `csv:"additional"`
	Fishing    float64 `csv:"fishing"`
	Out        float64 `csv:"out"`
	Oxidative  float64 `csv:"oxidative"`
	Total      float64 `csv:"total"`
	Yield      float64 `csv:"yield"`
	Preyed     float64 `csv:"preyed"` // tonnes eaten by the species
}

// BiomassRecord holds the state of one species at the end of a stats window.
type BiomassRecord struct {
	WindowEnd  int     `csv:"window_end"`
	Year       int     `csv:"year"`
	Species    string  `csv:"species"`
	Schools    int     `csv:"schools"`
	Abundance  float64 `csv:"abundance"`
	Biomass    float64 `csv:"biomass"`
	MeanTL     float64 `csv:"mean_tl"` // biomass weighted
	LengthMean float64 `csv:"length_mean"`
	LengthP10  float64 `csv:"length_p10"`
	LengthP50  float64 `csv:"length_p50"`
	LengthP90  float64 `csv:"length_p90"`
}

// WindowStats holds aggregated statistics for a stats window.
type WindowStats struct {
	WindowStartStep int `csv:"-"`
	WindowEndStep   int `csv:"window_end"`
	Year            int `csv:"year"`

	// Population at window end
	Schools   int     `csv:"schools"`
	Abundance float64 `csv:"abundance"`
	Biomass   float64 `csv:"biomass"`

	// Events during window
	Deaths float64 `csv:"deaths"`
	Yield  float64 `csv:"yield"`

	// Resources at window end
	ResourceBiomass  float64 `csv:"resource_biomass"`
	ResourceConsumed float64 `csv:"resource_consumed"`

	// Iterative solver effort over the window
	IterMin     int     `csv:"iter_min"`
	IterMax     int     `csv:"iter_max"`
	IterMean    float64 `csv:"iter_mean"`
	Unconverged int     `csv:"unconverged"`

	Mortality []MortalityRecord `csv:"-"`
	Species   []BiomassRecord   `csv:"-"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution calculates the weighted mean and unweighted
// percentiles of values. weights may be nil.
func ComputeDistribution(values, weights []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	if weights != nil {
		var w float64
		for _, x := range weights {
			w += x
		}
		if w <= 0 {
			weights = nil
		}
	}
	mean = stat.Mean(values, weights)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)
	return mean, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartStep),
		slog.Int("window_end", s.WindowEndStep),
		slog.Int("year", s.Year),
		slog.Int("schools", s.Schools),
		slog.Float64("abundance", s.Abundance),
		slog.Float64("biomass", s.Biomass),
		slog.Float64("deaths", s.Deaths),
		slog.Float64("yield", s.Yield),
		slog.Float64("resource_biomass", s.ResourceBiomass),
		slog.Float64("resource_consumed", s.ResourceConsumed),
		slog.Int("iter_min", s.IterMin),
		slog.Int("iter_max", s.IterMax),
		slog.Float64("iter_mean", s.IterMean),
		slog.Int("unconverged", s.Unconverged),
	)
}

// LogStats logs the window stats and one line per species using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
	for i, b := range s.Species {
		attrs := []any{
			"window_end", b.WindowEnd,
			"species", b.Species,
			"schools", b.Schools,
			"biomass", b.Biomass,
			"mean_tl", b.MeanTL,
		}
		if i < len(s.Mortality) {
			m := s.Mortality[i]
			attrs = append(attrs,
				"predation", m.Predation,
				"starvation", m.Starvation,
				"additional", m.Additional,
				"fishing", m.Fishing,
				"out", m.Out,
				"yield", m.Yield,
			)
		}
		slog.Info("species", attrs...)
	}
}
