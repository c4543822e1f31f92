package mortality

import (
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/systems"
)

// ScenarioKind tags the variant a species' mortality time series resolved to.
type ScenarioKind uint8

const (
	KindZero ScenarioKind = iota
	KindConstant
	KindByDt
	KindByDtByClass
	KindSeasonal
	KindByYearBySeason
	KindCatchesByDtByClass
)

func (k ScenarioKind) String() string {
	switch k {
	case KindZero:
		return "zero"
	case KindConstant:
		return "constant"
	case KindByDt:
		return "by_dt"
	case KindByDtByClass:
		return "by_dt_by_class"
	case KindSeasonal:
		return "seasonal"
	case KindByYearBySeason:
		return "by_year_by_season"
	case KindCatchesByDtByClass:
		return "catches_by_dt_by_class"
	}
	return "unknown"
}

// Scenario yields a per-step value for a school: a hazard for rate scenarios,
// tonnes for catches scenarios. Variants are picked once when the process is built.
type Scenario interface {
	Value(s *SchoolState, step int) float64
	Kind() ScenarioKind
}

type zeroScenario struct{}

func (zeroScenario) Value(*SchoolState, int) float64 { return 0 }
func (zeroScenario) Kind() ScenarioKind              { return KindZero }

type constantScenario struct {
	v float64
}

func (c constantScenario) Value(*SchoolState, int) float64 { return c.v }
func (c constantScenario) Kind() ScenarioKind              { return KindConstant }

// byDtScenario cycles over a per-step series.
type byDtScenario struct {
	series []float64
}

func (b byDtScenario) Value(_ *SchoolState, step int) float64 {
	return b.series[cycle(step, len(b.series))]
}
func (b byDtScenario) Kind() ScenarioKind { return KindByDt }

// classTable is a per-step table of values by age (years) or size (cm) class.
type classTable struct {
	bySize       bool
	thresholds   []float64
	values       [][]float64
	stepsPerYear int
}

func newClassTable(cs *config.ClassSeriesConfig, stepsPerYear int) classTable {
	return classTable{
		bySize:       cs.Structure == "size",
		thresholds:   cs.Thresholds,
		values:       cs.Values,
		stepsPerYear: stepsPerYear,
	}
}

// class returns the class of a school, -1 when below the first threshold.
func (t classTable) class(s *SchoolState) int {
	if t.bySize {
		return systems.ClassIndex(t.thresholds, s.Length)
	}
	return systems.ClassIndex(t.thresholds, float64(s.AgeDt)/float64(t.stepsPerYear))
}

func (t classTable) at(step, class int) float64 {
	if class < 0 {
		return 0
	}
	return t.values[cycle(step, len(t.values))][class]
}

type byDtByClassScenario struct {
	table classTable
}

func (b byDtByClassScenario) Value(s *SchoolState, step int) float64 {
	return b.table.at(step, b.table.class(s))
}
func (b byDtByClassScenario) Kind() ScenarioKind { return KindByDtByClass }

// seasonalScenario spreads an annual value over the year with a season vector.
type seasonalScenario struct {
	annual float64
	season []float64
}

func (a seasonalScenario) Value(_ *SchoolState, step int) float64 {
	return a.annual * a.season[step%len(a.season)]
}
func (a seasonalScenario) Kind() ScenarioKind { return KindSeasonal }

// byYearBySeasonScenario spreads a per-year value over each year with a season vector.
type byYearBySeasonScenario struct {
	annual []float64
	season []float64
}

func (a byYearBySeasonScenario) Value(_ *SchoolState, step int) float64 {
	spy := len(a.season)
	return a.annual[cycle(step/spy, len(a.annual))] * a.season[step%spy]
}
func (a byYearBySeasonScenario) Kind() ScenarioKind { return KindByYearBySeason }

// cycle wraps i into [0, n), so short series repeat.
func cycle(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// seasonOrUniform returns the configured season or 1/stepsPerYear for every step.
func seasonOrUniform(season []float64, stepsPerYear int) []float64 {
	if len(season) == stepsPerYear {
		return season
	}
	out := make([]float64, stepsPerYear)
	for i := range out {
		out[i] = 1 / float64(stepsPerYear)
	}
	return out
}
