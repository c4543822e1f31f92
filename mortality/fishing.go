package mortality

import (
	"log/slog"
	"math"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/systems"
)

// CatchesEpsilon is the biomass (tonnes) below which requested catches
// are converted with a floored hazard instead of ln(0).
const CatchesEpsilon = 0.01

// spatialTolerance bounds the deviation of a fishing map's ocean sum from 1.
const spatialTolerance = 1e-2

// FishingType is the global fishing scenario family.
type FishingType uint8

const (
	FishingRate FishingType = iota
	FishingCatches
)

// ParseFishingType maps the config value to a FishingType.
func ParseFishingType(s string) FishingType {
	if s == "catches" {
		return FishingCatches
	}
	return FishingRate
}

// Fishing provides fishing hazards (rate family) or catches (catches family),
// corrected for protected areas and an optional spatial effort map.
type Fishing struct {
	kind      FishingType
	scenarios []Scenario
	tables    []*classTable // catches by class, per species

	recruitmentDt   []int     // -1 when unset
	recruitmentSize []float64 // -1 when unset

	spatial []*systems.GridMap
	mpas    *systems.MPASet
	factor  [][]float64 // species -> cell, MPA correction

	// fishable[species][class] is the fishable biomass of the domain at the last refresh
	fishable [][]float64
}

// NewFishing resolves every species' fishing scenario for the global family.
// Species without a scenario get zero with a warning. Spatial maps must sum
// to 1 over the ocean cells.
func NewFishing(cfg *config.Config, maps map[string]*systems.GridMap, grid *systems.Grid, mpas *systems.MPASet) (*Fishing, error) {
	n := len(cfg.Species)
	f := &Fishing{
		kind:            ParseFishingType(cfg.Fishing.Type),
		scenarios:       make([]Scenario, n),
		tables:          make([]*classTable, n),
		recruitmentDt:   make([]int, n),
		recruitmentSize: make([]float64, n),
		spatial:         make([]*systems.GridMap, n),
		mpas:            mpas,
		factor:          make([][]float64, n),
		fishable:        make([][]float64, n),
	}
	spy := cfg.Simulation.StepsPerYear

	for i, sp := range cfg.Species {
		fc := sp.Fishing
		season := seasonOrUniform(fc.Season, spy)

		if f.kind == FishingRate {
			switch {
			case fc.RateByDtByClass != nil:
				f.scenarios[i] = byDtByClassScenario{table: newClassTable(fc.RateByDtByClass, spy)}
			case len(fc.RateByYear) > 0:
				f.scenarios[i] = byYearBySeasonScenario{annual: fc.RateByYear, season: season}
			case fc.Rate != nil:
				f.scenarios[i] = seasonalScenario{annual: *fc.Rate, season: season}
			default:
				slog.Warn("no fishing rate scenario, using zero", "species", sp.Name, "key", "fishing.rate")
				f.scenarios[i] = zeroScenario{}
			}
		} else {
			switch {
			case fc.CatchesByDtByClass != nil:
				t := newClassTable(fc.CatchesByDtByClass, spy)
				f.tables[i] = &t
				f.fishable[i] = make([]float64, len(t.thresholds))
				f.scenarios[i] = catchesByClassScenario{table: f.tables[i], fishable: &f.fishable[i]}
			case len(fc.CatchesByYear) > 0:
				f.scenarios[i] = byYearBySeasonScenario{annual: fc.CatchesByYear, season: season}
			case fc.Catches != nil:
				f.scenarios[i] = seasonalScenario{annual: *fc.Catches, season: season}
			default:
				slog.Warn("no fishing catches scenario, using zero", "species", sp.Name, "key", "fishing.catches")
				f.scenarios[i] = zeroScenario{}
			}
		}

		f.recruitmentDt[i] = cfg.Derived.RecruitmentDt[i]
		f.recruitmentSize[i] = -1
		if fc.RecruitmentSize != nil {
			f.recruitmentSize[i] = *fc.RecruitmentSize
		}
		if f.recruitmentDt[i] < 0 && f.recruitmentSize[i] < 0 && f.scenarios[i].Kind() != KindZero {
			slog.Warn("no fishing recruitment age or size, recruiting from age 0", "species", sp.Name, "key", "fishing.recruitment_age")
			f.recruitmentDt[i] = 0
		}

		if fc.SpatialMap != "" {
			m, ok := maps[fc.SpatialMap]
			if !ok {
				return nil, configErr(sp.Name, "fishing.spatial_map", "map %q not loaded", fc.SpatialMap)
			}
			if sum := m.OceanSum(grid); math.Abs(sum-1) > spatialTolerance {
				return nil, configErr(sp.Name, "fishing.spatial_map", "map %q must sum to 1 over ocean cells, got %.4f", fc.SpatialMap, sum)
			}
			f.spatial[i] = m
		}

		slog.Debug("fishing scenario", "species", sp.Name, "scenario", f.scenarios[i].Kind().String())
	}
	return f, nil
}

// Type returns the fishing family.
func (f *Fishing) Type() FishingType {
	return f.kind
}

// ScenarioKind returns the resolved variant of a species.
func (f *Fishing) ScenarioKind(species int) ScenarioKind {
	return f.scenarios[species].Kind()
}

// UpdateMPA recomputes the per-species correction when protected areas changed.
func (f *Fishing) UpdateMPA(step int) {
	if f.mpas == nil {
		return
	}
	if !f.mpas.Update(step) && f.factor[0] != nil {
		return
	}
	for i := range f.factor {
		f.factor[i] = f.mpas.Correction(f.spatial[i])
	}
}

// RefreshFishable recomputes the fishable biomass per species and class
// from the located schools of the domain.
func (f *Fishing) RefreshFishable(schools []SchoolState) {
	f.resetFishable()
	for k := range schools {
		if s := &schools[k]; s.Cell >= 0 {
			f.addFishable(s, s.Biomass())
		}
	}
}

// ClassCatches reports whether some species takes catches by class, whose
// shares depend on the fishable biomass of the whole domain.
func (f *Fishing) ClassCatches() bool {
	for _, t := range f.tables {
		if t != nil {
			return true
		}
	}
	return false
}

func (f *Fishing) resetFishable() {
	for i := range f.fishable {
		clear(f.fishable[i])
	}
}

func (f *Fishing) addFishable(s *SchoolState, biomass float64) {
	t := f.tables[s.Species]
	if t == nil || biomass <= 0 || !f.IsFishable(s) {
		return
	}
	if c := t.class(s); c >= 0 {
		f.fishable[s.Species][c] += biomass
	}
}

// IsFishable reports whether a school has recruited to the fishery. Eggs never are.
func (f *Fishing) IsFishable(s *SchoolState) bool {
	if s.IsEgg() {
		return false
	}
	if d := f.recruitmentDt[s.Species]; d >= 0 {
		return s.AgeDt >= d
	}
	if l := f.recruitmentSize[s.Species]; l >= 0 {
		return s.Length >= l
	}
	return true
}

// cellFactor is the MPA correction times the spatial effort at the school's cell.
func (f *Fishing) cellFactor(s *SchoolState) float64 {
	if s.Cell < 0 {
		return 1
	}
	v := 1.0
	if f.factor[s.Species] != nil {
		v = f.factor[s.Species][s.Cell]
	}
	if m := f.spatial[s.Species]; m != nil {
		v *= m.ValueAt(s.Cell)
	}
	return v
}

// Rate returns the per-step fishing hazard of a school (rate family).
func (f *Fishing) Rate(s *SchoolState, step int) float64 {
	if !f.IsFishable(s) {
		return 0
	}
	return f.scenarios[s.Species].Value(s, step) * f.cellFactor(s)
}

// Catches returns the biomass (tonnes) to remove from a school this step
// (catches family), capped by its instantaneous biomass.
func (f *Fishing) Catches(s *SchoolState, step int, instBiomass float64) float64 {
	if !f.IsFishable(s) {
		return 0
	}
	var c float64
	if cc, ok := f.scenarios[s.Species].(catchesByClassScenario); ok {
		c = cc.share(s, step, instBiomass)
	} else {
		c = f.scenarios[s.Species].Value(s, step)
	}
	return math.Min(c*f.cellFactor(s), instBiomass)
}

// Hazard returns the per-step fishing hazard for either family.
// Catches are converted with CatchesHazard on start-of-step state.
func (f *Fishing) Hazard(s *SchoolState, step int) float64 {
	if f.kind == FishingRate {
		return f.Rate(s, step)
	}
	b := s.Biomass()
	return CatchesHazard(s.Abundance, b, f.Catches(s, step, b), s.Weight)
}

// CatchesHazard converts a biomass catch into the equivalent hazard
// ln(N/(N-caught)). When the catch would leave less than CatchesEpsilon
// tonnes, the hazard is ln(N/CatchesEpsilon).
func CatchesHazard(abundance, biomass, catches, weight float64) float64 {
	if catches <= 0 || abundance <= 0 || weight <= 0 {
		return 0
	}
	if biomass-catches < CatchesEpsilon {
		return math.Log(abundance / CatchesEpsilon)
	}
	return math.Log(abundance / (abundance - catches/weight))
}

// catchesByClassScenario shares each class's catches among its schools
// in proportion to their instantaneous biomass.
type catchesByClassScenario struct {
	table    *classTable
	fishable *[]float64
}

func (c catchesByClassScenario) Value(s *SchoolState, step int) float64 {
	return c.share(s, step, s.Biomass())
}

func (c catchesByClassScenario) share(s *SchoolState, step int, biomass float64) float64 {
	class := c.table.class(s)
	if class < 0 {
		return 0
	}
	total := (*c.fishable)[class]
	if total <= 0 {
		return 0
	}
	return biomass / total * c.table.at(step, class)
}
func (c catchesByClassScenario) Kind() ScenarioKind { return KindCatchesByDtByClass }
