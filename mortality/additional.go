package mortality

import (
	"log/slog"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/systems"
)

// Additional provides additional (natural) mortality hazards.
// Eggs use the larva scenario, older schools the adult scenario scaled
// by an optional spatial factor.
type Additional struct {
	larva   []Scenario
	adult   []Scenario
	spatial []*systems.GridMap
}

// NewAdditional resolves every species' scenarios. A species with no adult
// scenario is a fatal configuration error; a missing larva scenario defaults to zero.
func NewAdditional(cfg *config.Config, maps map[string]*systems.GridMap, grid *systems.Grid) (*Additional, error) {
	n := len(cfg.Species)
	a := &Additional{
		larva:   make([]Scenario, n),
		adult:   make([]Scenario, n),
		spatial: make([]*systems.GridMap, n),
	}
	spy := cfg.Simulation.StepsPerYear

	for i, sp := range cfg.Species {
		ac := sp.Additional

		switch {
		case len(ac.LarvaRateByDt) > 0:
			a.larva[i] = byDtScenario{series: ac.LarvaRateByDt}
		case ac.LarvaRate != nil:
			a.larva[i] = constantScenario{v: *ac.LarvaRate}
		default:
			slog.Warn("no larva mortality scenario, using zero", "species", sp.Name, "key", "additional.larva_rate")
			a.larva[i] = zeroScenario{}
		}

		switch {
		case ac.RateByDtByClass != nil:
			a.adult[i] = byDtByClassScenario{table: newClassTable(ac.RateByDtByClass, spy)}
		case len(ac.RateByDt) > 0:
			a.adult[i] = byDtScenario{series: ac.RateByDt}
		case ac.Rate != nil:
			mult := 1.0
			if ac.RateMultiplier != nil {
				mult = *ac.RateMultiplier
			}
			a.adult[i] = seasonalScenario{annual: mult * *ac.Rate, season: seasonOrUniform(ac.Season, spy)}
		default:
			return nil, configErr(sp.Name, "additional.rate", "no additional mortality scenario defined")
		}

		if ac.SpatialMap != "" {
			m, ok := maps[ac.SpatialMap]
			if !ok {
				return nil, configErr(sp.Name, "additional.spatial_map", "map %q not loaded", ac.SpatialMap)
			}
			if !m.InRange(grid, 0, 1) {
				return nil, configErr(sp.Name, "additional.spatial_map", "map %q has values outside [0,1]", ac.SpatialMap)
			}
			a.spatial[i] = m
		}

		slog.Debug("additional mortality scenario", "species", sp.Name,
			"larva", a.larva[i].Kind().String(), "adult", a.adult[i].Kind().String())
	}
	return a, nil
}

// Rate returns the per-step additional mortality hazard of a school.
func (a *Additional) Rate(s *SchoolState, step int) float64 {
	if s.IsEgg() {
		return a.larva[s.Species].Value(s, step)
	}
	d := a.adult[s.Species].Value(s, step)
	if m := a.spatial[s.Species]; m != nil && s.Cell >= 0 {
		d *= m.ValueAt(s.Cell)
	}
	return d
}

// AdultKind returns the adult scenario variant of a species.
func (a *Additional) AdultKind(species int) ScenarioKind {
	return a.adult[species].Kind()
}

// LarvaKind returns the larva scenario variant of a species.
func (a *Additional) LarvaKind(species int) ScenarioKind {
	return a.larva[species].Kind()
}
