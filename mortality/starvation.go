package mortality

import "github.com/pthm-cable/shoal/config"

// Starvation ramps a hazard up as predation success falls below a
// species' critical efficiency.
type Starvation struct {
	maxRate      []float64 // annual
	critical     []float64
	stepsPerYear int
}

// NewStarvation reads the starvation parameters of every species.
func NewStarvation(cfg *config.Config) *Starvation {
	s := &Starvation{
		maxRate:      make([]float64, len(cfg.Species)),
		critical:     make([]float64, len(cfg.Species)),
		stepsPerYear: cfg.Simulation.StepsPerYear,
	}
	for i, sp := range cfg.Species {
		s.maxRate[i] = sp.MaxStarvationRate
		s.critical[i] = sp.CriticalEfficiency
	}
	return s
}

// Rate returns the starvation hazard over 1/subdt of a time step.
// Eggs do not starve, nor do schools fed above the critical efficiency.
func (s *Starvation) Rate(species, ageDt int, success float64, subdt int) float64 {
	if ageDt == 0 {
		return 0
	}
	crit := s.critical[species]
	if success > crit {
		return 0
	}
	r := max(s.maxRate[species]*(1-success/crit), 0)
	return r / float64(s.stepsPerYear*subdt)
}
