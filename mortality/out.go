package mortality

import (
	"math"

	"github.com/pthm-cable/shoal/config"
)

// OutMortality applies a single exponential draw to schools outside the domain.
type OutMortality struct {
	rate         []float64 // annual
	stepsPerYear int
}

// NewOutMortality reads the out-of-domain rates of every species.
func NewOutMortality(cfg *config.Config) *OutMortality {
	o := &OutMortality{
		rate:         make([]float64, len(cfg.Species)),
		stepsPerYear: cfg.Simulation.StepsPerYear,
	}
	for i, sp := range cfg.Species {
		o.rate[i] = sp.OutRate
	}
	return o
}

// Rate returns the per-step hazard of a species outside the domain.
func (o *OutMortality) Rate(species int) float64 {
	return o.rate[species] / float64(o.stepsPerYear)
}

// Deaths returns the individuals lost by an out-of-domain school this step.
func (o *OutMortality) Deaths(species int, abundance float64) float64 {
	if abundance <= 0 {
		return 0
	}
	return abundance * (1 - math.Exp(-o.Rate(species)))
}
