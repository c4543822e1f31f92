package mortality

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Rates bundles the cause providers an aggregator draws on for one step.
type Rates struct {
	Predation  *Predation
	Starvation *Starvation
	Additional *Additional
	Fishing    *Fishing
	Step       int
}

// Aggregator composes the per-cause rates of one cell into deaths.
// Implementations must not retain cell or rng, so cells may be resolved
// concurrently with distinct generators.
type Aggregator interface {
	Resolve(cell *CellInput, rates *Rates, rng *rand.Rand) *Ledger
	Name() string
}

// competingDeaths splits the deaths of simultaneous independent causes:
// deaths[c] = rate[c]/total * (1 - exp(-total)) * amount.
func competingDeaths(out, rates []float64, amount float64) float64 {
	total := floats.Sum(rates)
	if total <= 0 || amount <= 0 {
		for i := range out {
			out[i] = 0
		}
		return total
	}
	floats.ScaleTo(out, -math.Expm1(-total)*amount/total, rates)
	return total
}

// removalHazard converts an amount removed over a step into the hazard
// ln(before/(before-removed)). The remainder is floored at CatchesEpsilon,
// or half the amount for pools smaller than that.
func removalHazard(before, removed float64) float64 {
	if before <= 0 || removed <= 0 {
		return 0
	}
	remaining := max(before-removed, math.Min(CatchesEpsilon, 0.5*before))
	return math.Log(before / remaining)
}

// drawDeaths is the deaths of one cause applied alone for a hazard.
func drawDeaths(abundance, hazard float64) float64 {
	if abundance <= 0 || hazard <= 0 {
		return 0
	}
	return -math.Expm1(-hazard) * abundance
}
