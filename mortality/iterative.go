package mortality

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Defaults for the iterative solver.
const (
	DefaultIterMax = 50
	DefaultErrMax  = 1e-5
)

// Iterative resolves a cell deterministically by successive substitution on
// the competing-hazards system. Predation hazards are seeded from
// start-of-step biomass, then each predator's hazard column is scaled down
// until realised predation respects its ceiling, with starvation following
// the realised success. Iteration stops when no prey's total hazard moves
// by more than ErrMax, or after IterMax rounds.
type Iterative struct {
	IterMax int
	ErrMax  float64
}

// Name identifies the algorithm in logs and metrics.
func (a *Iterative) Name() string { return "iterative" }

// Resolve implements Aggregator. The generator is unused.
func (a *Iterative) Resolve(cell *CellInput, r *Rates, _ *rand.Rand) *Ledger {
	ns, nr := len(cell.Schools), len(cell.Resources)
	nRows := ns + nr
	l := NewLedger(ns, nr)
	colStarv, colAdd, colFish := ns, ns+1, ns+2

	amount := make([]float64, nRows)
	weight := make([]float64, nRows)
	for k := range amount {
		amount[k] = cell.preyAmount(k)
		weight[k] = cell.preyWeight(k)
	}
	biomass := cell.preyBiomass(make([]float64, 0, nRows))

	access := make([][]float64, ns)
	ceiling := make([]float64, ns)
	for j := range cell.Schools {
		pred := &cell.Schools[j]
		if pred.Abundance <= 0 || pred.IsEgg() {
			continue
		}
		access[j] = r.Predation.Accessibility(cell, j, make([]float64, 0, nRows))
		ceiling[j] = r.Predation.Ceiling(pred.Species, pred.Biomass(), 1)
	}

	hazard := mat.NewDense(nRows, ns+3, nil)

	// Seed predation from start-of-step biomass
	var preyed []float64
	for j := range cell.Schools {
		if access[j] == nil {
			continue
		}
		pred := &cell.Schools[j]
		preyed = r.Predation.Compute(pred, pred.Biomass(), biomass, access[j], 1, preyed)
		l.PredSuccess[j] = Success(floats.Sum(preyed), ceiling[j])
		for k, b := range preyed {
			if b > 0 {
				hazard.Set(k, j, removalHazard(amount[k], b/weight[k]))
			}
		}
	}

	for k := range cell.Schools {
		s := &cell.Schools[k]
		if s.Abundance <= 0 {
			continue
		}
		hazard.Set(k, colStarv, r.Starvation.Rate(s.Species, s.AgeDt, l.PredSuccess[k], 1))
		hazard.Set(k, colAdd, r.Additional.Rate(s, r.Step))
		hazard.Set(k, colFish, r.Fishing.Hazard(s, r.Step))
	}

	total := rowSums(hazard, make([]float64, nRows))
	next := make([]float64, nRows)
	errMax := math.Inf(1)
	iter := 0
	for iter < a.IterMax && errMax > a.ErrMax {
		competingMatrix(l.Dead, hazard, amount)

		for j := range cell.Schools {
			if access[j] == nil {
				continue
			}
			eaten := columnBiomass(l.Dead, j, weight)
			correction := 1.0
			if eaten > 0 {
				correction = math.Min(ceiling[j]/eaten, 1)
			}
			l.PredSuccess[j] = Success(math.Min(eaten, ceiling[j]), ceiling[j])
			if correction < 1 {
				scaleColumn(hazard, j, correction)
			}
		}

		for k := range cell.Schools {
			s := &cell.Schools[k]
			if s.Abundance <= 0 {
				continue
			}
			hazard.Set(k, colStarv, r.Starvation.Rate(s.Species, s.AgeDt, l.PredSuccess[k], 1))
		}

		rowSums(hazard, next)
		errMax = floats.Distance(next, total, math.Inf(1))
		total, next = next, total
		iter++
	}

	competingMatrix(l.Dead, hazard, amount)
	for j := range cell.Schools {
		if access[j] != nil {
			l.PredSuccess[j] = Success(columnBiomass(l.Dead, j, weight), ceiling[j])
		}
	}

	for k := 0; k < nRows; k++ {
		assertf(l.TotalDeaths(k) <= amount[k]*(1+1e-12), "row %d deaths %.6g exceed %.6g", k, l.TotalDeaths(k), amount[k])
	}

	l.Iterations = iter
	l.Converged = errMax <= a.ErrMax
	l.Hazard = hazard
	l.TotalHazard = total
	return l
}

// competingMatrix fills dead row by row with the competing-hazards split.
func competingMatrix(dead, hazard *mat.Dense, amount []float64) {
	rows, _ := hazard.Dims()
	for k := 0; k < rows; k++ {
		competingDeaths(dead.RawRowView(k), hazard.RawRowView(k), amount[k])
	}
}

func rowSums(m *mat.Dense, dst []float64) []float64 {
	rows, _ := m.Dims()
	for k := 0; k < rows; k++ {
		dst[k] = floats.Sum(m.RawRowView(k))
	}
	return dst
}

// columnBiomass converts a predator's column of deaths to tonnes.
func columnBiomass(dead *mat.Dense, col int, weight []float64) float64 {
	var sum float64
	for k, w := range weight {
		sum += dead.At(k, col) * w
	}
	return sum
}

func scaleColumn(m *mat.Dense, col int, f float64) {
	rows, _ := m.Dims()
	for k := 0; k < rows; k++ {
		m.Set(k, col, m.At(k, col)*f)
	}
}
