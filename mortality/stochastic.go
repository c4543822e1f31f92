package mortality

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/shoal/components"
)

// DefaultSubdt is the default number of stochastic sub-steps per time step.
const DefaultSubdt = 10

// Stochastic resolves a cell by sequential competing draws. Each of Subdt
// sub-steps shuffles the schools once per cause and, for every position,
// shuffles the cause order before drawing. Every draw immediately reduces
// the live abundance seen by later draws.
//
// Eggs suffer their larval mortality once before the sub-steps and then
// enter the live population in Subdt equal releases. Released eggs can be
// preyed upon but neither predate nor starve, and take no further
// additional or fishing draws.
type Stochastic struct {
	Subdt int
}

// Name identifies the algorithm in logs and metrics.
func (a *Stochastic) Name() string { return "stochastic" }

var stochasticCauses = [4]components.Cause{
	components.CausePredation,
	components.CauseStarvation,
	components.CauseAdditional,
	components.CauseFishing,
}

// stochasticCell is the live state of one cell during resolution.
type stochasticCell struct {
	cell    *CellInput
	ledger  *Ledger
	rates   *Rates
	subdt   int
	dead    []float64 // running row totals of ledger.Dead
	eggs    []float64 // eggs still retained
	release []float64 // eggs released per sub-step
	access  [][]float64
	biomass []float64
	preyed  []float64

	seqPred, seqFish, seqNat, seqStarv []int
	causes                             [4]components.Cause
}

// Resolve implements Aggregator. All randomness comes from rng.
func (a *Stochastic) Resolve(cell *CellInput, r *Rates, rng *rand.Rand) *Ledger {
	st := a.begin(cell, r)
	for sub := 0; sub < st.subdt; sub++ {
		st.subStep(sub, rng)
	}
	return st.finish()
}

// begin applies the larval mortality of the cell's eggs and sets up the
// live state for the sub-steps.
func (a *Stochastic) begin(cell *CellInput, r *Rates) *stochasticCell {
	ns, nr := len(cell.Schools), len(cell.Resources)
	subdt := max(a.Subdt, 1)
	st := &stochasticCell{
		cell:     cell,
		ledger:   NewLedger(ns, nr),
		rates:    r,
		subdt:    subdt,
		dead:     make([]float64, ns+nr),
		eggs:     make([]float64, ns),
		release:  make([]float64, ns),
		access:   make([][]float64, ns),
		biomass:  make([]float64, ns+nr),
		seqPred:  identity(ns),
		seqFish:  identity(ns),
		seqNat:   identity(ns),
		seqStarv: identity(ns),
		causes:   stochasticCauses,
	}

	for k := range cell.Schools {
		s := &cell.Schools[k]
		if s.Abundance <= 0 {
			continue
		}
		if !s.IsEgg() {
			st.access[k] = r.Predation.Accessibility(cell, k, make([]float64, 0, ns+nr))
			continue
		}
		d := drawDeaths(s.Abundance, r.Additional.Rate(s, r.Step))
		st.add(k, st.ledger.Col(components.CauseAdditional), d)
		st.eggs[k] = s.Abundance - d
		st.release[k] = st.eggs[k] / float64(subdt)
	}
	return st
}

// subStep releases one share of the eggs and runs one round of draws.
func (st *stochasticCell) subStep(sub int, rng *rand.Rand) {
	for k := range st.eggs {
		if sub == st.subdt-1 {
			st.eggs[k] = 0
		} else {
			st.eggs[k] = max(st.eggs[k]-st.release[k], 0)
		}
	}

	shuffle(rng, st.seqPred)
	shuffle(rng, st.seqFish)
	shuffle(rng, st.seqNat)
	shuffle(rng, st.seqStarv)

	causes := &st.causes
	for i := range st.cell.Schools {
		rng.Shuffle(len(causes), func(a, b int) { causes[a], causes[b] = causes[b], causes[a] })
		for _, c := range causes {
			switch c {
			case components.CausePredation:
				st.predation(st.seqPred[i])
			case components.CauseStarvation:
				st.starvation(st.seqStarv[i])
			case components.CauseAdditional:
				st.additional(st.seqNat[i])
			case components.CauseFishing:
				st.fishing(st.seqFish[i])
			}
		}
	}
}

func (st *stochasticCell) finish() *Ledger {
	for k := range st.dead {
		assertf(st.dead[k] <= st.cell.preyAmount(k)*(1+1e-12), "row %d deaths %.6g exceed %.6g", k, st.dead[k], st.cell.preyAmount(k))
	}
	return st.ledger
}

// addFishable adds the live biomass of the cell's schools to the domain's
// fishable biomass by class.
func (st *stochasticCell) addFishable(f *Fishing) {
	for k := range st.cell.Schools {
		s := &st.cell.Schools[k]
		if s.IsEgg() {
			continue
		}
		f.addFishable(s, st.live(k)*s.Weight)
	}
}

// live returns the instantaneous amount of a prey row: individuals for
// schools (less than one counts as none), tonnes for resources.
func (st *stochasticCell) live(row int) float64 {
	ns := len(st.cell.Schools)
	if row >= ns {
		return max(st.cell.Resources[row-ns]-st.dead[row], 0)
	}
	ab := st.cell.Schools[row].Abundance - st.eggs[row] - st.dead[row]
	if ab < 1 {
		return 0
	}
	return ab
}

func (st *stochasticCell) add(row, col int, v float64) {
	if v <= 0 {
		return
	}
	st.ledger.Add(row, col, v)
	st.dead[row] += v
}

func (st *stochasticCell) predation(k int) {
	access := st.access[k]
	if access == nil {
		return
	}
	pred := &st.cell.Schools[k]
	ab := st.live(k)
	if ab <= 0 {
		return
	}

	ns := len(st.cell.Schools)
	for row := range st.biomass {
		st.biomass[row] = st.live(row)
		if row < ns {
			st.biomass[row] *= st.cell.Schools[row].Weight
		}
	}

	predBiomass := ab * pred.Weight
	st.preyed = st.rates.Predation.Compute(pred, predBiomass, st.biomass, access, st.subdt, st.preyed)
	var eaten float64
	for row, b := range st.preyed {
		if b <= 0 {
			continue
		}
		eaten += b
		if row < ns {
			st.add(row, k, math.Min(b/st.cell.Schools[row].Weight, st.live(row)))
		} else {
			st.add(row, k, b)
		}
	}
	ceiling := st.rates.Predation.Ceiling(pred.Species, predBiomass, st.subdt)
	st.ledger.PredSuccess[k] += Success(eaten, ceiling) / float64(st.subdt)
}

func (st *stochasticCell) starvation(k int) {
	s := &st.cell.Schools[k]
	if s.IsEgg() {
		return
	}
	rate := s.StarvationRate / float64(st.subdt)
	st.add(k, st.ledger.Col(components.CauseStarvation), drawDeaths(st.live(k), rate))
}

func (st *stochasticCell) additional(k int) {
	s := &st.cell.Schools[k]
	if s.IsEgg() || s.Abundance <= 0 {
		return
	}
	rate := st.rates.Additional.Rate(s, st.rates.Step) / float64(st.subdt)
	st.add(k, st.ledger.Col(components.CauseAdditional), drawDeaths(st.live(k), rate))
}

func (st *stochasticCell) fishing(k int) {
	s := &st.cell.Schools[k]
	if s.IsEgg() || s.Abundance <= 0 {
		return
	}
	f := st.rates.Fishing
	ab := st.live(k)
	var d float64
	if f.Type() == FishingCatches {
		c := f.Catches(s, st.rates.Step, ab*s.Weight) / float64(st.subdt)
		d = math.Min(c/s.Weight, ab)
	} else {
		d = drawDeaths(ab, f.Rate(s, st.rates.Step)/float64(st.subdt))
	}
	st.add(k, st.ledger.Col(components.CauseFishing), d)
}

func identity(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func shuffle(rng *rand.Rand, s []int) {
	rng.Shuffle(len(s), func(a, b int) { s[a], s[b] = s[b], s[a] })
}
