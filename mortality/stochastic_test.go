package mortality

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/shoal/components"
)

func TestStochasticConservation(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)

	for seed := int64(1); seed <= 20; seed++ {
		cell := predatorPreyCell()
		l := (&Stochastic{Subdt: 10}).Resolve(cell, r, rand.New(rand.NewSource(seed)))
		checkLedger(t, cell, l)
		for j := range cell.Schools {
			assert.GreaterOrEqual(t, l.PredSuccess[j], 0.0)
			assert.LessOrEqual(t, l.PredSuccess[j], 1.0)
		}
	}
}

func TestStochasticDeterministic(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)

	a := (&Stochastic{Subdt: 10}).Resolve(predatorPreyCell(), r, rand.New(rand.NewSource(42)))
	b := (&Stochastic{Subdt: 10}).Resolve(predatorPreyCell(), r, rand.New(rand.NewSource(42)))

	assert.True(t, mat.Equal(a.Dead, b.Dead), "same seed, same ledger")
	assert.Equal(t, a.PredSuccess, b.PredSuccess)
}

func TestStochasticCeiling(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)
	cell := predatorPreyCell()
	l := (&Stochastic{Subdt: 10}).Resolve(cell, r, rand.New(rand.NewSource(7)))

	pred := &cell.Schools[2]
	var eaten float64
	for k := 0; k < cell.NumPrey(); k++ {
		eaten += l.PreyedBy(k, 2) * cell.preyWeight(k)
	}
	// Sub-step ceilings follow the shrinking predator, so the step total stays below
	assert.LessOrEqual(t, eaten, r.Predation.Ceiling(pred.Species, pred.Biomass(), 1)*(1+1e-9))
	assert.Greater(t, eaten, 0.0)
}

func TestStochasticEggs(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)
	cell := predatorPreyCell()
	l := (&Stochastic{Subdt: 10}).Resolve(cell, r, rand.New(rand.NewSource(3)))

	egg := cell.Schools[0]
	larval := egg.Abundance * (1 - math.Exp(-2.3))
	assert.InDelta(t, larval, l.Deaths(0, components.CauseAdditional), 1e-6, "one larval draw before the sub-steps")
	assert.Zero(t, l.Deaths(0, components.CauseStarvation))
	assert.Zero(t, l.Deaths(0, components.CauseFishing))
	assert.Greater(t, l.Deaths(0, components.CausePredation), 0.0, "released eggs can be eaten")

	for k := 0; k < cell.NumPrey(); k++ {
		assert.Zero(t, l.PreyedBy(k, 0), "eggs never predate")
	}
	assert.Zero(t, l.PredSuccess[0])
}

func TestStochasticEmptySchool(t *testing.T) {
	env := newTestEnv(t, newTestConfig(t, nil))
	r := env.rates(t, 0)
	cell := &CellInput{
		Index:   1,
		Schools: []SchoolState{{Species: 0, AgeDt: 24, Abundance: 0.5, Weight: 1e-5, Length: 5, Cell: 1}},
	}
	l := (&Stochastic{Subdt: 10}).Resolve(cell, r, rand.New(rand.NewSource(1)))
	assert.Zero(t, l.TotalDeaths(0), "less than one individual counts as none")
}

// Without predation both algorithms see the same competing hazards, so
// expected deaths per cause agree.
func TestAlgorithmsAgreeWithoutPredation(t *testing.T) {
	env := newTestEnv(t, newTestConfig(t, nil))
	r := env.rates(t, 0)
	newCell := func() *CellInput {
		return &CellInput{
			Index: 1,
			Schools: []SchoolState{{
				Species: 0, AgeDt: 24, Abundance: 1e6, Weight: 1e-5, Length: 5, Cell: 1,
				StarvationRate: 0.3 / 12,
			}},
		}
	}

	iter := (&Iterative{IterMax: 50, ErrMax: 1e-5}).Resolve(newCell(), r, nil)

	const runs = 20
	var mean [components.NumCauses]float64
	var total float64
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < runs; i++ {
		l := (&Stochastic{Subdt: 10}).Resolve(newCell(), r, rng)
		for _, c := range []components.Cause{components.CauseStarvation, components.CauseAdditional, components.CauseFishing} {
			mean[c] += l.Deaths(0, c) / runs
		}
		total += l.TotalDeaths(0) / runs
	}

	require.Greater(t, iter.TotalDeaths(0), 0.0)
	assert.InEpsilon(t, iter.TotalDeaths(0), total, 1e-9, "survival is exp(-total hazard) for both")
	for _, c := range []components.Cause{components.CauseStarvation, components.CauseAdditional, components.CauseFishing} {
		assert.InEpsilon(t, iter.Deaths(0, c), mean[c], 0.01, "cause %s", c)
	}
}
