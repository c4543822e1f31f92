package mortality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shoal/components"
)

// checkLedger asserts non-negative deaths that never exceed a row's amount.
func checkLedger(t *testing.T, cell *CellInput, l *Ledger) {
	t.Helper()
	rows, cols := l.Dead.Dims()
	require.Equal(t, cell.NumPrey(), rows)
	require.Equal(t, len(cell.Schools)+3, cols)
	for k := 0; k < rows; k++ {
		for c := 0; c < cols; c++ {
			assert.GreaterOrEqual(t, l.Dead.At(k, c), 0.0, "row %d col %d", k, c)
		}
		assert.LessOrEqual(t, l.TotalDeaths(k), cell.preyAmount(k)*(1+1e-9), "row %d", k)
	}
}

func TestIterativeConservation(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)
	cell := predatorPreyCell()

	l := (&Iterative{IterMax: 50, ErrMax: 1e-5}).Resolve(cell, r, nil)
	checkLedger(t, cell, l)

	assert.True(t, l.Converged)
	assert.GreaterOrEqual(t, l.Iterations, 1)
	assert.LessOrEqual(t, l.Iterations, 50)
}

func TestIterativeCeiling(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)
	cell := predatorPreyCell()
	l := (&Iterative{IterMax: 50, ErrMax: 1e-5}).Resolve(cell, r, nil)

	for j := range cell.Schools {
		pred := &cell.Schools[j]
		var eaten float64
		for k := 0; k < cell.NumPrey(); k++ {
			eaten += l.PreyedBy(k, j) * cell.preyWeight(k)
		}
		if pred.IsEgg() {
			assert.Zero(t, eaten, "eggs never predate")
			continue
		}
		ceiling := r.Predation.Ceiling(pred.Species, pred.Biomass(), 1)
		assert.LessOrEqual(t, eaten, ceiling*(1+1e-3), "school %d", j)
		assert.Greater(t, eaten, 0.0, "school %d", j)
		assert.InDelta(t, eaten/ceiling, l.PredSuccess[j], 1e-3)
	}
}

func TestIterativeTotalHazard(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)
	cell := predatorPreyCell()
	l := (&Iterative{IterMax: 50, ErrMax: 1e-5}).Resolve(cell, r, nil)

	require.NotNil(t, l.Hazard)
	require.Len(t, l.TotalHazard, cell.NumPrey())
	for k := range l.TotalHazard {
		assert.InDelta(t, floats.Sum(l.Hazard.RawRowView(k)), l.TotalHazard[k], 1e-12, "row %d", k)
		// Deaths follow the competing split of the final hazards
		want := -math.Expm1(-l.TotalHazard[k]) * cell.preyAmount(k)
		assert.InDelta(t, want, l.TotalDeaths(k), 1e-9*math.Max(want, 1), "row %d", k)
	}
}

func TestIterativeEggs(t *testing.T) {
	env := newTestEnv(t, twoSpeciesConfig(t, nil))
	r := env.rates(t, 0)
	cell := predatorPreyCell()
	l := (&Iterative{IterMax: 50, ErrMax: 1e-5}).Resolve(cell, r, nil)

	assert.Zero(t, l.Deaths(0, components.CauseStarvation))
	assert.Zero(t, l.Deaths(0, components.CauseFishing))
	assert.Zero(t, l.PredSuccess[0])
	assert.InDelta(t, 2.3, l.Hazard.At(0, l.Col(components.CauseAdditional)), 1e-12, "larval rate")
	assert.Greater(t, l.Deaths(0, components.CausePredation), 0.0, "eggs can be eaten")
}

func TestIterativeSingleSchool(t *testing.T) {
	env := newTestEnv(t, newTestConfig(t, nil))
	r := env.rates(t, 0)
	cell := &CellInput{
		Index:   1,
		Schools: []SchoolState{{Species: 0, AgeDt: 24, Abundance: 1e6, Weight: 1e-5, Length: 5, Cell: 1}},
	}
	l := (&Iterative{IterMax: 50, ErrMax: 1e-5}).Resolve(cell, r, nil)

	// No prey at all: starvation at its maximum
	starv := 0.3 / 12
	add := 0.6 / 12
	fish := 0.4 / 12
	total := starv + add + fish
	dead := -math.Expm1(-total) * 1e6

	assert.InDelta(t, dead, l.TotalDeaths(0), 1e-6)
	assert.InDelta(t, starv/total*dead, l.Deaths(0, components.CauseStarvation), 1e-6)
	assert.InDelta(t, add/total*dead, l.Deaths(0, components.CauseAdditional), 1e-6)
	assert.InDelta(t, fish/total*dead, l.Deaths(0, components.CauseFishing), 1e-6)
	assert.Zero(t, l.Deaths(0, components.CausePredation))
}
