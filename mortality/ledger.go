package mortality

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/shoal/components"
)

// Ledger is the outcome of one cell-step, produced by an aggregator and
// applied to schools by the Process.
//
// Dead has one row per prey (schools, then resource groups) and one column
// per predator school followed by starvation, additional and fishing.
// School rows count individuals; resource rows count tonnes.
type Ledger struct {
	NSchools   int
	NResources int
	Dead       *mat.Dense

	// PredSuccess is each school's realised over maximum predation this step.
	PredSuccess []float64

	// Iterative only
	Iterations  int
	Converged   bool
	Hazard      *mat.Dense // final per-cause hazards
	TotalHazard []float64  // final total hazard per prey row
}

// NewLedger allocates a ledger for a cell with at least one school.
func NewLedger(nSchools, nResources int) *Ledger {
	return &Ledger{
		NSchools:    nSchools,
		NResources:  nResources,
		Dead:        mat.NewDense(nSchools+nResources, nSchools+3, nil),
		PredSuccess: make([]float64, nSchools),
	}
}

// Col returns the Dead column of a non-predation cause, or -1.
func (l *Ledger) Col(c components.Cause) int {
	switch c {
	case components.CauseStarvation:
		return l.NSchools
	case components.CauseAdditional:
		return l.NSchools + 1
	case components.CauseFishing:
		return l.NSchools + 2
	}
	return -1
}

// Add records deaths in a Dead cell.
func (l *Ledger) Add(row, col int, v float64) {
	if v == 0 {
		return
	}
	l.Dead.Set(row, col, l.Dead.At(row, col)+v)
}

// PreyedBy returns the amount a predator removed from a prey row.
func (l *Ledger) PreyedBy(prey, pred int) float64 {
	return l.Dead.At(prey, pred)
}

// Deaths returns the amount a prey row lost to a cause.
func (l *Ledger) Deaths(row int, c components.Cause) float64 {
	if c == components.CausePredation {
		return floats.Sum(l.Dead.RawRowView(row)[:l.NSchools])
	}
	col := l.Col(c)
	if col < 0 {
		return 0
	}
	return l.Dead.At(row, col)
}

// TotalDeaths returns the amount a prey row lost to every cause.
func (l *Ledger) TotalDeaths(row int) float64 {
	return floats.Sum(l.Dead.RawRowView(row))
}
