package components

// Cause enumerates mortality kinds. Values index School.NDead.
type Cause uint8

const (
	CausePredation Cause = iota
	CauseStarvation
	CauseAdditional
	CauseFishing
	CauseOut
	CauseOxidative
)

// NumCauses sizes per-school accumulator arrays.
const NumCauses = 6

var causeNames = [NumCauses]string{
	"predation",
	"starvation",
	"additional",
	"fishing",
	"out",
	"oxidative",
}

// String returns the lowercase cause name used in outputs and metrics.
func (c Cause) String() string {
	if int(c) < NumCauses {
		return causeNames[c]
	}
	return "unknown"
}

// Causes returns every cause in index order.
func Causes() []Cause {
	out := make([]Cause, NumCauses)
	for i := range out {
		out[i] = Cause(i)
	}
	return out
}
