package mortality

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/systems"
)

// AccessibilityMatrix maps (prey, prey stage, predator, predator stage) to [0,1].
// Prey indices list species first, then resource groups.
type AccessibilityMatrix struct {
	nPred    int
	stages   []int // stages per prey index; predators use the first nPred
	offsets  []int // start of each prey's block
	maxStage int
	values   []float64
}

// NewAccessibilityMatrix builds the matrix from cfg. With no entries every
// pair takes the configured default; otherwise config validation has already
// required a complete matrix.
func NewAccessibilityMatrix(cfg *config.Config) *AccessibilityMatrix {
	nPred := len(cfg.Species)
	names := make([]string, 0, nPred+len(cfg.Resources))
	for _, sp := range cfg.Species {
		names = append(names, sp.Name)
	}
	for _, r := range cfg.Resources {
		names = append(names, r.Name)
	}

	m := &AccessibilityMatrix{
		nPred:   nPred,
		stages:  make([]int, len(names)),
		offsets: make([]int, len(names)),
	}
	for i, n := range names {
		m.stages[i] = cfg.NumAccessStages(n)
		m.maxStage = max(m.maxStage, m.stages[i])
	}
	predBlock := nPred * m.maxStage
	size := 0
	for i := range names {
		m.offsets[i] = size
		size += m.stages[i] * predBlock
	}
	m.values = make([]float64, size)

	if len(cfg.Accessibility.Entries) == 0 {
		for i := range m.values {
			m.values[i] = cfg.Accessibility.Default
		}
		return m
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	for _, e := range cfg.Accessibility.Entries {
		m.values[m.at(index[e.Prey], e.PreyStage, index[e.Predator], e.PredatorStage)] = e.Value
	}
	return m
}

func (m *AccessibilityMatrix) at(prey, preyStage, pred, predStage int) int {
	return m.offsets[prey] + preyStage*m.nPred*m.maxStage + pred*m.maxStage + predStage
}

// Get returns the accessibility of a prey stage to a predator stage.
func (m *AccessibilityMatrix) Get(prey, preyStage, pred, predStage int) float64 {
	return m.values[m.at(prey, preyStage, pred, predStage)]
}

// Predation resolves how much biomass each predator removes from its prey.
type Predation struct {
	ingestion    []float64   // annual maximum ingestion per unit biomass
	ratioMin     [][]float64 // species -> feeding stage
	ratioMax     [][]float64
	matrix       *AccessibilityMatrix
	resources    []systems.ResourceGroup
	nSpecies     int
	stepsPerYear int
}

// NewPredation builds the resolver for the species and resource groups of cfg.
func NewPredation(cfg *config.Config, resources []systems.ResourceGroup) *Predation {
	p := &Predation{
		ingestion:    make([]float64, len(cfg.Species)),
		ratioMin:     make([][]float64, len(cfg.Species)),
		ratioMax:     make([][]float64, len(cfg.Species)),
		matrix:       NewAccessibilityMatrix(cfg),
		resources:    resources,
		nSpecies:     len(cfg.Species),
		stepsPerYear: cfg.Simulation.StepsPerYear,
	}
	for i, sp := range cfg.Species {
		p.ingestion[i] = sp.IngestionRate
		p.ratioMin[i] = sp.SizeRatioMin
		p.ratioMax[i] = sp.SizeRatioMax
	}
	return p
}

// MaxPredationRate returns the biomass a predator may eat per unit of its
// own biomass in one time step.
func (p *Predation) MaxPredationRate(species int) float64 {
	return p.ingestion[species] / float64(p.stepsPerYear)
}

// Ceiling returns the most biomass a predator may eat over 1/subdt of a step.
func (p *Predation) Ceiling(species int, predatorBiomass float64, subdt int) float64 {
	return p.MaxPredationRate(species) * predatorBiomass / float64(subdt)
}

// PreySizeRange returns the [min, max) prey length window of a predator.
func (p *Predation) PreySizeRange(pred *SchoolState) (lo, hi float64) {
	st := pred.FeedingStage
	return pred.Length / p.ratioMax[pred.Species][st], pred.Length / p.ratioMin[pred.Species][st]
}

// Accessibility fills dst with the accessibility of every prey row of the
// cell to the predator at index pred. The predator's own row is zero.
func (p *Predation) Accessibility(cell *CellInput, pred int, dst []float64) []float64 {
	dst = dst[:0]
	predator := &cell.Schools[pred]
	lo, hi := p.PreySizeRange(predator)

	for k := range cell.Schools {
		prey := &cell.Schools[k]
		if k == pred || prey.Length < lo || prey.Length >= hi {
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, p.matrix.Get(prey.Species, prey.AccessStage, predator.Species, predator.AccessStage))
	}
	for r := range cell.Resources {
		rg := p.resources[r]
		overlap := sizeOverlap(rg.SizeMin, rg.SizeMax, lo, hi)
		if overlap <= 0 {
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, overlap*p.matrix.Get(p.nSpecies+r, 0, predator.Species, predator.AccessStage))
	}
	return dst
}

// sizeOverlap returns the fraction of [sMin, sMax] that falls inside [lo, hi].
func sizeOverlap(sMin, sMax, lo, hi float64) float64 {
	width := sMax - sMin
	if width <= 0 {
		return 0
	}
	o := (math.Min(sMax, hi) - math.Max(sMin, lo)) / width
	if o <= 0 {
		return 0
	}
	return math.Min(o, 1)
}

// Compute returns the biomass the predator removes from each prey over
// 1/subdt of a step, writing into out (resized to len(preyBiomass)).
// Accessible biomass is rationed proportionally when it exceeds the ceiling.
// Eggs never predate.
func (p *Predation) Compute(pred *SchoolState, predBiomass float64, preyBiomass, access []float64, subdt int, out []float64) []float64 {
	out = resize(out, len(preyBiomass))
	if pred.IsEgg() || predBiomass <= 0 {
		return out
	}

	floats.MulTo(out, access, preyBiomass)
	total := floats.Sum(out)
	if total <= 0 {
		for i := range out {
			out[i] = 0
		}
		return out
	}

	toPredate := math.Min(total, p.Ceiling(pred.Species, predBiomass, subdt))
	floats.Scale(toPredate/total, out)
	assertf(floats.Sum(out) <= toPredate*(1+1e-12), "predation %.6g exceeds ceiling %.6g", floats.Sum(out), toPredate)
	return out
}

// Success returns the predation success of one sub-step.
func Success(preyed, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return math.Min(preyed/ceiling, 1)
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}
