package mortality

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/systems"
)

// CellSchools is one cell of the population as handed to Process.Run.
// Diets may be nil, or hold nil entries, when diet recording is off.
type CellSchools struct {
	Index   int
	Schools []*components.School
	Diets   []*components.Diet
}

// Population supplies the schools the process works on for one step.
type Population interface {
	// Cells returns the located schools grouped by cell, in grid order.
	Cells() []CellSchools
	// OutOfDomain returns the schools that migrated out of the grid.
	OutOfDomain() []*components.School
}

// IterationStats summarises iterative solver effort over the cells of the last step.
type IterationStats struct {
	Cells       int
	Min         int
	Max         int
	Mean        float64
	Unconverged int
}

// Process is the per-step mortality driver.
type Process struct {
	grid       *systems.Grid
	resources  *systems.ResourceField
	aggregator Aggregator
	rates      Rates
	out        *OutMortality

	stepsPerYear  int
	recordDiet    bool
	parallelCells bool
	numSpecies    int

	stats IterationStats

	// OnCell, when set, is called for every resolved cell in grid order.
	OnCell func(cellIndex int, l *Ledger)
}

// NewProcess resolves every provider and scenario. Configuration errors
// are returned wrapped around ErrConfig before any step runs.
func NewProcess(cfg *config.Config, grid *systems.Grid, resources *systems.ResourceField, mpas *systems.MPASet, maps map[string]*systems.GridMap) (*Process, error) {
	additional, err := NewAdditional(cfg, maps, grid)
	if err != nil {
		return nil, fmt.Errorf("additional mortality: %w", err)
	}
	fishing, err := NewFishing(cfg, maps, grid, mpas)
	if err != nil {
		return nil, fmt.Errorf("fishing mortality: %w", err)
	}

	p := &Process{
		grid:          grid,
		resources:     resources,
		out:           NewOutMortality(cfg),
		stepsPerYear:  cfg.Simulation.StepsPerYear,
		recordDiet:    cfg.Mortality.RecordDiet,
		parallelCells: cfg.Mortality.ParallelCells,
		numSpecies:    len(cfg.Species),
		rates: Rates{
			Predation:  NewPredation(cfg, resources.Groups()),
			Starvation: NewStarvation(cfg),
			Additional: additional,
			Fishing:    fishing,
		},
	}
	p.aggregator = NewAggregator(cfg.Mortality)
	slog.Info("mortality process ready",
		"algorithm", p.aggregator.Name(),
		"fishing", cfg.Fishing.Type,
		"species", len(cfg.Species),
		"resources", resources.NumGroups(),
		"parallel_cells", p.parallelCells,
	)
	return p, nil
}

// NewAggregator returns the aggregator selected by the mortality config.
func NewAggregator(mc config.MortalityConfig) Aggregator {
	if mc.Algorithm == "iterative" {
		iterMax, errMax := mc.IterMax, mc.ErrMax
		if iterMax <= 0 {
			iterMax = DefaultIterMax
		}
		if errMax <= 0 {
			errMax = DefaultErrMax
		}
		return &Iterative{IterMax: iterMax, ErrMax: errMax}
	}
	subdt := mc.Subdt
	if subdt <= 0 {
		subdt = DefaultSubdt
	}
	return &Stochastic{Subdt: subdt}
}

// Aggregator returns the selected cell aggregator.
func (p *Process) Aggregator() Aggregator {
	return p.aggregator
}

// Rates returns the cause providers.
func (p *Process) Rates() *Rates {
	return &p.rates
}

// IterationStats returns the iterative solver statistics of the last step.
func (p *Process) IterationStats() IterationStats {
	return p.stats
}

// Run advances mortality by one time step. Accumulators on the schools
// must have been reset by the caller. rng is the only randomness source.
func (p *Process) Run(ctx context.Context, step int, pop Population, rng *rand.Rand) error {
	p.rates.Step = step
	p.resources.Update(step, p.stepsPerYear)
	p.rates.Fishing.UpdateMPA(step)

	cells := pop.Cells()
	inputs := make([]CellInput, 0, len(cells))
	kept := make([][]int, 0, len(cells))
	sources := make([]CellSchools, 0, len(cells))
	var all []SchoolState
	for _, cs := range cells {
		if p.grid.CellAt(cs.Index).Land || len(cs.Schools) == 0 {
			continue
		}
		in, idx := p.snapshot(cs)
		if len(in.Schools) == 0 {
			continue
		}
		inputs = append(inputs, in)
		kept = append(kept, idx)
		sources = append(sources, cs)
		all = append(all, in.Schools...)
	}
	p.rates.Fishing.RefreshFishable(all)

	ledgers, err := p.resolve(ctx, inputs, rng)
	if err != nil {
		return err
	}

	p.stats = IterationStats{}
	for i := range inputs {
		p.apply(&inputs[i], kept[i], sources[i], ledgers[i])
		p.observe(ledgers[i])
		if p.OnCell != nil {
			p.OnCell(inputs[i].Index, ledgers[i])
		}
	}
	if p.stats.Cells > 0 {
		p.stats.Mean /= float64(p.stats.Cells)
	}

	// Trophic level and next step's starvation from this step's feeding
	for _, cs := range cells {
		for _, s := range cs.Schools {
			s.UpdateTrophicLevel()
			s.StarvationRate = p.rates.Starvation.Rate(s.Species, s.AgeDt, s.PredSuccess, 1)
		}
	}

	for _, s := range pop.OutOfDomain() {
		s.NDead[components.CauseOut] += p.out.Deaths(s.Species, s.InstantaneousAbundance())
	}
	return nil
}

// snapshot builds the aggregator input of a cell, skipping empty schools.
// The returned indices map input rows back to cs.Schools.
func (p *Process) snapshot(cs CellSchools) (CellInput, []int) {
	in := CellInput{
		Index:     cs.Index,
		Schools:   make([]SchoolState, 0, len(cs.Schools)),
		Resources: p.resources.CellBiomass(cs.Index, nil),
	}
	idx := make([]int, 0, len(cs.Schools))
	for i, s := range cs.Schools {
		if s.Abundance <= 0 {
			continue
		}
		in.Schools = append(in.Schools, SchoolState{
			Species:        s.Species,
			AgeDt:          s.AgeDt,
			Abundance:      s.Abundance,
			Weight:         s.Weight,
			Length:         s.Length,
			TrophicLevel:   s.TrophicLevel,
			FeedingStage:   s.FeedingStage,
			AccessStage:    s.AccessStage,
			StarvationRate: s.StarvationRate,
			Cell:           cs.Index,
		})
		idx = append(idx, i)
	}
	return in, idx
}

// resolve runs the aggregator over every cell, sequentially with the shared
// generator, or concurrently with one generator per cell seeded in cell order.
func (p *Process) resolve(ctx context.Context, inputs []CellInput, rng *rand.Rand) ([]*Ledger, error) {
	rngs := p.cellRNGs(rng, len(inputs))
	if a, ok := p.aggregator.(*Stochastic); ok && p.rates.Fishing.ClassCatches() {
		return p.resolveBySubStep(ctx, a, inputs, rngs)
	}

	ledgers := make([]*Ledger, len(inputs))
	err := p.eachCell(ctx, len(inputs), func(i int) {
		ledgers[i] = p.aggregator.Resolve(&inputs[i], &p.rates, rngs[i])
	})
	if err != nil {
		return nil, err
	}
	return ledgers, nil
}

// resolveBySubStep runs the stochastic sub-steps across the whole domain,
// refreshing the fishable biomass from the live schools before each one.
func (p *Process) resolveBySubStep(ctx context.Context, a *Stochastic, inputs []CellInput, rngs []*rand.Rand) ([]*Ledger, error) {
	cells := make([]*stochasticCell, len(inputs))
	for i := range inputs {
		cells[i] = a.begin(&inputs[i], &p.rates)
	}
	subdt := max(a.Subdt, 1)
	for sub := 0; sub < subdt; sub++ {
		p.rates.Fishing.resetFishable()
		for _, st := range cells {
			st.addFishable(p.rates.Fishing)
		}
		err := p.eachCell(ctx, len(cells), func(i int) {
			cells[i].subStep(sub, rngs[i])
		})
		if err != nil {
			return nil, err
		}
	}

	ledgers := make([]*Ledger, len(cells))
	for i, st := range cells {
		ledgers[i] = st.finish()
	}
	return ledgers, nil
}

// cellRNGs returns the generator of each cell: the shared one when cells
// run sequentially, otherwise one per cell seeded from rng in cell order.
func (p *Process) cellRNGs(rng *rand.Rand, n int) []*rand.Rand {
	rngs := make([]*rand.Rand, n)
	if !p.concurrent(n) {
		for i := range rngs {
			rngs[i] = rng
		}
		return rngs
	}
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	for i := range rngs {
		rngs[i] = rand.New(rand.NewSource(seeds[i]))
	}
	return rngs
}

func (p *Process) concurrent(n int) bool {
	return p.parallelCells && n >= 2
}

// eachCell calls fn for every cell index, in order or on an errgroup.
func (p *Process) eachCell(ctx context.Context, n int, fn func(i int)) error {
	if !p.concurrent(n) {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resolving cells: %w", err)
	}
	return nil
}

// apply moves a ledger onto the schools of its cell in one pass.
func (p *Process) apply(in *CellInput, idx []int, cs CellSchools, l *Ledger) {
	ns := len(in.Schools)
	colStarv := l.Col(components.CauseStarvation)
	colAdd := l.Col(components.CauseAdditional)
	colFish := l.Col(components.CauseFishing)

	for k := range in.Schools {
		s := cs.Schools[idx[k]]
		s.NDead[components.CausePredation] += l.Deaths(k, components.CausePredation)
		s.NDead[components.CauseStarvation] += l.Dead.At(k, colStarv)
		s.NDead[components.CauseAdditional] += l.Dead.At(k, colAdd)
		s.NDead[components.CauseFishing] += l.Dead.At(k, colFish)
		s.PredSuccess = l.PredSuccess[k]
		assertf(s.TotalDead() <= s.Abundance*(1+1e-9), "school %d deaths %.6g exceed abundance %.6g", s.ID, s.TotalDead(), s.Abundance)
	}

	for j := range in.Schools {
		pred := cs.Schools[idx[j]]
		var diet *components.Diet
		if p.recordDiet && idx[j] < len(cs.Diets) {
			diet = cs.Diets[idx[j]]
		}
		for row := 0; row < ns+l.NResources; row++ {
			n := l.PreyedBy(row, j)
			if n <= 0 {
				continue
			}
			rec := p.preyRecord(in, row, n)
			pred.PreyedBiomass += rec.Biomass
			pred.PreyedTL += rec.Biomass * rec.TrophicLevel
			if diet != nil {
				diet.Records = append(diet.Records, rec)
			}
			if row >= ns {
				p.resources.Consume(row-ns, in.Index, rec.Biomass)
			}
		}
	}
}

// preyRecord describes n units eaten from a prey row.
func (p *Process) preyRecord(in *CellInput, row int, n float64) components.PreyRecord {
	ns := len(in.Schools)
	if row < ns {
		prey := &in.Schools[row]
		return components.PreyRecord{
			Species:      prey.Species,
			TrophicLevel: prey.TrophicLevel,
			AgeDt:        prey.AgeDt,
			Length:       prey.Length,
			Biomass:      n * prey.Weight,
		}
	}
	g := row - ns
	return components.PreyRecord{
		Species:      p.numSpecies + g,
		TrophicLevel: p.resources.Groups()[g].TrophicLevel,
		AgeDt:        -1,
		Length:       -1,
		Biomass:      n,
	}
}

func (p *Process) observe(l *Ledger) {
	if _, ok := p.aggregator.(*Iterative); !ok {
		return
	}
	if p.stats.Cells == 0 || l.Iterations < p.stats.Min {
		p.stats.Min = l.Iterations
	}
	if l.Iterations > p.stats.Max {
		p.stats.Max = l.Iterations
	}
	p.stats.Mean += float64(l.Iterations)
	if !l.Converged {
		p.stats.Unconverged++
	}
	p.stats.Cells++
}
