// Package sim owns the school population and advances it one time step at a
// time around the mortality process.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/mortality"
	"github.com/pthm-cable/shoal/systems"
	"github.com/pthm-cable/shoal/telemetry"
)

// Options configures a Simulation.
type Options struct {
	Seed      int64
	OutputDir string // empty disables CSV output
	LogStats  bool
	Metrics   *telemetry.Metrics // nil disables Prometheus export

	// Restart, when set, replaces the configured initial schools and
	// resumes at the snapshot's step.
	Restart *telemetry.Snapshot

	// StatsCallback, when set, receives every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Simulation holds the complete simulation state.
type Simulation struct {
	cfg   *config.Config
	world *ecs.World
	rng   *rand.Rand

	schoolMapper *ecs.Map3[components.School, components.Location, components.Diet]
	schoolFilter *ecs.Filter3[components.School, components.Location, components.Diet]

	grid      *systems.Grid
	resources *systems.ResourceField
	mpas      *systems.MPASet
	feeding   []systems.StageClassifier
	access    []systems.StageClassifier
	process   *mortality.Process

	// State
	seed       int64
	step       int
	nextID     uint32
	numSchools int

	// Telemetry
	collector     *telemetry.Collector
	perf          *telemetry.StepTimer
	output        *telemetry.OutputManager
	metrics       *telemetry.Metrics
	statsCallback func(telemetry.WindowStats)
	logStats      bool
}

// New builds the grid, resources, mortality process and initial population of cfg.
// Configuration errors are returned before any step runs.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	world := ecs.NewWorld()
	s := &Simulation{
		cfg:           cfg,
		world:         world,
		rng:           rand.New(rand.NewSource(opts.Seed)),
		seed:          opts.Seed,
		schoolMapper:  ecs.NewMap3[components.School, components.Location, components.Diet](world),
		schoolFilter:  ecs.NewFilter3[components.School, components.Location, components.Diet](world),
		metrics:       opts.Metrics,
		statsCallback: opts.StatsCallback,
		logStats:      opts.LogStats,
	}

	s.grid = systems.NewGridFromConfig(cfg)
	maps, err := systems.LoadGridMaps(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading maps: %w", err)
	}
	if s.resources, err = systems.NewResourceField(cfg, s.grid, maps); err != nil {
		return nil, fmt.Errorf("building resource field: %w", err)
	}
	s.mpas = systems.NewMPASet(cfg, s.grid)

	spy := cfg.Simulation.StepsPerYear
	species := make([]string, len(cfg.Species))
	for i, sp := range cfg.Species {
		species[i] = sp.Name
		s.feeding = append(s.feeding, systems.NewStageClassifier(sp.FeedingStages, spy))
		s.access = append(s.access, systems.NewStageClassifier(sp.AccessStages, spy))
	}

	if s.process, err = mortality.NewProcess(cfg, s.grid, s.resources, s.mpas, maps); err != nil {
		return nil, err
	}
	if _, ok := s.process.Aggregator().(*mortality.Iterative); ok && s.metrics != nil {
		s.process.OnCell = func(_ int, l *mortality.Ledger) {
			s.metrics.ObserveCellIterations(l.Iterations)
		}
	}

	s.collector = telemetry.NewCollector(cfg.Telemetry.WindowSteps, spy, species)
	s.perf = telemetry.NewStepTimer()
	if s.output, err = telemetry.NewOutputManager(opts.OutputDir); err != nil {
		return nil, err
	}
	if err := s.output.WriteConfig(cfg); err != nil {
		s.output.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	spawn := s.spawnInitialPopulation
	if opts.Restart != nil {
		spawn = func() error { return s.restore(opts.Restart) }
	}
	if err := spawn(); err != nil {
		s.output.Close()
		return nil, err
	}

	slog.Info("simulation ready",
		"seed", opts.Seed,
		"start_step", s.step,
		"schools", s.numSchools,
		"ocean_cells", s.grid.NumOcean(),
		"steps", cfg.Derived.TotalSteps,
		"output_dir", s.output.Dir(),
	)
	return s, nil
}

// Step advances the simulation by one time step.
func (s *Simulation) Step(ctx context.Context) error {
	s.perf.StartStep()

	s.perf.StartPhase(telemetry.PhaseReset)
	s.resetStep()

	s.perf.StartPhase(telemetry.PhaseMortality)
	if err := s.process.Run(ctx, s.step, s, s.rng); err != nil {
		return fmt.Errorf("step %d: mortality: %w", s.step, err)
	}

	s.perf.StartPhase(telemetry.PhaseUpdate)
	s.updateAbundance()

	s.perf.StartPhase(telemetry.PhaseAging)
	s.age()

	s.perf.StartPhase(telemetry.PhaseCleanup)
	s.cleanupExtinct()

	s.step++

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.collector.RecordIterations(s.process.IterationStats())

	d := s.perf.EndStep()
	s.metrics.ObserveStep(d.Seconds(), s.numSchools)
	s.flushTelemetry()
	return nil
}

// Run steps until the configured run length, maxSteps steps (when > 0),
// extinction of every school, or cancellation of ctx.
func (s *Simulation) Run(ctx context.Context, maxSteps int) error {
	total := s.cfg.Derived.TotalSteps
	if maxSteps > 0 && maxSteps < total {
		total = maxSteps
	}
	for s.step < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
		if s.numSchools == 0 {
			slog.Warn("population extinct", "step", s.step)
			return nil
		}
	}
	return nil
}

// Close flushes and closes the output files.
func (s *Simulation) Close() error {
	return s.output.Close()
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int {
	return s.step
}

// NumSchools returns the number of living schools.
func (s *Simulation) NumSchools() int {
	return s.numSchools
}

// Process returns the mortality process.
func (s *Simulation) Process() *mortality.Process {
	return s.process
}

// Grid returns the spatial grid.
func (s *Simulation) Grid() *systems.Grid {
	return s.grid
}

// resetStep clears the per-step accumulators and refreshes the stages.
func (s *Simulation) resetStep() {
	query := s.schoolFilter.Query()
	for query.Next() {
		school, _, diet := query.Get()
		school.ResetStep()
		school.FeedingStage = s.feeding[school.Species].Stage(school.AgeDt, school.Length)
		school.AccessStage = s.access[school.Species].Stage(school.AgeDt, school.Length)
		diet.Records = diet.Records[:0]
	}
}

// updateAbundance records the step's deaths and commits them.
func (s *Simulation) updateAbundance() {
	query := s.schoolFilter.Query()
	for query.Next() {
		school, _, _ := query.Get()
		s.collector.RecordSchool(school)
		s.metrics.ObserveSchool(school)
		school.UpdateAbundance()
	}
}

// age advances every school by one time step.
func (s *Simulation) age() {
	query := s.schoolFilter.Query()
	for query.Next() {
		school, _, _ := query.Get()
		school.AgeDt++
	}
}
