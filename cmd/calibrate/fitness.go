package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/sim"
	"github.com/pthm-cable/shoal/telemetry"
)

// biomassFloor keeps log ratios finite when a species collapses (tonnes).
const biomassFloor = 1e-3

// warmupWindows are skipped when averaging simulated biomass.
const warmupWindows = 1

// Targets maps species names to target mean biomass in tonnes.
type Targets map[string]float64

// LoadTargets reads a YAML mapping of species name to target biomass.
func LoadTargets(path string) (Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading targets: %w", err)
	}
	var t Targets
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing targets: %w", err)
	}
	return t, nil
}

// resolve orders targets by species index, NaN for species without a target.
func (t Targets) resolve(cfg *config.Config) ([]float64, error) {
	out := make([]float64, len(cfg.Species))
	for i := range out {
		out[i] = math.NaN()
	}
	for name, v := range t {
		i, ok := cfg.Derived.SpeciesIndex[name]
		if !ok {
			return nil, fmt.Errorf("target for unknown species %q", name)
		}
		if v <= 0 {
			return nil, fmt.Errorf("target for %q must be positive", name)
		}
		out[i] = v
	}
	return out, nil
}

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	maxSteps   int
	seeds      []int64
	baseConfig *config.Config
	targets    []float64

	mu          sync.Mutex
	lastBiomass []float64 // mean simulated biomass of the most recent evaluation
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxSteps int, seeds []int64, baseCfg *config.Config, targets []float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxSteps:   maxSteps,
		seeds:      seeds,
		baseConfig: baseCfg,
		targets:    targets,
	}
}

// LastBiomass returns the mean simulated biomass per species of the most recent evaluation.
func (fe *FitnessEvaluator) LastBiomass() []float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastBiomass
}

// Evaluate computes fitness for a parameter vector (lower = better):
// the squared log ratio of simulated to target biomass, summed over
// species and averaged over seeds.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	cfg, err := fe.baseConfig.Clone()
	if err != nil {
		return 0, err
	}
	fe.params.ApplyToConfig(cfg, x)

	// Run all seeds in parallel
	biomass := make([][]float64, len(fe.seeds))
	g, ctx := errgroup.WithContext(ctx)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			b, err := fe.runSimulation(ctx, cfg, seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			biomass[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	mean := make([]float64, len(cfg.Species))
	var fitness float64
	for _, b := range biomass {
		fitness += fe.computeFitness(b)
		for sp, v := range b {
			mean[sp] += v / float64(len(biomass))
		}
	}

	fe.mu.Lock()
	fe.lastBiomass = mean
	fe.mu.Unlock()

	return fitness / float64(len(fe.seeds)), nil
}

// runSimulation executes one headless run and returns the mean biomass per
// species over the stats windows after warmup.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, cfg *config.Config, seed int64) ([]float64, error) {
	var windows []telemetry.WindowStats
	s, err := sim.New(cfg, sim.Options{
		Seed: seed,
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Run(ctx, fe.maxSteps); err != nil {
		return nil, err
	}
	return meanBiomass(windows, len(cfg.Species)), nil
}

// meanBiomass averages per-species window biomass, skipping warmup windows
// when enough windows are available.
func meanBiomass(windows []telemetry.WindowStats, numSpecies int) []float64 {
	if len(windows) > warmupWindows {
		windows = windows[warmupWindows:]
	}
	out := make([]float64, numSpecies)
	series := make([]float64, len(windows))
	for sp := range out {
		for w, stats := range windows {
			series[w] = 0
			if sp < len(stats.Species) {
				series[w] = stats.Species[sp].Biomass
			}
		}
		if len(series) > 0 {
			out[sp] = stat.Mean(series, nil)
		}
	}
	return out
}

// computeFitness sums the squared log ratio over species with a target.
func (fe *FitnessEvaluator) computeFitness(biomass []float64) float64 {
	var f float64
	for sp, target := range fe.targets {
		if math.IsNaN(target) {
			continue
		}
		r := math.Log(max(biomass[sp], biomassFloor) / target)
		f += r * r
	}
	return f
}
