// Package main calibrates per-species additional mortality multipliers with
// CMA-ES so that simulated mean biomass matches target values.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/sim"
)

var (
	configPath  string
	targetsPath string
	maxSteps    int
	numSeeds    int
	maxEvals    int
	population  int
	outputDir   string

	rootCmd = &cobra.Command{
		Use:   "calibrate",
		Short: "Fit additional mortality multipliers to target biomass with CMA-ES",
		RunE:  runCalibrate,
	}
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "Base config YAML file (empty = use defaults)")
	f.StringVar(&targetsPath, "targets", "", "YAML map of species name to target mean biomass in tonnes (empty = initial biomass)")
	f.IntVar(&maxSteps, "max-steps", 0, "Steps per run (0 = configured run length)")
	f.IntVar(&numSeeds, "seeds", 3, "Number of seeds per evaluation")
	f.IntVar(&maxEvals, "max-evals", 100, "Maximum number of evaluations")
	f.IntVar(&population, "population", 0, "CMA-ES population size (0 = auto)")
	f.StringVar(&outputDir, "output", "", "Output directory for results")
	_ = rootCmd.MarkFlagRequired("output")
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// Simulation runs log at info; keep calibration output readable
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	baseCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	params := NewParamVector(baseCfg)
	if params.Dim() == 0 {
		return errors.New("no species with an annual additional mortality rate to calibrate")
	}

	targets, err := resolveTargets(baseCfg)
	if err != nil {
		return err
	}

	// Generate seeds for evaluation
	evalSeeds := make([]int64, numSeeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, maxSteps, evalSeeds, baseCfg, targets)

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	popSize := population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Concurrent:      0, // Sequential evaluation, seeds run in parallel
	}

	logPath := filepath.Join(outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "fitness"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	for _, sp := range baseCfg.Species {
		header = append(header, sp.Name+"_biomass")
	}
	if err := logWriter.Write(header); err != nil {
		return fmt.Errorf("writing log header: %w", err)
	}

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	var evalErr error
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness, err := evaluator.Evaluate(ctx, raw)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				return 1e9
			}
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = append(bestParams[:0], raw...)
			}

			// Log clamped values to CSV (these are the values actually used)
			row := []string{strconv.Itoa(evalCount), fmt.Sprintf("%.6f", fitness)}
			for _, v := range raw {
				row = append(row, fmt.Sprintf("%.6f", v))
			}
			for _, b := range evaluator.LastBiomass() {
				row = append(row, fmt.Sprintf("%.3f", b))
			}
			logWriter.Write(row)
			logWriter.Flush()

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(maxEvals-evalCount) * avgPerEval
			fmt.Fprintf(cmd.OutOrStdout(), "Eval %d/%d: fitness=%.4f (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, maxEvals, fitness, bestFitness,
				formatDuration(elapsed), formatDuration(remaining))
			return fitness
		},
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting CMA-ES calibration with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, maxEvals)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if evalErr != nil {
		return fmt.Errorf("evaluation failed: %w", evalErr)
	}
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		return errors.New("no evaluation completed")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Fprintf(cmd.OutOrStdout(), "Best fitness: %.6f\n\nBest parameters:\n", bestFitness)
	for i, spec := range params.Specs {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %.6f\n", spec.Path, bestParams[i])
	}

	bestCfg, err := baseCfg.Clone()
	if err != nil {
		return err
	}
	params.ApplyToConfig(bestCfg, bestParams)
	configOutPath := filepath.Join(outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		return fmt.Errorf("writing best config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nBest config saved to: %s\n", configOutPath)
	return nil
}

// resolveTargets loads the targets file, or uses each species' initial biomass.
func resolveTargets(cfg *config.Config) ([]float64, error) {
	if targetsPath != "" {
		t, err := LoadTargets(targetsPath)
		if err != nil {
			return nil, err
		}
		return t.resolve(cfg)
	}

	rows := cfg.Schools.Initial
	if cfg.Schools.File != "" {
		loaded, err := sim.LoadSchoolsCSV(cfg.Schools.File)
		if err != nil {
			return nil, err
		}
		rows = loaded
	}
	t := Targets{}
	for _, row := range rows {
		t[row.Species] += row.Abundance * row.Weight * components.GramsToTonnes
	}
	for name, v := range t {
		if v <= 0 {
			delete(t, name)
		}
	}
	return t.resolve(cfg)
}
