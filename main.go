package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/sim"
	"github.com/pthm-cable/shoal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath  string
	logLevel    string
	seed        int64
	maxSteps    int
	outputDir   string
	logStats    bool
	metricsAddr string
	restartPath string
	snapshotDir string

	rootCmd = &cobra.Command{
		Use:   "shoal",
		Short: "Spatial fish community simulator resolving competing mortality per grid cell",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			// JSON to stdout for structured logging
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the simulation headless",
		RunE:  runSimulation,
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and resolve every mortality scenario without stepping",
		RunE:  runValidate,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	f := runCmd.Flags()
	f.Int64Var(&seed, "seed", 0, "RNG seed (0 = time-based)")
	f.IntVar(&maxSteps, "max-steps", 0, "Stop after N steps (0 = configured run length)")
	f.StringVar(&outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot, a run id subdirectory is created")
	f.BoolVar(&logStats, "log-stats", false, "Output stats via slog")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (empty = disabled)")
	f.StringVar(&restartPath, "restart", "", "Resume from a population snapshot file")
	f.StringVar(&snapshotDir, "snapshot-dir", "", "Save a population snapshot here when the run stops (empty = disabled)")

	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Cfg()

	rngSeed := seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)
	slog.SetDefault(logger)

	dir := outputDir
	if dir != "" {
		dir = filepath.Join(dir, runID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var metrics *telemetry.Metrics
	if metricsAddr != "" {
		names := make([]string, len(cfg.Species))
		for i, sp := range cfg.Species {
			names[i] = sp.Name
		}
		metrics = telemetry.NewMetrics(names)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		slog.Info("serving metrics", "addr", metricsAddr)
	}

	var restart *telemetry.Snapshot
	if restartPath != "" {
		snap, err := telemetry.LoadSnapshot(restartPath)
		if err != nil {
			return err
		}
		restart = snap
	}

	s, err := sim.New(cfg, sim.Options{
		Seed:      rngSeed,
		OutputDir: dir,
		LogStats:  logStats,
		Metrics:   metrics,
		Restart:   restart,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("closing output", "error", err)
		}
	}()

	slog.Info("starting simulation",
		"seed", rngSeed,
		"algorithm", cfg.Mortality.Algorithm,
		"max_steps", maxSteps,
	)
	start := time.Now()
	runErr := s.Run(ctx, maxSteps)
	if snapshotDir != "" && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		path, err := telemetry.SaveSnapshot(s.Snapshot(runID), snapshotDir)
		if err != nil {
			return err
		}
		slog.Info("snapshot saved", "path", path, "step", s.StepCount())
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Warn("simulation interrupted", "step", s.StepCount())
			return nil
		}
		return runErr
	}
	slog.Info("simulation finished",
		"steps", s.StepCount(),
		"schools", s.NumSchools(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	s, err := sim.New(cfg, sim.Options{})
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d species, %d resources, %d schools, %d ocean cells, algorithm %s\n",
		len(cfg.Species), len(cfg.Resources), s.NumSchools(), s.Grid().NumOcean(), s.Process().Aggregator().Name())
	return nil
}
