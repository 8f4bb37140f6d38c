// Command gridsim runs the adaptive traffic signal simulation on a street
// grid with vehicles and patrol drones.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/gridsim/internal/api"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/entropy"
	"github.com/talgya/gridsim/internal/persistence"
	"github.com/talgya/gridsim/internal/render"
	"github.com/talgya/gridsim/internal/signal"
)

// options holds the command-line settings of one run.
type options struct {
	steps       int
	gridSize    int
	vehicles    int
	drones      int
	delay       time.Duration
	seed        int64
	verbose     bool
	journal     string
	apiPort     int
	reportEvery int
	logFormat   string
	logLevel    string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "gridsim",
		Short: "Simulate adaptive traffic signals on a street grid",
		Long: `Run a tick-based simulation of signalised intersections on an N×N grid.

Each intersection cycles RED, GREEN and YELLOW and lengthens or shortens its
green time from the vehicles it sees nearby. Vehicles drive trips between
demand hot spots and drones patrol the grid reporting congestion.

Every flag can also be set with a GRIDSIM_* environment variable, for
example GRIDSIM_STEPS=500.

Examples:
  # A short run with a fixed seed
  gridsim --steps 200 --seed 7

  # Draw the grid every tick and serve the HTTP API
  gridsim --verbose --api-port 8080 --delay 250ms`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, stdout)
		},
	}

	def := engine.DefaultConfig()
	f := cmd.Flags()
	f.IntVar(&opts.steps, "steps", envIntOrDefault("GRIDSIM_STEPS", 100), "Ticks to simulate (0 runs until interrupted)")
	f.IntVar(&opts.gridSize, "grid-size", envIntOrDefault("GRIDSIM_GRID_SIZE", def.GridSize), "Side length of the street grid")
	f.IntVar(&opts.vehicles, "vehicles", envIntOrDefault("GRIDSIM_VEHICLES", def.Vehicles), "Number of vehicles")
	f.IntVar(&opts.drones, "drones", envIntOrDefault("GRIDSIM_DRONES", def.Drones), "Number of patrol drones")
	f.DurationVar(&opts.delay, "delay", envDurationOrDefault("GRIDSIM_DELAY", 200*time.Millisecond), "Pause between ticks")
	f.Int64Var(&opts.seed, "seed", int64(envIntOrDefault("GRIDSIM_SEED", 0)), "Random seed (0 picks one and logs it)")
	f.BoolVarP(&opts.verbose, "verbose", "v", envOrDefault("GRIDSIM_VERBOSE", "") != "", "Draw the grid every tick")
	f.StringVar(&opts.journal, "journal", envOrDefault("GRIDSIM_JOURNAL", ""), "SQLite file to journal signal events to")
	f.IntVar(&opts.apiPort, "api-port", envIntOrDefault("GRIDSIM_API_PORT", 0), "Serve the HTTP API on this port (0 disables)")
	f.IntVar(&opts.reportEvery, "report-every", envIntOrDefault("GRIDSIM_REPORT_EVERY", engine.DefaultReportEvery), "Ticks between progress log lines")
	f.StringVar(&opts.logFormat, "log-format", envOrDefault("GRIDSIM_LOG_FORMAT", "auto"), "Log format: auto, text or json")
	f.StringVar(&opts.logLevel, "log-level", envOrDefault("GRIDSIM_LOG_LEVEL", "info"), "Log level: debug, info, warn or error")

	return cmd
}

func (o *options) validate() error {
	switch {
	case o.steps < 0:
		return fmt.Errorf("--steps must not be negative, got %d", o.steps)
	case o.apiPort < 0 || o.apiPort > 65535:
		return fmt.Errorf("--api-port out of range: %d", o.apiPort)
	case o.reportEvery < 0:
		return fmt.Errorf("--report-every must not be negative, got %d", o.reportEvery)
	}
	switch o.logFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("unknown --log-format %q", o.logFormat)
	}
	return nil
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	logger, err := newLogger(opts.logFormat, opts.logLevel, stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg := engine.DefaultConfig()
	cfg.GridSize = opts.gridSize
	cfg.Vehicles = opts.vehicles
	cfg.Drones = opts.drones
	cfg.Seed = entropy.ResolveSeed(opts.seed)

	slog.Info("gridsim starting",
		"seed", cfg.Seed,
		"grid_size", cfg.GridSize,
		"vehicles", cfg.Vehicles,
		"drones", cfg.Drones,
		"steps", opts.steps,
	)

	// ── Journal ───────────────────────────────────────────────────────
	var journal *persistence.Journal
	var sinks []signal.Sink
	if opts.journal != "" {
		journal, err = persistence.Open(opts.journal, persistence.RunInfo{
			Seed:     cfg.Seed,
			GridSize: cfg.GridSize,
			Vehicles: cfg.Vehicles,
			Drones:   cfg.Drones,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg, logger, sinks...)
	if err != nil {
		return err
	}
	if journal != nil {
		sim.OnEvent = journal.RecordEvent
	}

	eng := engine.NewEngine(uint64(opts.steps), opts.delay)
	eng.ReportEvery = uint64(opts.reportEvery)
	eng.OnTick = func(tick uint64) {
		sim.Step(tick)
		if journal != nil {
			if err := journal.Flush(sim.Snapshot()); err != nil {
				slog.Error("journal flush failed", "tick", tick, "error", err)
			}
		}
		if opts.verbose {
			if err := render.Grid(stdout, sim.Occupancy, tick); err != nil {
				slog.Warn("render failed", "error", err)
			}
		}
	}
	eng.OnReport = func(tick uint64) {
		st := sim.Stats
		slog.Info("progress",
			"tick", tick,
			"arrived", st.Arrived,
			"waiting", st.Waiting,
			"green_lights", st.GreenLights,
			"avg_wait", fmt.Sprintf("%.2f", st.AvgWait),
			"mean_congestion", fmt.Sprintf("%.2f", st.MeanCongestion),
		)
	}

	// ── Run ───────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	engCtx, stopAPI := context.WithCancel(gctx)

	if opts.apiPort > 0 {
		srv := &api.Server{Sim: sim, Eng: eng, Port: opts.apiPort}
		if journal != nil {
			srv.RunID = journal.RunID()
		}
		g.Go(func() error { return srv.Start(engCtx) })
		fmt.Fprintf(stdout, "API: http://localhost:%d/api/v1/status\n", opts.apiPort)
	}

	g.Go(func() error {
		// The API only lives as long as the run.
		defer stopAPI()
		err := eng.Run(engCtx)
		if errors.Is(err, context.Canceled) {
			slog.Info("run interrupted", "tick", eng.Tick())
			return nil
		}
		return err
	})

	runErr := g.Wait()
	stopAPI()

	if journal != nil {
		if err := journal.Finish(); err != nil {
			slog.Error("journal finish failed", "error", err)
		}
	}
	if err := sim.Summary(stdout); err != nil {
		return err
	}
	return runErr
}

// newLogger builds the slog logger. The auto format picks text on a
// terminal and JSON otherwise.
func newLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("unknown --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
