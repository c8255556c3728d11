package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/soil-flow/internal/config"
	"github.com/talgya/soil-flow/internal/engine"
	"github.com/talgya/soil-flow/internal/logging"
	"github.com/talgya/soil-flow/internal/persistence"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "soilflow",
		Short:        "Daily carbon, nitrogen and phosphorus flows in a layered soil",
		SilenceUsage: true,
	}
	cmd.AddCommand(newRunCmd(), newValidateCmd(), newEventsCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	cfg := config.NewDefaultConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario and store daily results",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			// Flags given on the command line win over the environment.
			env := config.NewDefaultConfig()
			if err := env.LoadFromEnv(); err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("scenario") && env.ScenarioPath != "" {
				cfg.ScenarioPath = env.ScenarioPath
			}
			if !flags.Changed("db") {
				cfg.DBPath = env.DBPath
			}
			if !flags.Changed("days") {
				cfg.Days = env.Days
			}
			if !flags.Changed("log-level") {
				cfg.LogLevel = env.LogLevel
			}
			if !flags.Changed("log-format") {
				cfg.LogFormat = env.LogFormat
			}
			if !flags.Changed("day-interval") {
				cfg.DayInterval = env.DayInterval
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.ScenarioPath, "scenario", "s", "", "scenario YAML file")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flags.IntVarP(&cfg.Days, "days", "d", cfg.Days, "number of days to simulate")
	flags.DurationVar(&cfg.DayInterval, "day-interval", 0, "wall-clock pause per simulated day")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := config.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if _, err := engine.NewSimulation(sc, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d layers, %d pools, %d flows, weather %s\n",
				sc.Name, len(sc.Layers), len(sc.Pools), len(sc.Flows), sc.Weather.Mode)
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "List a stored run's most recent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			events, err := db.RecentEvents(args[0], limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-5s  %s\n",
					engine.SimTime(e.Date), e.Category, e.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", config.NewDefaultConfig().DBPath, "SQLite database path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	return cmd
}

func run(cfg *config.Config, out io.Writer) error {
	logger, err := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	sc, err := config.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	runID, err := db.NewRun(sc.Name, sc.Start)
	if err != nil {
		return err
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(sc, logger)
	if err != nil {
		return err
	}
	slog.Info("scenario ready",
		"run", runID,
		"scenario", sc.Name,
		"layers", sim.Profile.Layers(),
		"pools", len(sim.Profile.Pools),
		"flows", len(sim.Flows),
		"weather", sc.Weather.Mode,
	)

	eng := engine.NewEngine(sc.Start)
	eng.Interval = cfg.DayInterval

	eng.OnYear = func(year int) error {
		if sim.Stats.Days > 0 {
			if err := db.SaveRunState(runID, sim); err != nil {
				slog.Error("yearly save failed", "error", err)
			}
		}
		return sim.TickYear(year)
	}
	eng.OnDay = func(date time.Time) error {
		if err := sim.TickDay(date); err != nil {
			return err
		}
		return db.SaveDay(runID, date, sim.Last)
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			eng.Stop()
		case <-done:
		}
	}()

	runErr := eng.Run(cfg.Days)

	slog.Info("final save...")
	if err := db.SaveRunState(runID, sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "\nRun %s: %d days of %s ending %s.\n",
		runID, sim.Stats.Days, sc.Name, engine.SimTime(sim.Date))
	fmt.Fprintf(out, "CO2-C released: %.2f kg/ha, net N mineralised: %.3f kg/ha\n",
		sim.Stats.TotalCO2, sim.Stats.Totals.MineralN-sim.Stats.InitialTotal.MineralN)
	fmt.Fprintf(out, "Carbon balance error: %.2e, nitrogen balance error: %.2e\n",
		sim.CarbonBalance(), sim.NitrogenBalance())
	return nil
}
