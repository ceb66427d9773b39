package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/orchestrator"
	"github.com/mpetrov/jobpool/internal/scheduler"
	"github.com/mpetrov/jobpool/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collection daemon",
	Long:  "Runs scheduled collection passes; blocks until SIGINT/SIGTERM. SIGHUP triggers an immediate pass.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"interval", cfg.Interval.String(),
		"database", cfg.DatabasePath,
		"adzuna", cfg.Adzuna.Configured(),
		"rotation", cfg.Rotation.Enabled,
		"ai", cfg.AI.Enabled,
	)

	st := openStore(cfg, logger)
	defer st.Close()

	if err := seedDefaultSource(st, cfg.Adzuna.Configured(), logger); err != nil {
		logger.Error("seeding default source failed", "error", err)
		os.Exit(1)
	}

	provider := setupProvider(cfg)
	collectors := buildCollectors(cfg, st, provider, logger)
	orch := orchestrator.New(collectors, st, logger)

	rotation := scheduler.Rotation{
		Enabled:  cfg.Rotation.Enabled && cfg.Adzuna.Configured(),
		Keywords: cfg.Rotation.Keywords,
	}
	sched := scheduler.New(orch, st, cfg.Interval, rotation, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP requests an immediate pass without restarting the daemon.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("manual refresh requested")
				sched.Kick()
			}
		}
	}()

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// seedDefaultSource registers a catch-all API source on first run so a
// freshly configured install collects something before the user curates
// their own source list. Skipped without credentials or when sources
// already exist.
func seedDefaultSource(st *store.SQLiteStore, adzunaConfigured bool, logger *slog.Logger) error {
	if !adzunaConfigured {
		return nil
	}
	sources, err := st.ActiveSources()
	if err != nil {
		return err
	}
	if len(sources) > 0 {
		return nil
	}

	id, err := st.AddSource(model.Source{
		Type:     model.SourceAPI,
		Locator:  "all",
		Name:     "Adzuna (all jobs)",
		Provider: model.ProviderAdzuna,
	})
	if err != nil {
		return err
	}
	logger.Info("seeded default api source", "id", id)
	return nil
}
