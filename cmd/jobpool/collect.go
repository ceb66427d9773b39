package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpetrov/jobpool/internal/collector"
	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/orchestrator"
)

var (
	collectSourceID   int64
	collectLocator    string
	collectSourceType string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and exit",
	Long: `Collects every active source once and prints the result. With --source
only that source runs; with --locator an ad-hoc source is collected
without registering it.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().Int64Var(&collectSourceID, "source", 0, "collect only the source with this id")
	collectCmd.Flags().StringVar(&collectLocator, "locator", "", "collect an ad-hoc locator without saving it as a source")
	collectCmd.Flags().StringVar(&collectSourceType, "type", model.SourceAPI, "type of the ad-hoc locator: rss, url, or api")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	provider := setupProvider(cfg)
	collectors := buildCollectors(cfg, st, provider, logger)
	orch := orchestrator.New(collectors, st, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stats orchestrator.Stats
	switch {
	case collectLocator != "":
		src := model.Source{Type: collectSourceType, Locator: collectLocator}
		if src.Type == model.SourceAPI {
			src.Provider = collector.ResolveProvider(src.Locator, cfg.Adzuna.Configured())
		}
		stats = orch.CollectFromSource(ctx, src)
		if err := st.RecordRefresh(); err != nil {
			logger.Error("recording refresh failed", "error", err)
		}
	case collectSourceID > 0:
		sources, err := st.ActiveSources()
		if err != nil {
			logger.Error("listing sources failed", "error", err)
			os.Exit(1)
		}
		found := false
		for _, src := range sources {
			if src.ID == collectSourceID {
				stats = orch.CollectFromSource(ctx, src)
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(os.Stderr, "no active source with id %d\n", collectSourceID)
			os.Exit(1)
		}
		if err := st.RecordRefresh(); err != nil {
			logger.Error("recording refresh failed", "error", err)
		}
	default:
		stats = orch.CollectAll(ctx)
	}

	fmt.Printf("collected %d jobs (%d new, %d updated, %d failed)\n",
		stats.Collected, stats.Created, stats.Updated, stats.Failed)
	return nil
}
