package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mpetrov/jobpool/internal/ai"
	"github.com/mpetrov/jobpool/internal/collector"
	"github.com/mpetrov/jobpool/internal/config"
	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/ratelimit"
	"github.com/mpetrov/jobpool/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobpool",
	Short: "Job posting aggregator",
	Long:  "Jobpool collects postings from RSS feeds, career pages, and job APIs into one searchable pool.",
	// Default to `serve` so that `jobpool` with no args runs the daemon.
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBPOOL_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBPOOL_CONFIG env var > "./config.yaml".
// Without an explicit path a missing file falls back to defaults, so the
// tool works out of the box against a local database.
func loadConfig(path string) (*config.Config, error) {
	// Secrets referenced by the config may live in a .env file.
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		if env := os.Getenv("JOBPOOL_CONFIG"); env != "" {
			path = env
			explicit = true
		} else {
			path = "config.yaml"
		}
	}

	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// setupProvider returns the LLM provider, or nil when the AI layer is
// disabled.
func setupProvider(cfg *config.Config) ai.LLMProvider {
	if !cfg.AI.Enabled {
		return nil
	}
	httpClient := &http.Client{Timeout: cfg.AI.Timeout}
	return ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
}

// buildCollectors wires one collector per source type, all sharing the
// fetch timeout and the inter-request pacer.
func buildCollectors(cfg *config.Config, st *store.SQLiteStore, provider ai.LLMProvider, logger *slog.Logger) map[string]model.Collector {
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	pacer := ratelimit.NewPacer(cfg.Adzuna.PageDelay)

	apiCfg := collector.APIConfig{
		AdzunaAppID:    cfg.Adzuna.AppID,
		AdzunaAppKey:   cfg.Adzuna.AppKey,
		AdzunaCountry:  cfg.Adzuna.Country,
		ReedAPIKey:     cfg.Reed.APIKey,
		ResultsPerPage: cfg.Adzuna.ResultsPerPage,
		MaxPages:       cfg.Adzuna.MaxPages,
	}

	return map[string]model.Collector{
		model.SourceRSS: collector.NewRSS(httpClient, logger),
		model.SourceURL: collector.NewURL(httpClient, provider, logger),
		model.SourceAPI: collector.NewAPI(httpClient, apiCfg, st, pacer, logger),
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) *store.SQLiteStore {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	return st
}
