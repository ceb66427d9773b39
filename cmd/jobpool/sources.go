package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpetrov/jobpool/internal/collector"
	"github.com/mpetrov/jobpool/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage job sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sources",
	RunE:  runSourcesList,
}

var (
	addSourceType string
	addSourceName string
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add <locator>",
	Short: "Add a source",
	Long: `Adds a source. The locator is a feed URL (--type rss), a career page
URL (--type url), or an API locator (--type api): a full API URL, an
"adzuna:<keywords>" query, or bare keywords when Adzuna credentials are
configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesAdd,
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a source and deactivate its jobs",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesRemove,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection status",
	RunE:  runStatus,
}

func init() {
	sourcesAddCmd.Flags().StringVarP(&addSourceType, "type", "t", "", "source type: rss, url, or api (required)")
	sourcesAddCmd.Flags().StringVarP(&addSourceName, "name", "n", "", "human-readable label")
	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesRemoveCmd)
	rootCmd.AddCommand(sourcesCmd, statusCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	sources, err := st.ActiveSources()
	if err != nil {
		logger.Error("listing sources failed", "error", err)
		os.Exit(1)
	}

	if len(sources) == 0 {
		fmt.Println("no sources configured, add one with: jobpool sources add")
		return nil
	}

	fmt.Printf("%-5s %-5s %-10s %-30s %s\n", "ID", "Type", "Provider", "Name", "Locator")
	fmt.Println(strings.Repeat("─", 80))
	for _, src := range sources {
		fmt.Printf("%-5d %-5s %-10s %-30s %s\n", src.ID, src.Type, src.Provider, src.Name, src.Locator)
	}
	fmt.Printf("\nTotal: %d sources\n", len(sources))
	return nil
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch addSourceType {
	case model.SourceRSS, model.SourceURL, model.SourceAPI:
	default:
		fmt.Fprintf(os.Stderr, "invalid --type %q: must be rss, url, or api\n", addSourceType)
		os.Exit(1)
	}

	src := model.Source{
		Type:    addSourceType,
		Locator: args[0],
		Name:    addSourceName,
	}
	// The provider tag is fixed at creation so collection passes never
	// re-sniff the locator.
	if src.Type == model.SourceAPI {
		src.Provider = collector.ResolveProvider(src.Locator, cfg.Adzuna.Configured())
	}

	st := openStore(cfg, logger)
	defer st.Close()

	id, err := st.AddSource(src)
	if err != nil {
		logger.Error("adding source failed", "error", err)
		os.Exit(1)
	}

	if src.Provider != "" {
		fmt.Printf("added source %d (%s, provider %s)\n", id, src.Type, src.Provider)
	} else {
		fmt.Printf("added source %d (%s)\n", id, src.Type)
	}
	return nil
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid source id %q\n", args[0])
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	removed, err := st.RemoveSource(id)
	if err != nil {
		logger.Error("removing source failed", "error", err)
		os.Exit(1)
	}
	if !removed {
		fmt.Fprintf(os.Stderr, "no active source with id %d\n", id)
		os.Exit(1)
	}

	fmt.Printf("removed source %d and deactivated its jobs\n", id)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	status, err := st.Status()
	if err != nil {
		logger.Error("reading status failed", "error", err)
		os.Exit(1)
	}

	lastRefresh := "never"
	if status.LastRefresh != nil {
		lastRefresh = status.LastRefresh.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Printf("last refresh:  %s\n", lastRefresh)
	fmt.Printf("active jobs:   %d\n", status.JobsCount)
	fmt.Printf("sources:       %d\n", status.SourcesCount)
	if status.APILimitReached {
		when := ""
		if status.APILimitDate != nil {
			when = " since " + status.APILimitDate.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("api quota:     exhausted%s, resumes tomorrow\n", when)
	} else {
		fmt.Printf("api quota:     ok\n")
	}
	return nil
}
