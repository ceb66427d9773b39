package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpetrov/jobpool/internal/browse"
	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/store"
)

var (
	browseSearch   string
	browseLocation string
	browseLevel    string
	browseLimit    int
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse collected jobs interactively",
	RunE:  runBrowse,
}

func init() {
	browseCmd.Flags().StringVarP(&browseSearch, "search", "s", "", "substring match over title, company, and description")
	browseCmd.Flags().StringVarP(&browseLocation, "location", "l", "", "substring match over location")
	browseCmd.Flags().StringVar(&browseLevel, "level", "", "exact level: entry, mid, senior, or executive")
	browseCmd.Flags().IntVar(&browseLimit, "limit", 200, "maximum number of jobs to load")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if browseLevel != "" && !model.ValidLevel(browseLevel) {
		fmt.Fprintf(os.Stderr, "invalid --level %q: must be entry, mid, senior, or executive\n", browseLevel)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	jobs, err := st.ListJobs(store.ListOptions{
		Search:   browseSearch,
		Location: browseLocation,
		Level:    model.Level(browseLevel),
		Limit:    browseLimit,
	})
	if err != nil {
		logger.Error("listing jobs failed", "error", err)
		os.Exit(1)
	}

	title := "Jobs"
	if browseSearch != "" || browseLocation != "" || browseLevel != "" {
		title = "Jobs (filtered)"
	}
	return browse.Run(title, jobs)
}
