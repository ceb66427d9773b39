package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mpetrov/jobpool/internal/ai"
	"github.com/mpetrov/jobpool/internal/store"
)

var profilePath string

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank collected jobs against a candidate profile",
	Long: `Ranks collected jobs against the profile YAML (experience, skills,
level, location). Uses the configured LLM when available, deterministic
scoring otherwise.`,
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().StringVarP(&profilePath, "profile", "p", "profile.yaml", "path to the profile YAML")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read profile: %v\n", err)
		os.Exit(1)
	}
	var profile ai.Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		fmt.Fprintf(os.Stderr, "parse profile: %v\n", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	jobs, err := st.ListJobs(store.ListOptions{Limit: 100})
	if err != nil {
		logger.Error("listing jobs failed", "error", err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs collected yet, run: jobpool collect")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recommender := ai.NewRecommender(setupProvider(cfg), logger)
	recs := recommender.Rank(ctx, profile, jobs)
	if len(recs) == 0 {
		fmt.Println("no jobs matched the profile")
		return nil
	}

	for i, rec := range recs {
		j := rec.Job
		fmt.Printf("%d. %s — %s (%s, %s)\n", i+1, j.Title, j.Company, j.Location, j.Level)
		if rec.Reason != "" {
			fmt.Printf("   %s\n", rec.Reason)
		}
		fmt.Printf("   %s\n", j.URL)
	}
	return nil
}
