package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marketscout/internal/budget"
	"marketscout/internal/cache"
	"marketscout/internal/config"
	"marketscout/internal/database"
	"marketscout/internal/fetch"
	"marketscout/internal/pipeline"
	"marketscout/internal/ratelimit"
	"marketscout/internal/retry"
	"marketscout/internal/scrape"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "marketscout",
	Short:   "Marketplace best-seller tracking and product ideation",
	Long:    "MarketScout collects marketplace best-seller rankings, enriches product details, derives market metrics, and generates product ideas.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API keys commonly live in a local .env during development.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(budgetCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("marketscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/marketscout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure categories, rate limits, and the AI provider.")
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ranks -> enrichment -> reviews -> save -> metrics -> extraction -> ideation",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		tracker, err := openTracker()
		if err != nil {
			return err
		}

		pipe := pipeline.New(cfg, db, store, tracker)
		result := pipe.Run(context.Background())

		for i, stage := range result.Stages {
			fmt.Printf("\nStage %d/%d: %s [%s]\n", i+1, len(result.Stages), stage.Name, stage.Status)
			if stage.Err != nil {
				fmt.Printf("  Error: %v\n", stage.Err)
			} else if stage.Message != "" {
				fmt.Printf("  %s (%d items, %.1fs)\n", stage.Message, stage.ItemCount, stage.Elapsed.Seconds())
			} else {
				fmt.Printf("  %d items in %.1fs\n", stage.ItemCount, stage.Elapsed.Seconds())
			}
		}

		fmt.Printf("\nRun %s finished: %s\n", result.RunID, result.Status)
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect category rankings only, without enrichment or AI stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour)
		client := fetch.NewClient(fetch.NewHTTPNavigator(cfg.RequestTimeout()), limiter)
		policy := retry.New(
			cfg.Retry.MaxAttempts,
			time.Duration(cfg.Retry.BaseDelaySec)*time.Second,
			time.Duration(cfg.Retry.MaxDelaySec)*time.Second,
			time.Duration(cfg.Retry.BlockedCooldownMin)*time.Second,
			time.Duration(cfg.Retry.BlockedCooldownMax)*time.Second,
		)
		scraper := scrape.NewScraper(client, policy, cfg.Site.BaseURL)

		ctx := context.Background()
		total := 0
		for _, cat := range cfg.Categories {
			items, err := scraper.CollectRanks(ctx, cat)
			if err != nil {
				fmt.Printf("  %s: %v\n", cat.Name, err)
				continue
			}
			fmt.Printf("  %s: %d items\n", cat.Name, len(items))
			total += len(items)
		}
		fmt.Printf("\nCollected %d ranked items across %d categories\n", total, len(cfg.Categories))
		return nil
	},
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.RecentRuns(5)
		if err != nil {
			return fmt.Errorf("reading run log: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded. Start with: marketscout run")
			return nil
		}

		fmt.Println("Recent runs:")
		for _, r := range runs {
			fmt.Printf("  %s  %-9s  %d collected, %d enriched, %d failed\n",
				r.StartedAt, r.Status, r.ItemsCollected, r.ItemsEnriched, r.ItemsFailed)
		}

		latest := runs[0]
		stages, err := db.GetStageResults(latest.ID)
		if err != nil {
			return err
		}
		fmt.Printf("\nLatest run (%s):\n", latest.ID)
		for _, s := range stages {
			line := fmt.Sprintf("  %-22s %-9s %d items", s.Stage, s.Status, s.ItemCount)
			if s.Error != nil {
				line += " - " + *s.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- cache command ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the product cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		stats := store.Stats()
		fmt.Printf("Cache entries: %d total, %d valid, %d expired (TTL %dh)\n",
			stats.Total, stats.Valid, stats.Expired, cfg.Cache.TTLHours)
		return nil
	},
}

var cacheClearAll bool

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove expired cache entries (--all removes everything)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		if cacheClearAll {
			store.ClearAll()
			fmt.Println("Cache cleared.")
			return nil
		}
		removed := store.ClearExpired()
		fmt.Printf("Removed %d expired entries.\n", removed)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "Remove all entries, not just expired ones")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// --- budget command ---

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show AI spend against the monthly budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := openTracker()
		if err != nil {
			return err
		}

		stats := tracker.MonthStats()
		fmt.Printf("Month: %s\n", stats.Month)
		fmt.Printf("Spent: $%.2f of $%.2f (%.1f%%)\n", stats.TotalCost, stats.Ceiling, stats.UsedPercent)
		fmt.Printf("Remaining: $%.2f\n", stats.Remaining)
		fmt.Printf("Requests: %d (%d input tokens, %d output tokens)\n",
			stats.Requests, stats.InputTokens, stats.OutputTokens)

		if !tracker.CanProceed() {
			fmt.Println("\nHard stop reached: AI stages will be skipped until next month.")
		} else if tracker.IsWarning() {
			fmt.Println("\nWarning: over 80% of the monthly budget is spent.")
		}
		return nil
	},
}

// --- shared helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "marketscout.db"))
}

func openCache() (*cache.Store, error) {
	return cache.Open(filepath.Join(cfg.GetDataDir(), "products_cache.json"), cfg.CacheTTL())
}

func openTracker() (*budget.Tracker, error) {
	return budget.Open(filepath.Join(cfg.GetDataDir(), "budget_ledger.json"), cfg.AI.MonthlyBudgetUSD)
}
