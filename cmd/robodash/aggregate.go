package main

import (
	"context"
	"fmt"

	"github.com/robodash/robodash/pkg/analytics"
	"github.com/robodash/robodash/pkg/config"
	"github.com/robodash/robodash/pkg/store"
	"github.com/spf13/cobra"
)

var (
	aggregateWindow int
	aggregateRepoID uint
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute the cached analytics for one window",
	Long: `Run one aggregation pass outside the server, for cron-style
refresh: recomputes the overview snapshot, daily trend series, and
flaky test ranking for the given window and optional repository.`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().IntVar(&aggregateWindow, "days", 30,
		"aggregation window in days (7, 14, 30, 90, or 365)")
	aggregateCmd.Flags().UintVar(&aggregateRepoID, "repository-id", 0,
		"restrict aggregation to one repository (0 means all)")

	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	if len(cfgFiles) == 0 {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := context.Background()

	db := store.NewStore(log, &cfg.Database)
	if err := db.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := db.Stop(); err != nil {
			log.WithError(err).Warn("Store stop error")
		}
	}()

	var repoID *uint
	if aggregateRepoID != 0 {
		repoID = &aggregateRepoID
	}

	engine := analytics.NewEngine(log, db)

	snapshot, err := engine.Aggregate(ctx, aggregateWindow, repoID)
	if err != nil {
		return fmt.Errorf("aggregating: %w", err)
	}

	fmt.Printf("aggregated window of %d days\n", aggregateWindow)
	fmt.Printf("  runs:         %d\n", snapshot.TotalRuns)
	fmt.Printf("  tests:        %d\n", snapshot.TotalTests)
	fmt.Printf("  success rate: %.2f%%\n", snapshot.SuccessRate)
	fmt.Printf("  avg duration: %.1fs\n", snapshot.AvgDurationSeconds)

	return nil
}
