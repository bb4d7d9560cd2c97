// Package analytics implements the cached overview/trend aggregation
// and the flaky test detector. Both run synchronously to completion
// when triggered; results are cached per (window, repository) filter
// key with last-writer-wins semantics.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/robodash/robodash/pkg/store"
	"github.com/sirupsen/logrus"
)

// AllowedWindows are the lookback windows (in days) an aggregation can
// be requested for.
var AllowedWindows = []int{7, 14, 30, 90, 365}

// WindowAllowed reports whether days is a supported lookback window.
func WindowAllowed(days int) bool {
	for _, w := range AllowedWindows {
		if w == days {
			return true
		}
	}

	return false
}

// Engine recomputes cached overview KPIs, the daily trend series, and
// the flaky test ranking for a filter key.
type Engine struct {
	log logrus.FieldLogger
	db  store.Store
	now func() time.Time
}

// NewEngine creates a new aggregation engine.
func NewEngine(log logrus.FieldLogger, db store.Store) *Engine {
	return &Engine{
		log: log.WithField("component", "aggregator"),
		db:  db,
		now: time.Now,
	}
}

// Aggregate scans all runs finished within the lookback window and
// replaces the cached overview snapshot, trend series, and flaky
// ranking for the (windowDays, repositoryID) filter key. The cache
// swap is transactional: on failure the previous snapshot remains
// authoritative. An empty window yields a zeroed snapshot, not an
// error.
func (e *Engine) Aggregate(
	ctx context.Context, windowDays int, repositoryID *uint,
) (*store.OverviewSnapshot, error) {
	if !WindowAllowed(windowDays) {
		return nil, fmt.Errorf("unsupported window: %d days", windowDays)
	}

	now := e.now().UTC()
	from := now.AddDate(0, 0, -windowDays)

	runs, err := e.db.ListRuns(ctx, repositoryID, &from, &now)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	resultsByRun := make(map[uint][]store.TestResult, len(runs))

	totalTests := 0

	for i := range runs {
		results, rErr := e.db.GetTestResults(ctx, runs[i].ID)
		if rErr != nil {
			return nil, fmt.Errorf("loading test results: %w", rErr)
		}

		resultsByRun[runs[i].ID] = results
		totalTests += len(results)
	}

	snapshot := buildSnapshot(windowDays, repositoryID, runs, totalTests, now)
	trend := buildTrend(windowDays, repositoryID, runs, from, now)
	flaky := DetectFlaky(windowDays, repositoryID, runs, resultsByRun)

	if err := e.db.ReplaceAggregation(ctx, snapshot, trend, flaky); err != nil {
		return nil, fmt.Errorf("replacing aggregation: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"window_days": windowDays,
		"total_runs":  snapshot.TotalRuns,
		"total_tests": snapshot.TotalTests,
		"flaky_tests": len(flaky),
	}).Info("Aggregation pass completed")

	return snapshot, nil
}

// Stale reports whether the cached aggregations are older than the most
// recent run completion for the repository filter.
func (e *Engine) Stale(
	ctx context.Context, repositoryID *uint,
) (bool, error) {
	latest, err := e.db.LatestRunFinishedAt(ctx, repositoryID)
	if err != nil {
		return false, fmt.Errorf("getting latest run: %w", err)
	}

	if latest.IsZero() {
		return false, nil
	}

	mark, err := e.db.GetAggregationMark(ctx)
	if err != nil {
		return false, fmt.Errorf("getting aggregation mark: %w", err)
	}

	return latest.After(mark.LastAggregatedAt), nil
}

// buildSnapshot computes the overview counters over the window's runs.
func buildSnapshot(
	windowDays int,
	repositoryID *uint,
	runs []store.RunRecord,
	totalTests int,
	computedAt time.Time,
) *store.OverviewSnapshot {
	snapshot := &store.OverviewSnapshot{
		FilterDays:   windowDays,
		RepositoryID: repositoryID,
		TotalRuns:    len(runs),
		TotalTests:   totalTests,
		ComputedAt:   computedAt,
	}

	if len(runs) == 0 {
		return snapshot
	}

	passing := 0
	completed := 0
	totalDuration := 0.0

	for i := range runs {
		run := &runs[i]

		if run.Status == store.RunStatusPass {
			passing++
		}

		if run.Status != store.RunStatusError {
			completed++
			totalDuration += run.FinishedAt.Sub(run.StartedAt).Seconds()
		}
	}

	snapshot.SuccessRate = float64(passing) / float64(len(runs)) * 100

	if completed > 0 {
		snapshot.AvgDurationSeconds = totalDuration / float64(completed)
	}

	return snapshot
}

// buildTrend produces one point per calendar day in [from, to], counting
// runs by status and averaging their durations.
func buildTrend(
	windowDays int,
	repositoryID *uint,
	runs []store.RunRecord,
	from, to time.Time,
) []store.TrendPoint {
	const dateLayout = "2006-01-02"

	byDay := make(map[string][]*store.RunRecord, len(runs))

	for i := range runs {
		day := runs[i].FinishedAt.UTC().Format(dateLayout)
		byDay[day] = append(byDay[day], &runs[i])
	}

	var points []store.TrendPoint

	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		dayRuns := byDay[date]

		point := store.TrendPoint{
			FilterDays:   windowDays,
			RepositoryID: repositoryID,
			Date:         date,
			Total:        len(dayRuns),
		}

		totalDuration := 0.0

		for _, run := range dayRuns {
			switch run.Status {
			case store.RunStatusPass:
				point.Passed++
			case store.RunStatusFail:
				point.Failed++
			default:
				point.Errored++
			}

			totalDuration += run.FinishedAt.Sub(run.StartedAt).Seconds()
		}

		if point.Total > 0 {
			point.AvgDurationSeconds = totalDuration / float64(point.Total)
			point.SuccessRate = float64(point.Passed) / float64(point.Total) * 100
		}

		points = append(points, point)
	}

	return points
}
