package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robodash/robodash/pkg/config"
	"github.com/robodash/robodash/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestSaveRun_AssignsChildRunIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	run := &store.RunRecord{
		StartedAt:  now.Add(-10 * time.Minute),
		FinishedAt: now,
		Status:     store.RunStatusPass,
	}

	results := []store.TestResult{
		{TestName: "First", SuiteName: "suite", Status: "PASS"},
		{TestName: "Second", SuiteName: "suite", Status: "FAIL"},
	}

	calls := []store.KeywordCall{
		{
			TestName:    "First",
			KeywordName: "Log",
			StartTime:   now.Add(-9 * time.Minute),
		},
		{
			TestName:    "First",
			KeywordName: "Should Be Equal",
			StartTime:   now.Add(-8 * time.Minute),
		},
	}

	require.NoError(t, s.SaveRun(ctx, run, results, calls))
	require.NotZero(t, run.ID)

	gotResults, err := s.GetTestResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, gotResults, 2)
	assert.Equal(t, "First", gotResults[0].TestName)
	assert.Equal(t, run.ID, gotResults[0].RunID)

	gotCalls, err := s.GetKeywordCalls(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, gotCalls, 2)
	assert.Equal(t, "Log", gotCalls[0].KeywordName,
		"calls come back in start time order")
}

func TestListRuns_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	repo := &store.Repository{Name: "webshop"}
	require.NoError(t, s.CreateRepository(ctx, repo))

	now := time.Now().UTC()

	save := func(repoID *uint, finished time.Time) {
		require.NoError(t, s.SaveRun(ctx, &store.RunRecord{
			RepositoryID: repoID,
			StartedAt:    finished.Add(-time.Minute),
			FinishedAt:   finished,
			Status:       store.RunStatusPass,
		}, nil, nil))
	}

	save(nil, now.Add(-72*time.Hour))
	save(&repo.ID, now.Add(-48*time.Hour))
	save(&repo.ID, now.Add(-1*time.Hour))

	all, err := s.ListRuns(ctx, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := s.ListRuns(ctx, &repo.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	from := now.Add(-24 * time.Hour)
	recent, err := s.ListRuns(ctx, nil, &from, nil)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.WithinDuration(t, now.Add(-1*time.Hour),
		recent[0].FinishedAt, time.Second)

	latest, err := s.LatestRunFinishedAt(ctx, nil)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(-1*time.Hour), latest, time.Second)
}

func TestLatestRunFinishedAt_NoRuns(t *testing.T) {
	s := setupTestStore(t)

	latest, err := s.LatestRunFinishedAt(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, latest.IsZero())
}

func TestSeedRepositories_Upserts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seed := []config.RepositoryConfig{
		{Name: "webshop", Path: "/srv/webshop"},
		{Name: "api", Path: "/srv/api"},
	}

	require.NoError(t, s.SeedRepositories(ctx, seed))

	// Re-seeding with a changed path updates in place, no duplicates.
	seed[0].Path = "/srv/webshop-v2"
	require.NoError(t, s.SeedRepositories(ctx, seed))

	repos, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 2)

	byName := make(map[string]string, len(repos))
	for _, r := range repos {
		byName[r.Name] = r.Path
	}

	assert.Equal(t, "/srv/webshop-v2", byName["webshop"])
}

func TestReplaceAggregation_SwapsOneFilterKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	computed := time.Now().UTC()

	write := func(days, totalRuns int) {
		require.NoError(t, s.ReplaceAggregation(ctx,
			&store.OverviewSnapshot{
				FilterDays: days,
				TotalRuns:  totalRuns,
				ComputedAt: computed,
			},
			[]store.TrendPoint{{
				FilterDays: days,
				Date:       computed.Format("2006-01-02"),
				Total:      totalRuns,
			}},
			[]store.FlakyTestEntry{{
				FilterDays: days,
				TestName:   "Wobbly",
				FlipCount:  1,
			}},
		))
	}

	write(7, 10)
	write(30, 40)

	// Overwriting the 7-day key leaves the 30-day key untouched.
	write(7, 11)

	snap7, err := s.GetOverviewSnapshot(ctx, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 11, snap7.TotalRuns)

	snap30, err := s.GetOverviewSnapshot(ctx, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, 40, snap30.TotalRuns)

	trend7, err := s.GetTrendPoints(ctx, 7, nil)
	require.NoError(t, err)
	assert.Len(t, trend7, 1)

	flaky7, err := s.GetFlakyTests(ctx, 7, nil)
	require.NoError(t, err)
	assert.Len(t, flaky7, 1)

	mark, err := s.GetAggregationMark(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, computed, mark.LastAggregatedAt, time.Second)
}

func TestGetAggregationMark_DefaultsToZero(t *testing.T) {
	s := setupTestStore(t)

	mark, err := s.GetAggregationMark(context.Background())
	require.NoError(t, err)
	assert.True(t, mark.LastAggregatedAt.IsZero())
}

func newJob(t *testing.T, s store.Store) *store.AnalysisJob {
	t.Helper()

	job := &store.AnalysisJob{
		ID:     "job-" + t.Name(),
		Status: store.JobStatusPending,
	}
	job.SetSelectedKPIs([]string{"keyword_frequency"})

	require.NoError(t, s.CreateAnalysisJob(context.Background(), job))

	return job
}

func TestAnalysisJob_ProgressIsMonotonic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := newJob(t, s)

	require.NoError(t, s.UpdateAnalysisJobProgress(ctx, job.ID, 40, 4))

	loaded, err := s.GetAnalysisJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusRunning, loaded.Status)
	assert.Equal(t, 40, loaded.Progress)
	require.NotNil(t, loaded.StartedAt)

	// A stale lower progress write is dropped.
	require.NoError(t, s.UpdateAnalysisJobProgress(ctx, job.ID, 20, 2))

	loaded, err = s.GetAnalysisJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, loaded.Progress)
	assert.Equal(t, 4, loaded.ReportsAnalyzed)
}

func TestAnalysisJob_CompleteAndTerminalGuard(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := newJob(t, s)

	require.NoError(t,
		s.CompleteAnalysisJob(ctx, job.ID, `{"kpi":{}}`, 100, 7))

	loaded, err := s.GetAnalysisJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, loaded.Status)
	assert.Equal(t, 100, loaded.Progress)
	assert.Equal(t, `{"kpi":{}}`, loaded.ResultsJSON)
	require.NotNil(t, loaded.FinishedAt)
	assert.True(t, loaded.Terminal())

	// Terminal jobs ignore further transitions.
	require.NoError(t, s.UpdateAnalysisJobProgress(ctx, job.ID, 10, 1))
	require.NoError(t, s.FailAnalysisJob(ctx, job.ID, "late failure", 1))

	loaded, err = s.GetAnalysisJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, loaded.Status)
	assert.Equal(t, 100, loaded.Progress)
	assert.Empty(t, loaded.ErrorMessage)
}

func TestAnalysisJob_FailPreservesReportCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := newJob(t, s)

	require.NoError(t, s.UpdateAnalysisJobProgress(ctx, job.ID, 50, 5))
	require.NoError(t, s.FailAnalysisJob(ctx, job.ID, "boom", 5))

	loaded, err := s.GetAnalysisJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusError, loaded.Status)
	assert.Equal(t, "boom", loaded.ErrorMessage)
	assert.Equal(t, 5, loaded.ReportsAnalyzed)
	require.NotNil(t, loaded.FinishedAt)
}

func TestMarkInterruptedJobs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pending := newJob(t, s)

	running := &store.AnalysisJob{ID: "running-job", Status: store.JobStatusPending}
	running.SetSelectedKPIs([]string{"tag_coverage"})
	require.NoError(t, s.CreateAnalysisJob(ctx, running))
	require.NoError(t, s.UpdateAnalysisJobProgress(ctx, running.ID, 30, 3))

	done := &store.AnalysisJob{ID: "done-job", Status: store.JobStatusPending}
	done.SetSelectedKPIs([]string{"tag_coverage"})
	require.NoError(t, s.CreateAnalysisJob(ctx, done))
	require.NoError(t, s.CompleteAnalysisJob(ctx, done.ID, "{}", 100, 1))

	count, err := s.MarkInterruptedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, id := range []string{pending.ID, running.ID} {
		job, err := s.GetAnalysisJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.JobStatusError, job.Status)
		assert.Contains(t, job.ErrorMessage, "interrupted")
	}

	finished, err := s.GetAnalysisJob(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, finished.Status)
}
