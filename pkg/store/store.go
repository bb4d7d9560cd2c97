package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/robodash/robodash/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for report data and all engine-owned state
// (cached aggregations, flaky rankings, analysis jobs).
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Repositories.
	SeedRepositories(ctx context.Context, repos []config.RepositoryConfig) error
	CreateRepository(ctx context.Context, repo *Repository) error
	ListRepositories(ctx context.Context) ([]Repository, error)
	GetRepository(ctx context.Context, id uint) (*Repository, error)

	// Report store contract. Run data is immutable once a run finishes,
	// so readers need no locking beyond the database's own.
	SaveRun(
		ctx context.Context,
		run *RunRecord,
		results []TestResult,
		calls []KeywordCall,
	) error
	ListRuns(
		ctx context.Context,
		repositoryID *uint,
		from, to *time.Time,
	) ([]RunRecord, error)
	GetTestResults(ctx context.Context, runID uint) ([]TestResult, error)
	GetKeywordCalls(ctx context.Context, runID uint) ([]KeywordCall, error)
	LatestRunFinishedAt(
		ctx context.Context, repositoryID *uint,
	) (time.Time, error)

	// Aggregation cache.
	GetOverviewSnapshot(
		ctx context.Context, days int, repositoryID *uint,
	) (*OverviewSnapshot, error)
	GetTrendPoints(
		ctx context.Context, days int, repositoryID *uint,
	) ([]TrendPoint, error)
	GetFlakyTests(
		ctx context.Context, days int, repositoryID *uint,
	) ([]FlakyTestEntry, error)
	ReplaceAggregation(
		ctx context.Context,
		snapshot *OverviewSnapshot,
		trend []TrendPoint,
		flaky []FlakyTestEntry,
	) error
	GetAggregationMark(ctx context.Context) (*AggregationMark, error)

	// Analysis jobs.
	CreateAnalysisJob(ctx context.Context, job *AnalysisJob) error
	GetAnalysisJob(ctx context.Context, id string) (*AnalysisJob, error)
	ListAnalysisJobs(
		ctx context.Context, repositoryID *uint,
	) ([]AnalysisJob, error)
	UpdateAnalysisJobProgress(
		ctx context.Context, id string, progress, reportsAnalyzed int,
	) error
	CompleteAnalysisJob(
		ctx context.Context, id string, resultsJSON string,
		progress, reportsAnalyzed int,
	) error
	FailAnalysisJob(
		ctx context.Context, id string, message string, reportsAnalyzed int,
	) error
	MarkInterruptedJobs(ctx context.Context) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Repository{},
		&RunRecord{},
		&TestResult{},
		&KeywordCall{},
		&OverviewSnapshot{},
		&TrendPoint{},
		&FlakyTestEntry{},
		&AggregationMark{},
		&AnalysisJob{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Repositories ---

// SeedRepositories upserts the repositories declared in the config,
// keyed by name.
func (s *store) SeedRepositories(
	ctx context.Context, repos []config.RepositoryConfig,
) error {
	for _, rc := range repos {
		repo := &Repository{Name: rc.Name, Path: rc.Path}

		result := s.db.WithContext(ctx).
			Where("name = ?", rc.Name).
			Assign(map[string]any{"path": rc.Path}).
			FirstOrCreate(repo)
		if result.Error != nil {
			return fmt.Errorf("seeding repository %q: %w", rc.Name, result.Error)
		}
	}

	return nil
}

func (s *store) CreateRepository(
	ctx context.Context, repo *Repository,
) error {
	if err := s.db.WithContext(ctx).Create(repo).Error; err != nil {
		return fmt.Errorf("creating repository: %w", err)
	}

	return nil
}

func (s *store) ListRepositories(ctx context.Context) ([]Repository, error) {
	var repos []Repository
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}

	return repos, nil
}

func (s *store) GetRepository(
	ctx context.Context, id uint,
) (*Repository, error) {
	var repo Repository
	if err := s.db.WithContext(ctx).
		First(&repo, id).Error; err != nil {
		return nil, fmt.Errorf("getting repository %d: %w", id, err)
	}

	return &repo, nil
}

// --- Report store ---

// SaveRun persists one parsed run report with its test results and
// keyword calls in a single transaction.
func (s *store) SaveRun(
	ctx context.Context,
	run *RunRecord,
	results []TestResult,
	calls []KeywordCall,
) error {
	const batchSize = 200

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("creating run: %w", err)
		}

		for i := range results {
			results[i].RunID = run.ID
		}

		for i := range calls {
			calls[i].RunID = run.ID
		}

		if len(results) > 0 {
			if err := tx.CreateInBatches(results, batchSize).Error; err != nil {
				return fmt.Errorf("creating test results: %w", err)
			}
		}

		if len(calls) > 0 {
			if err := tx.CreateInBatches(calls, batchSize).Error; err != nil {
				return fmt.Errorf("creating keyword calls: %w", err)
			}
		}

		return nil
	})
}

// ListRuns returns runs matching the repository and date range filter,
// ordered by finished_at ascending.
func (s *store) ListRuns(
	ctx context.Context,
	repositoryID *uint,
	from, to *time.Time,
) ([]RunRecord, error) {
	q := s.db.WithContext(ctx).Model(&RunRecord{})

	if repositoryID != nil {
		q = q.Where("repository_id = ?", *repositoryID)
	}

	if from != nil {
		q = q.Where("finished_at >= ?", *from)
	}

	if to != nil {
		q = q.Where("finished_at <= ?", *to)
	}

	var runs []RunRecord
	if err := q.Order("finished_at ASC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

func (s *store) GetTestResults(
	ctx context.Context, runID uint,
) ([]TestResult, error) {
	var results []TestResult
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing test results: %w", err)
	}

	return results, nil
}

// GetKeywordCalls returns the keyword calls of a run ordered by start
// time, which is the per-test execution order.
func (s *store) GetKeywordCalls(
	ctx context.Context, runID uint,
) ([]KeywordCall, error) {
	var calls []KeywordCall
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("start_time ASC, id ASC").
		Find(&calls).Error; err != nil {
		return nil, fmt.Errorf("listing keyword calls: %w", err)
	}

	return calls, nil
}

// LatestRunFinishedAt returns the most recent run completion time for
// the repository filter, or the zero time when no runs exist.
func (s *store) LatestRunFinishedAt(
	ctx context.Context, repositoryID *uint,
) (time.Time, error) {
	q := s.db.WithContext(ctx).Model(&RunRecord{})

	if repositoryID != nil {
		q = q.Where("repository_id = ?", *repositoryID)
	}

	var run RunRecord
	err := q.Order("finished_at DESC").First(&run).Error

	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("getting latest run: %w", err)
	}

	return run.FinishedAt, nil
}

// --- Aggregation cache ---

// filterScope applies the (days, repository) cache key to a query.
func filterScope(q *gorm.DB, days int, repositoryID *uint) *gorm.DB {
	q = q.Where("filter_days = ?", days)

	if repositoryID != nil {
		return q.Where("repository_id = ?", *repositoryID)
	}

	return q.Where("repository_id IS NULL")
}

func (s *store) GetOverviewSnapshot(
	ctx context.Context, days int, repositoryID *uint,
) (*OverviewSnapshot, error) {
	var snapshot OverviewSnapshot

	q := filterScope(
		s.db.WithContext(ctx).Model(&OverviewSnapshot{}), days, repositoryID,
	)

	if err := q.First(&snapshot).Error; err != nil {
		return nil, fmt.Errorf("getting overview snapshot: %w", err)
	}

	return &snapshot, nil
}

func (s *store) GetTrendPoints(
	ctx context.Context, days int, repositoryID *uint,
) ([]TrendPoint, error) {
	var points []TrendPoint

	q := filterScope(
		s.db.WithContext(ctx).Model(&TrendPoint{}), days, repositoryID,
	)

	if err := q.Order("date ASC").Find(&points).Error; err != nil {
		return nil, fmt.Errorf("getting trend points: %w", err)
	}

	return points, nil
}

func (s *store) GetFlakyTests(
	ctx context.Context, days int, repositoryID *uint,
) ([]FlakyTestEntry, error) {
	var entries []FlakyTestEntry

	q := filterScope(
		s.db.WithContext(ctx).Model(&FlakyTestEntry{}), days, repositoryID,
	)

	if err := q.Order("flip_count DESC, flaky_rate ASC, test_name ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("getting flaky tests: %w", err)
	}

	return entries, nil
}

// ReplaceAggregation swaps the cached snapshot, trend series, and flaky
// ranking for one filter key in a single transaction and bumps the
// global watermark. On failure the previous cache stays authoritative.
func (s *store) ReplaceAggregation(
	ctx context.Context,
	snapshot *OverviewSnapshot,
	trend []TrendPoint,
	flaky []FlakyTestEntry,
) error {
	const batchSize = 200

	days := snapshot.FilterDays
	repoID := snapshot.RepositoryID

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := filterScope(tx, days, repoID).
			Delete(&OverviewSnapshot{}).Error; err != nil {
			return fmt.Errorf("deleting old snapshot: %w", err)
		}

		if err := filterScope(tx, days, repoID).
			Delete(&TrendPoint{}).Error; err != nil {
			return fmt.Errorf("deleting old trend points: %w", err)
		}

		if err := filterScope(tx, days, repoID).
			Delete(&FlakyTestEntry{}).Error; err != nil {
			return fmt.Errorf("deleting old flaky entries: %w", err)
		}

		if err := tx.Create(snapshot).Error; err != nil {
			return fmt.Errorf("creating snapshot: %w", err)
		}

		if len(trend) > 0 {
			if err := tx.CreateInBatches(trend, batchSize).Error; err != nil {
				return fmt.Errorf("creating trend points: %w", err)
			}
		}

		if len(flaky) > 0 {
			if err := tx.CreateInBatches(flaky, batchSize).Error; err != nil {
				return fmt.Errorf("creating flaky entries: %w", err)
			}
		}

		mark := &AggregationMark{ID: 1}
		if err := tx.
			Assign(map[string]any{"last_aggregated_at": snapshot.ComputedAt}).
			FirstOrCreate(mark).Error; err != nil {
			return fmt.Errorf("updating aggregation mark: %w", err)
		}

		return nil
	})
}

func (s *store) GetAggregationMark(
	ctx context.Context,
) (*AggregationMark, error) {
	var mark AggregationMark

	err := s.db.WithContext(ctx).First(&mark, 1).Error
	if err == gorm.ErrRecordNotFound {
		return &AggregationMark{ID: 1}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("getting aggregation mark: %w", err)
	}

	return &mark, nil
}

// --- Analysis jobs ---

func (s *store) CreateAnalysisJob(
	ctx context.Context, job *AnalysisJob,
) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating analysis job: %w", err)
	}

	return nil
}

func (s *store) GetAnalysisJob(
	ctx context.Context, id string,
) (*AnalysisJob, error) {
	var job AnalysisJob
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error; err != nil {
		return nil, fmt.Errorf("getting analysis job %s: %w", id, err)
	}

	return &job, nil
}

// ListAnalysisJobs returns jobs most recent first, optionally scoped to
// a repository.
func (s *store) ListAnalysisJobs(
	ctx context.Context, repositoryID *uint,
) ([]AnalysisJob, error) {
	q := s.db.WithContext(ctx).Model(&AnalysisJob{})

	if repositoryID != nil {
		q = q.Where("repository_id = ?", *repositoryID)
	}

	var jobs []AnalysisJob
	if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing analysis jobs: %w", err)
	}

	return jobs, nil
}

// UpdateAnalysisJobProgress moves a running job forward. Progress is
// monotonically non-decreasing: stale writes are dropped by the WHERE
// clause rather than racing.
func (s *store) UpdateAnalysisJobProgress(
	ctx context.Context, id string, progress, reportsAnalyzed int,
) error {
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("id = ? AND status IN ? AND progress <= ?",
			id, []string{JobStatusPending, JobStatusRunning}, progress).
		Updates(map[string]any{
			"status":           JobStatusRunning,
			"progress":         progress,
			"reports_analyzed": reportsAnalyzed,
			"started_at":       gorm.Expr("COALESCE(started_at, ?)", now),
		}).Error
	if err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}

	return nil
}

// CompleteAnalysisJob finalizes a job with its results. Progress reaches
// 100 only here, once every selected KPI result is written.
func (s *store) CompleteAnalysisJob(
	ctx context.Context, id string, resultsJSON string,
	progress, reportsAnalyzed int,
) error {
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("id = ? AND status IN ?",
			id, []string{JobStatusPending, JobStatusRunning}).
		Updates(map[string]any{
			"status":           JobStatusCompleted,
			"progress":         progress,
			"reports_analyzed": reportsAnalyzed,
			"results_json":     resultsJSON,
			"started_at":       gorm.Expr("COALESCE(started_at, ?)", now),
			"finished_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("completing analysis job: %w", err)
	}

	return nil
}

// FailAnalysisJob transitions a job to the error state, preserving the
// partial reports_analyzed count for diagnosis.
func (s *store) FailAnalysisJob(
	ctx context.Context, id string, message string, reportsAnalyzed int,
) error {
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("id = ? AND status IN ?",
			id, []string{JobStatusPending, JobStatusRunning}).
		Updates(map[string]any{
			"status":           JobStatusError,
			"error_message":    message,
			"reports_analyzed": reportsAnalyzed,
			"finished_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("failing analysis job: %w", err)
	}

	return nil
}

// MarkInterruptedJobs transitions jobs left pending or running by a
// previous process to the error state. Called once on startup.
func (s *store) MarkInterruptedJobs(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("status IN ?",
			[]string{JobStatusPending, JobStatusRunning}).
		Updates(map[string]any{
			"status":        JobStatusError,
			"error_message": "interrupted by server restart",
			"finished_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("marking interrupted jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}
