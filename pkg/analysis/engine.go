package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robodash/robodash/pkg/config"
	"github.com/robodash/robodash/pkg/robot"
	"github.com/robodash/robodash/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrValidation marks a rejected analysis request. Callers map it to a
// 400 instead of a 500.
var ErrValidation = errors.New("invalid analysis request")

// ErrBusy marks a structurally valid request the engine cannot take
// because the worker queue is full. Callers map it to a 503.
var ErrBusy = errors.New("analysis queue full")

// Request describes one deep analysis job to run.
type Request struct {
	RepositoryID *uint      `json:"repository_id"`
	KPIs         []string   `json:"kpis"`
	DateFrom     *time.Time `json:"date_from"`
	DateTo       *time.Time `json:"date_to"`
}

// Engine accepts analysis jobs and executes them on background workers.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error

	CreateJob(ctx context.Context, req *Request) (*store.AnalysisJob, error)
	GetJob(ctx context.Context, id string) (*store.AnalysisJob, error)
	ListJobs(
		ctx context.Context, repositoryID *uint,
	) ([]store.AnalysisJob, error)
}

// Compile-time interface check.
var _ Engine = (*engine)(nil)

type engine struct {
	log logrus.FieldLogger
	cfg *config.AnalysisConfig
	db  store.Store

	queue   chan string
	cancel  context.CancelFunc
	workers *errgroup.Group
}

// NewEngine creates a new analysis Engine.
func NewEngine(
	log logrus.FieldLogger,
	cfg *config.AnalysisConfig,
	db store.Store,
) Engine {
	return &engine{
		log: log.WithField("component", "analysis"),
		cfg: cfg,
		db:  db,
	}
}

// Start marks jobs orphaned by a previous process as errored and
// launches the worker pool.
func (e *engine) Start(ctx context.Context) error {
	interrupted, err := e.db.MarkInterruptedJobs(ctx)
	if err != nil {
		return fmt.Errorf("marking interrupted jobs: %w", err)
	}

	if interrupted > 0 {
		e.log.WithField("jobs", interrupted).
			Warn("Marked interrupted analysis jobs as errored")
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.queue = make(chan string, e.cfg.QueueSize)

	e.workers = &errgroup.Group{}
	for i := 0; i < e.cfg.Workers; i++ {
		e.workers.Go(func() error {
			for {
				select {
				case <-workerCtx.Done():
					return nil
				case jobID, ok := <-e.queue:
					if !ok {
						return nil
					}

					e.run(workerCtx, jobID)
				}
			}
		})
	}

	e.log.WithFields(logrus.Fields{
		"workers":    e.cfg.Workers,
		"queue_size": e.cfg.QueueSize,
	}).Info("Analysis engine started")

	return nil
}

// Stop cancels the workers and waits for in-flight jobs to unwind.
func (e *engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}

	if e.workers != nil {
		return e.workers.Wait()
	}

	return nil
}

// CreateJob validates a request, persists a pending job, and enqueues
// it. Unknown KPI ids are dropped; a request selecting none is invalid.
func (e *engine) CreateJob(
	ctx context.Context, req *Request,
) (*store.AnalysisJob, error) {
	kpis := make([]string, 0, len(req.KPIs))
	for _, id := range req.KPIs {
		if KnownKPI(id) {
			kpis = append(kpis, id)
		}
	}

	if len(kpis) == 0 {
		return nil, fmt.Errorf("%w: no known KPIs selected", ErrValidation)
	}

	if req.DateFrom != nil && req.DateTo != nil &&
		req.DateTo.Before(*req.DateFrom) {
		return nil, fmt.Errorf("%w: date_to before date_from", ErrValidation)
	}

	// Source KPIs read suite files from disk, so they need a configured
	// repository to scan.
	if req.RepositoryID == nil && hasSourceKPI(kpis) {
		return nil, fmt.Errorf(
			"%w: source KPIs require a repository", ErrValidation,
		)
	}

	if req.RepositoryID != nil {
		if _, err := e.db.GetRepository(ctx, *req.RepositoryID); err != nil {
			return nil, fmt.Errorf(
				"%w: unknown repository %d", ErrValidation, *req.RepositoryID,
			)
		}
	}

	// Reject before persisting a row when the queue has no room, so a
	// backlogged engine does not accumulate failed job records.
	if len(e.queue) == cap(e.queue) {
		return nil, ErrBusy
	}

	job := &store.AnalysisJob{
		ID:           uuid.NewString(),
		RepositoryID: req.RepositoryID,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Status:       store.JobStatusPending,
	}

	job.SetSelectedKPIs(kpis)

	if err := e.db.CreateAnalysisJob(ctx, job); err != nil {
		return nil, err
	}

	select {
	case e.queue <- job.ID:
	default:
		// Lost the race for the last queue slot.
		if err := e.db.FailAnalysisJob(
			ctx, job.ID, ErrBusy.Error(), 0,
		); err != nil {
			e.log.WithError(err).Error("Failed to fail unqueued job")
		}

		return nil, ErrBusy
	}

	e.log.WithFields(logrus.Fields{
		"job":  job.ID,
		"kpis": len(kpis),
	}).Info("Analysis job queued")

	return job, nil
}

func (e *engine) GetJob(
	ctx context.Context, id string,
) (*store.AnalysisJob, error) {
	return e.db.GetAnalysisJob(ctx, id)
}

func (e *engine) ListJobs(
	ctx context.Context, repositoryID *uint,
) ([]store.AnalysisJob, error) {
	return e.db.ListAnalysisJobs(ctx, repositoryID)
}

func hasSourceKPI(kpis []string) bool {
	for _, id := range kpis {
		if id == KPISourceTestStats || id == KPISourceLibraries {
			return true
		}
	}

	return false
}

// run executes one job end to end. Any error transitions the job to
// the error state; partial results are never persisted.
func (e *engine) run(ctx context.Context, jobID string) {
	log := e.log.WithField("job", jobID)

	job, err := e.db.GetAnalysisJob(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Failed to load queued job")

		return
	}

	if job.Terminal() {
		return
	}

	// Mark the job running before any work, so pollers observe the
	// transition even when the job finishes in a single step.
	if err := e.db.UpdateAnalysisJobProgress(ctx, jobID, 0, 0); err != nil {
		log.WithError(err).Warn("Failed to mark job running")
	}

	kpis := job.SelectedKPIs()
	started := time.Now()

	results, analyzed, err := e.execute(ctx, log, job, kpis)
	if err != nil {
		e.fail(ctx, log, jobID, err.Error(), analyzed)

		return
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		e.fail(ctx, log, jobID,
			fmt.Sprintf("encoding results: %v", err), analyzed)

		return
	}

	if err := e.db.CompleteAnalysisJob(
		ctx, jobID, string(encoded), 100, analyzed,
	); err != nil {
		log.WithError(err).Error("Failed to complete job")

		return
	}

	log.WithFields(logrus.Fields{
		"reports":  analyzed,
		"kpis":     len(kpis),
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Info("Analysis job completed")
}

// execute folds every matching run report into the selected analyzers
// and computes the selected source KPIs, returning the per-KPI results.
func (e *engine) execute(
	ctx context.Context,
	log logrus.FieldLogger,
	job *store.AnalysisJob,
	kpis []string,
) (map[string]any, int, error) {
	analyzers := make([]analyzer, 0, len(kpis))
	sourceAnalyzers := make([]sourceAnalyzer, 0, 2)

	for _, id := range kpis {
		if a := newAnalyzer(id, e.cfg); a != nil {
			analyzers = append(analyzers, a)

			continue
		}

		if sa := newSourceAnalyzer(id, e.cfg); sa != nil {
			sourceAnalyzers = append(sourceAnalyzers, sa)
		}
	}

	results := make(map[string]any, len(kpis))
	analyzed := 0

	if len(analyzers) > 0 {
		runs, err := e.db.ListRuns(
			ctx, job.RepositoryID, job.DateFrom, job.DateTo,
		)
		if err != nil {
			return nil, 0, err
		}

		for _, run := range runs {
			if err := ctx.Err(); err != nil {
				return nil, analyzed, err
			}

			report, err := e.loadReport(ctx, run)
			if err != nil {
				return nil, analyzed, err
			}

			e.foldReport(log, analyzers, report)
			analyzed++

			// Progress stays below 100 until the results are durable.
			progress := analyzed * 100 / len(runs)
			if progress > 99 {
				progress = 99
			}

			if err := e.db.UpdateAnalysisJobProgress(
				ctx, job.ID, progress, analyzed,
			); err != nil {
				log.WithError(err).Warn("Failed to update job progress")
			}
		}

		for _, a := range analyzers {
			results[a.ID()] = a.Finalize()
		}
	}

	if len(sourceAnalyzers) > 0 {
		repo, err := e.db.GetRepository(ctx, *job.RepositoryID)
		if err != nil {
			return nil, analyzed, err
		}

		files, err := robot.ScanSuite(repo.Path)
		if err != nil {
			return nil, analyzed, fmt.Errorf(
				"scanning suite sources at %s: %w", repo.Path, err,
			)
		}

		for _, sa := range sourceAnalyzers {
			results[sa.ID()] = sa.Analyze(files)
		}
	}

	return results, analyzed, nil
}

func (e *engine) loadReport(
	ctx context.Context, run store.RunRecord,
) (*Report, error) {
	results, err := e.db.GetTestResults(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	calls, err := e.db.GetKeywordCalls(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	return &Report{Run: run, Results: results, Calls: calls}, nil
}

// foldReport feeds one report into every analyzer. A panic in one
// analyzer skips that report for it without killing the whole job.
func (e *engine) foldReport(
	log logrus.FieldLogger, analyzers []analyzer, report *Report,
) {
	for _, a := range analyzers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logrus.Fields{
						"kpi":   a.ID(),
						"run":   report.Run.ID,
						"panic": r,
					}).Error("Analyzer panicked on report")
				}
			}()

			a.Fold(report)
		}()
	}
}

func (e *engine) fail(
	ctx context.Context,
	log logrus.FieldLogger,
	jobID, message string,
	analyzed int,
) {
	log.WithField("reason", message).Warn("Analysis job failed")

	if err := e.db.FailAnalysisJob(ctx, jobID, message, analyzed); err != nil {
		log.WithError(err).Error("Failed to record job failure")
	}
}
