package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"

	"github.com/robodash/robodash/pkg/analysis"
	"github.com/robodash/robodash/pkg/analytics"
	"github.com/robodash/robodash/pkg/store"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// parseWindow reads the days query parameter, defaulting to 30.
func parseWindow(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 30, nil
	}

	days, err := strconv.Atoi(raw)
	if err != nil || !analytics.WindowAllowed(days) {
		return 0, errors.New("days must be one of 7, 14, 30, 90, 365")
	}

	return days, nil
}

// parseRepositoryID reads the optional repository_id query parameter.
func parseRepositoryID(r *http.Request) (*uint, error) {
	raw := r.URL.Query().Get("repository_id")
	if raw == "" {
		return nil, nil
	}

	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, errors.New("repository_id must be a positive integer")
	}

	repoID := uint(id)

	return &repoID, nil
}

// --- Health ---

// handleHealth returns server health, uptime, and process memory usage.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			resp["rss_bytes"] = mem.RSS
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Repositories ---

func (s *server) handleListRepositories(
	w http.ResponseWriter, r *http.Request,
) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list repositories")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing repositories"})

		return
	}

	writeJSON(w, http.StatusOK, repos)
}

func (s *server) handleCreateRepository(
	w http.ResponseWriter, r *http.Request,
) {
	var req struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"name is required"})

		return
	}

	repo := &store.Repository{Name: req.Name, Path: req.Path}
	if err := s.store.CreateRepository(r.Context(), repo); err != nil {
		s.log.WithError(err).Error("Failed to create repository")
		writeJSON(w, http.StatusConflict,
			errorResponse{"repository already exists"})

		return
	}

	writeJSON(w, http.StatusCreated, repo)
}

// --- Run ingest ---

// ingestRequest is one already-parsed run report.
type ingestRequest struct {
	Run struct {
		RepositoryID *uint     `json:"repository_id"`
		StartedAt    time.Time `json:"started_at"`
		FinishedAt   time.Time `json:"finished_at"`
		Status       string    `json:"status"`
	} `json:"run"`
	Tests []struct {
		Name            string   `json:"name"`
		Suite           string   `json:"suite"`
		Status          string   `json:"status"`
		DurationSeconds float64  `json:"duration_seconds"`
		ErrorMessage    string   `json:"error_message"`
		Tags            []string `json:"tags"`
	} `json:"tests"`
	KeywordCalls []struct {
		TestName        string    `json:"test_name"`
		KeywordName     string    `json:"keyword_name"`
		LibraryName     string    `json:"library_name"`
		StartTime       time.Time `json:"start_time"`
		DurationSeconds float64   `json:"duration_seconds"`
		Depth           int       `json:"depth"`
	} `json:"keyword_calls"`
}

func (req *ingestRequest) validate() error {
	switch req.Run.Status {
	case store.RunStatusPass, store.RunStatusFail, store.RunStatusError:
	default:
		return errors.New("run status must be pass, fail, or error")
	}

	if req.Run.StartedAt.IsZero() || req.Run.FinishedAt.IsZero() {
		return errors.New("run started_at and finished_at are required")
	}

	if req.Run.FinishedAt.Before(req.Run.StartedAt) {
		return errors.New("run finished before it started")
	}

	for _, test := range req.Tests {
		if test.Name == "" {
			return errors.New("every test needs a name")
		}
	}

	for _, call := range req.KeywordCalls {
		if call.KeywordName == "" {
			return errors.New("every keyword call needs a keyword_name")
		}
	}

	return nil
}

// handleIngestRun accepts one parsed run report and persists it
// atomically.
func (s *server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if req.Run.RepositoryID != nil {
		if _, err := s.store.GetRepository(
			r.Context(), *req.Run.RepositoryID,
		); err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"unknown repository"})

			return
		}
	}

	run := &store.RunRecord{
		RepositoryID: req.Run.RepositoryID,
		StartedAt:    req.Run.StartedAt.UTC(),
		FinishedAt:   req.Run.FinishedAt.UTC(),
		Status:       req.Run.Status,
	}

	results := make([]store.TestResult, 0, len(req.Tests))
	for _, t := range req.Tests {
		result := store.TestResult{
			TestName:        t.Name,
			SuiteName:       t.Suite,
			Status:          t.Status,
			DurationSeconds: t.DurationSeconds,
			ErrorMessage:    t.ErrorMessage,
		}
		result.SetTags(t.Tags)

		results = append(results, result)
	}

	calls := make([]store.KeywordCall, 0, len(req.KeywordCalls))
	for _, c := range req.KeywordCalls {
		calls = append(calls, store.KeywordCall{
			TestName:        c.TestName,
			KeywordName:     c.KeywordName,
			LibraryName:     c.LibraryName,
			StartTime:       c.StartTime.UTC(),
			DurationSeconds: c.DurationSeconds,
			Depth:           c.Depth,
		})
	}

	if err := s.store.SaveRun(r.Context(), run, results, calls); err != nil {
		s.log.WithError(err).Error("Failed to save run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"saving run"})

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            run.ID,
		"tests":         len(results),
		"keyword_calls": len(calls),
	})
}

// handleListRuns returns stored runs, optionally filtered by
// repository and time range.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	repoID, err := parseRepositoryID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var from, to *time.Time

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"from must be RFC3339"})

			return
		}

		from = &parsed
	}

	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"to must be RFC3339"})

			return
		}

		to = &parsed
	}

	runs, err := s.store.ListRuns(r.Context(), repoID, from, to)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs"})

		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// --- Aggregation ---

// handleAggregate recomputes the cached overview, trend, and flaky data
// for one window and returns the fresh snapshot.
func (s *server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WindowDays   int   `json:"window_days"`
		RepositoryID *uint `json:"repository_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if !analytics.WindowAllowed(req.WindowDays) {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"window_days must be one of 7, 14, 30, 90, 365"})

		return
	}

	snapshot, err := s.analytics.Aggregate(
		r.Context(), req.WindowDays, req.RepositoryID,
	)
	if err != nil {
		s.log.WithError(err).Error("Aggregation failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"aggregation failed"})

		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// overviewResponse decorates the cached snapshot with a staleness flag
// so clients know when to trigger a re-aggregation.
type overviewResponse struct {
	*store.OverviewSnapshot
	Stale bool `json:"stale"`
}

func (s *server) handleOverview(w http.ResponseWriter, r *http.Request) {
	days, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	repoID, err := parseRepositoryID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	snapshot, err := s.store.GetOverviewSnapshot(r.Context(), days, repoID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"no aggregation for this window yet"})

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Failed to get overview")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting overview"})

		return
	}

	stale, err := s.analytics.Stale(r.Context(), repoID)
	if err != nil {
		s.log.WithError(err).Warn("Staleness check failed")
	}

	writeJSON(w, http.StatusOK, overviewResponse{
		OverviewSnapshot: snapshot,
		Stale:            stale,
	})
}

func (s *server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	repoID, err := parseRepositoryID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	points, err := s.store.GetTrendPoints(r.Context(), days, repoID)
	if err != nil {
		s.log.WithError(err).Error("Failed to get trends")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting trends"})

		return
	}

	writeJSON(w, http.StatusOK, points)
}

func (s *server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	days, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	repoID, err := parseRepositoryID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	entries, err := s.store.GetFlakyTests(r.Context(), days, repoID)
	if err != nil {
		s.log.WithError(err).Error("Failed to get flaky tests")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting flaky tests"})

		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// --- Deep analysis ---

func (s *server) handleKPICatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, analysis.Catalog)
}

// analysisJobResponse exposes the selected KPI ids and, once the job
// completed, the raw per-KPI results alongside the job row.
type analysisJobResponse struct {
	*store.AnalysisJob
	KPIs    []string        `json:"kpis"`
	Results json.RawMessage `json:"results,omitempty"`
}

func jobResponse(job *store.AnalysisJob) analysisJobResponse {
	resp := analysisJobResponse{
		AnalysisJob: job,
		KPIs:        job.SelectedKPIs(),
	}

	if job.ResultsJSON != "" {
		resp.Results = json.RawMessage(job.ResultsJSON)
	}

	return resp
}

func (s *server) handleCreateAnalysisJob(
	w http.ResponseWriter, r *http.Request,
) {
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	job, err := s.analysis.CreateJob(r.Context(), &req)
	if errors.Is(err, analysis.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if errors.Is(err, analysis.ErrBusy) {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{err.Error()})

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Failed to create analysis job")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"creating analysis job"})

		return
	}

	writeJSON(w, http.StatusCreated, jobResponse(job))
}

func (s *server) handleGetAnalysisJob(
	w http.ResponseWriter, r *http.Request,
) {
	job, err := s.analysis.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"analysis job not found"})

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Failed to get analysis job")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting analysis job"})

		return
	}

	writeJSON(w, http.StatusOK, jobResponse(job))
}

func (s *server) handleListAnalysisJobs(
	w http.ResponseWriter, r *http.Request,
) {
	repoID, err := parseRepositoryID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	jobs, err := s.analysis.ListJobs(r.Context(), repoID)
	if err != nil {
		s.log.WithError(err).Error("Failed to list analysis jobs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing analysis jobs"})

		return
	}

	resp := make([]analysisJobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, jobResponse(&jobs[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}
