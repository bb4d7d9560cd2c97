package store

import (
	"encoding/json"
	"time"
)

// Run status constants. A run's status is the overall outcome of the
// execution as reported by the test runner.
const (
	RunStatusPass  = "pass"
	RunStatusFail  = "fail"
	RunStatusError = "error"
)

// Test result status constants.
const (
	TestStatusPass = "PASS"
	TestStatusFail = "FAIL"
)

// Analysis job status constants. Terminal states are final.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
)

// Repository is a registered test repository.
type Repository struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// RunRecord is one execution of a test suite. Immutable once finished.
type RunRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RepositoryID *uint     `gorm:"index" json:"repository_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `gorm:"index" json:"finished_at"`
	Status       string    `gorm:"index" json:"status"`
}

// TestResult is the outcome of one logical test within a run.
// (test_name, suite_name) identifies the test across runs.
type TestResult struct {
	ID              uint    `gorm:"primaryKey" json:"-"`
	RunID           uint    `gorm:"index;not null" json:"run_id"`
	TestName        string  `gorm:"not null" json:"test_name"`
	SuiteName       string  `json:"suite_name"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	ErrorMessage    string  `gorm:"type:text" json:"error_message,omitempty"`

	// Tags serialized as JSON (same trick the rest of the schema uses
	// for variable-size payloads).
	TagsJSON string `gorm:"type:text" json:"-"`
}

// Tags returns the deserialized tag list.
func (t *TestResult) Tags() []string {
	if t.TagsJSON == "" {
		return nil
	}

	var tags []string
	if err := json.Unmarshal([]byte(t.TagsJSON), &tags); err != nil {
		return nil
	}

	return tags
}

// SetTags serializes the tag list into TagsJSON.
func (t *TestResult) SetTags(tags []string) {
	if len(tags) == 0 {
		t.TagsJSON = ""

		return
	}

	b, err := json.Marshal(tags)
	if err != nil {
		return
	}

	t.TagsJSON = string(b)
}

// KeywordCall is one invocation of a named keyword during a test.
// Calls form an ordered sequence per test (by start_time).
type KeywordCall struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	RunID           uint      `gorm:"index;not null" json:"run_id"`
	TestName        string    `json:"test_name"`
	KeywordName     string    `gorm:"not null" json:"keyword_name"`
	LibraryName     string    `json:"library_name,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Depth           int       `json:"depth"`
}

// OverviewSnapshot is the cached overview for one (window, repository)
// filter combination. Overwritten wholesale on each aggregation pass.
type OverviewSnapshot struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	FilterDays         int       `gorm:"index:idx_snapshot_filter" json:"filter_days"`
	RepositoryID       *uint     `gorm:"index:idx_snapshot_filter" json:"repository_id,omitempty"`
	TotalRuns          int       `json:"total_runs"`
	SuccessRate        float64   `json:"success_rate"`
	AvgDurationSeconds float64   `json:"avg_duration_seconds"`
	TotalTests         int       `json:"total_tests"`
	ComputedAt         time.Time `json:"computed_at"`
}

// TrendPoint is one calendar day of the cached pass/fail trend series.
type TrendPoint struct {
	ID                 uint    `gorm:"primaryKey" json:"-"`
	FilterDays         int     `gorm:"index:idx_trend_filter" json:"-"`
	RepositoryID       *uint   `gorm:"index:idx_trend_filter" json:"-"`
	Date               string  `json:"date"`
	Passed             int     `json:"passed"`
	Failed             int     `json:"failed"`
	Errored            int     `json:"error"`
	Total              int     `json:"total"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	SuccessRate        float64 `json:"success_rate"`
}

// FlakyTestEntry is one row of the cached flakiness ranking. Recomputed
// wholesale each aggregation pass, never partially updated.
type FlakyTestEntry struct {
	ID           uint    `gorm:"primaryKey" json:"-"`
	FilterDays   int     `gorm:"index:idx_flaky_filter" json:"-"`
	RepositoryID *uint   `gorm:"index:idx_flaky_filter" json:"-"`
	TestName     string  `json:"test_name"`
	SuiteName    string  `json:"suite_name"`
	TotalRuns    int     `json:"total_runs"`
	PassCount    int     `json:"pass_count"`
	FailCount    int     `json:"fail_count"`
	FlipCount    int     `json:"flip_count"`
	FlakyRate    float64 `json:"flaky_rate"`
	LastStatus   string  `json:"last_status"`
}

// AggregationMark is the global "last aggregated" watermark used for
// staleness detection. Single row.
type AggregationMark struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	LastAggregatedAt time.Time `json:"last_aggregated_at"`
}

// AnalysisJob is one deep analysis job. Created once, mutated only by
// its own execution, immutable after reaching a terminal state.
type AnalysisJob struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	RepositoryID    *uint      `gorm:"index" json:"repository_id,omitempty"`
	KPIsJSON        string     `gorm:"type:text" json:"-"`
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
	Status          string     `gorm:"index" json:"status"`
	Progress        int        `json:"progress"`
	ReportsAnalyzed int        `json:"reports_analyzed"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
	ResultsJSON     string     `gorm:"type:text" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// SelectedKPIs returns the deserialized KPI id list.
func (j *AnalysisJob) SelectedKPIs() []string {
	if j.KPIsJSON == "" {
		return nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(j.KPIsJSON), &ids); err != nil {
		return nil
	}

	return ids
}

// SetSelectedKPIs serializes the KPI id list.
func (j *AnalysisJob) SetSelectedKPIs(ids []string) {
	b, err := json.Marshal(ids)
	if err != nil {
		return
	}

	j.KPIsJSON = string(b)
}

// Terminal reports whether the job has reached a final state.
func (j *AnalysisJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusError
}
