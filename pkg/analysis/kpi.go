// Package analysis implements the deep analysis job engine: on-demand,
// filterable, multi-KPI batch computations over historical report data.
package analysis

import (
	"github.com/robodash/robodash/pkg/config"
	"github.com/robodash/robodash/pkg/robot"
	"github.com/robodash/robodash/pkg/store"
)

// KPI identifiers.
const (
	KPIKeywordFrequency      = "keyword_frequency"
	KPIKeywordDurationImpact = "keyword_duration_impact"
	KPILibraryDistribution   = "library_distribution"
	KPITestComplexity        = "test_complexity"
	KPIAssertionDensity      = "assertion_density"
	KPITagCoverage           = "tag_coverage"
	KPIErrorPatterns         = "error_patterns"
	KPIRedundancy            = "redundancy"
	KPISourceTestStats       = "source_test_stats"
	KPISourceLibraries       = "source_library_distribution"
)

// KpiMeta describes one available deep-analysis KPI. Read-only
// reference data.
type KpiMeta struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is the static list of available KPIs.
var Catalog = []KpiMeta{
	{
		ID:       KPIKeywordFrequency,
		Category: "keywords",
		Name:     "Keyword Frequency",
		Description: "Most frequently called keywords with their share " +
			"of all keyword calls.",
	},
	{
		ID:       KPIKeywordDurationImpact,
		Category: "keywords",
		Name:     "Keyword Duration Impact",
		Description: "Keywords ranked by total execution time, with " +
			"call counts and averages.",
	},
	{
		ID:       KPILibraryDistribution,
		Category: "keywords",
		Name:     "Library Distribution",
		Description: "Keyword call counts aggregated by resolved " +
			"owning library.",
	},
	{
		ID:       KPITestComplexity,
		Category: "tests",
		Name:     "Test Complexity",
		Description: "Step counts per test with min/avg/max and a " +
			"bucketed histogram.",
	},
	{
		ID:       KPIAssertionDensity,
		Category: "quality",
		Name:     "Assertion Density",
		Description: "Share of verification keywords per test and the " +
			"tests without any assertions.",
	},
	{
		ID:       KPITagCoverage,
		Category: "quality",
		Name:     "Tag Coverage",
		Description: "Tag usage across tests, untagged test count, and " +
			"average tags per test.",
	},
	{
		ID:       KPIErrorPatterns,
		Category: "quality",
		Name:     "Error Patterns",
		Description: "Failure messages clustered by normalized pattern " +
			"with occurrence counts and sample tests.",
	},
	{
		ID:       KPIRedundancy,
		Category: "tests",
		Name:     "Redundancy Detection",
		Description: "Identical keyword sequences appearing in more " +
			"than one test, suggesting extractable shared logic.",
	},
	{
		ID:       KPISourceTestStats,
		Category: "source",
		Name:     "Source Test Stats",
		Description: "Static per-file and aggregate test statistics " +
			"parsed from the suite source files.",
	},
	{
		ID:       KPISourceLibraries,
		Category: "source",
		Name:     "Source Library Distribution",
		Description: "Library import usage across suite source files.",
	},
}

// knownKPIs indexes the catalog by id.
var knownKPIs = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Catalog))
	for _, k := range Catalog {
		m[k.ID] = struct{}{}
	}

	return m
}()

// KnownKPI reports whether id names a catalog entry.
func KnownKPI(id string) bool {
	_, ok := knownKPIs[id]

	return ok
}

// Report is the resolved data of one run, the unit folded into every
// selected report analyzer.
type Report struct {
	Run     store.RunRecord
	Results []store.TestResult
	Calls   []store.KeywordCall
}

// analyzer is one independent KPI accumulator. Accumulation is
// associative and commutative: the fold order across reports must not
// change the finalized result.
type analyzer interface {
	ID() string
	Fold(report *Report)
	Finalize() any
}

// sourceAnalyzer is a KPI computed once from parsed suite source files
// instead of run reports.
type sourceAnalyzer interface {
	ID() string
	Analyze(files []robot.SuiteFile) any
}

// newAnalyzer builds the report accumulator for a KPI id, or nil when
// the id names a source KPI.
func newAnalyzer(id string, cfg *config.AnalysisConfig) analyzer {
	switch id {
	case KPIKeywordFrequency:
		return newKeywordFrequency(cfg.TopKeywords)
	case KPIKeywordDurationImpact:
		return newKeywordDurationImpact(cfg.TopKeywords)
	case KPILibraryDistribution:
		return newLibraryDistribution()
	case KPITestComplexity:
		return newTestComplexity()
	case KPIAssertionDensity:
		return newAssertionDensity(cfg.ZeroAssertionLimit)
	case KPITagCoverage:
		return newTagCoverage()
	case KPIErrorPatterns:
		return newErrorPatterns(cfg.ErrorSamples)
	case KPIRedundancy:
		return newRedundancy(
			cfg.MinSequenceLength,
			cfg.MaxSequenceLength,
			cfg.MaxSequenceResults,
			cfg.MaxSequenceTests,
		)
	default:
		return nil
	}
}

// newSourceAnalyzer builds the source accumulator for a KPI id, or nil
// when the id names a report KPI.
func newSourceAnalyzer(id string, cfg *config.AnalysisConfig) sourceAnalyzer {
	switch id {
	case KPISourceTestStats:
		return newSourceTestStats(cfg.TopKeywords)
	case KPISourceLibraries:
		return newSourceLibraries()
	default:
		return nil
	}
}

// resolveLibrary labels a call with its owning library, consulting the
// static catalog when the record itself carries none.
func resolveLibrary(call *store.KeywordCall) string {
	if call.LibraryName != "" {
		return call.LibraryName
	}

	return robot.ResolveLibrary(call.KeywordName)
}
