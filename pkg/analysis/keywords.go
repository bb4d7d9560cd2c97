package analysis

import (
	"sort"
)

// keywordStats accumulates call data for one keyword name.
type keywordStats struct {
	library      string
	count        int
	totalSeconds float64
}

// keywordAccumulator is the shared fold logic of the frequency and
// duration-impact KPIs. Each KPI still owns its own instance.
type keywordAccumulator struct {
	totalCalls int
	stats      map[string]*keywordStats
}

func newKeywordAccumulator() keywordAccumulator {
	return keywordAccumulator{stats: make(map[string]*keywordStats, 256)}
}

func (a *keywordAccumulator) fold(report *Report) {
	for i := range report.Calls {
		call := &report.Calls[i]
		library := resolveLibrary(call)

		s, ok := a.stats[call.KeywordName]
		if !ok {
			s = &keywordStats{library: library}
			a.stats[call.KeywordName] = s
		} else if library < s.library {
			// Conflicting labels across reports settle on the smallest
			// name, keeping the result fold-order independent.
			s.library = library
		}

		s.count++
		s.totalSeconds += call.DurationSeconds
		a.totalCalls++
	}
}

// sortedKeywords returns the keyword names ordered by less, ties broken
// by name ascending for determinism.
func (a *keywordAccumulator) sortedKeywords(
	less func(x, y *keywordStats) bool,
) []string {
	names := make([]string, 0, len(a.stats))
	for name := range a.stats {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		x, y := a.stats[names[i]], a.stats[names[j]]
		if less(x, y) != less(y, x) {
			return less(x, y)
		}

		return names[i] < names[j]
	})

	return names
}

// --- keyword_frequency ---

// KeywordCount is one row of the keyword frequency result.
type KeywordCount struct {
	Keyword string  `json:"keyword"`
	Library string  `json:"library"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// KeywordFrequencyResult is the finalized keyword_frequency KPI.
type KeywordFrequencyResult struct {
	TotalCalls     int            `json:"total_calls"`
	UniqueKeywords int            `json:"unique_keywords"`
	Top            []KeywordCount `json:"top"`
}

type keywordFrequency struct {
	keywordAccumulator
	topN int
}

func newKeywordFrequency(topN int) *keywordFrequency {
	return &keywordFrequency{
		keywordAccumulator: newKeywordAccumulator(),
		topN:               topN,
	}
}

func (a *keywordFrequency) ID() string { return KPIKeywordFrequency }

func (a *keywordFrequency) Fold(report *Report) { a.fold(report) }

func (a *keywordFrequency) Finalize() any {
	result := KeywordFrequencyResult{
		TotalCalls:     a.totalCalls,
		UniqueKeywords: len(a.stats),
		Top:            []KeywordCount{},
	}

	names := a.sortedKeywords(func(x, y *keywordStats) bool {
		return x.count > y.count
	})

	for _, name := range names {
		if len(result.Top) >= a.topN {
			break
		}

		s := a.stats[name]

		percent := 0.0
		if a.totalCalls > 0 {
			percent = float64(s.count) / float64(a.totalCalls) * 100
		}

		result.Top = append(result.Top, KeywordCount{
			Keyword: name,
			Library: s.library,
			Count:   s.count,
			Percent: percent,
		})
	}

	return result
}

// --- keyword_duration_impact ---

// KeywordDuration is one row of the duration impact result.
type KeywordDuration struct {
	Keyword      string  `json:"keyword"`
	Library      string  `json:"library"`
	Count        int     `json:"count"`
	TotalSeconds float64 `json:"total_seconds"`
	AvgSeconds   float64 `json:"avg_seconds"`
}

// KeywordDurationResult is the finalized keyword_duration_impact KPI.
type KeywordDurationResult struct {
	TotalCalls int               `json:"total_calls"`
	Top        []KeywordDuration `json:"top"`
}

type keywordDurationImpact struct {
	keywordAccumulator
	topN int
}

func newKeywordDurationImpact(topN int) *keywordDurationImpact {
	return &keywordDurationImpact{
		keywordAccumulator: newKeywordAccumulator(),
		topN:               topN,
	}
}

func (a *keywordDurationImpact) ID() string { return KPIKeywordDurationImpact }

func (a *keywordDurationImpact) Fold(report *Report) { a.fold(report) }

func (a *keywordDurationImpact) Finalize() any {
	result := KeywordDurationResult{
		TotalCalls: a.totalCalls,
		Top:        []KeywordDuration{},
	}

	names := a.sortedKeywords(func(x, y *keywordStats) bool {
		return x.totalSeconds > y.totalSeconds
	})

	for _, name := range names {
		if len(result.Top) >= a.topN {
			break
		}

		s := a.stats[name]

		result.Top = append(result.Top, KeywordDuration{
			Keyword:      name,
			Library:      s.library,
			Count:        s.count,
			TotalSeconds: s.totalSeconds,
			AvgSeconds:   s.totalSeconds / float64(s.count),
		})
	}

	return result
}

// --- library_distribution ---

// LibraryUsage is one row of the library distribution result.
type LibraryUsage struct {
	Library string  `json:"library"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// LibraryDistributionResult is the finalized library_distribution KPI.
type LibraryDistributionResult struct {
	TotalCalls int            `json:"total_calls"`
	Libraries  []LibraryUsage `json:"libraries"`
}

type libraryDistribution struct {
	totalCalls int
	counts     map[string]int
}

func newLibraryDistribution() *libraryDistribution {
	return &libraryDistribution{counts: make(map[string]int, 16)}
}

func (a *libraryDistribution) ID() string { return KPILibraryDistribution }

func (a *libraryDistribution) Fold(report *Report) {
	for i := range report.Calls {
		a.counts[resolveLibrary(&report.Calls[i])]++
		a.totalCalls++
	}
}

func (a *libraryDistribution) Finalize() any {
	result := LibraryDistributionResult{
		TotalCalls: a.totalCalls,
		Libraries:  []LibraryUsage{},
	}

	names := make([]string, 0, len(a.counts))
	for name := range a.counts {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		if a.counts[names[i]] != a.counts[names[j]] {
			return a.counts[names[i]] > a.counts[names[j]]
		}

		return names[i] < names[j]
	})

	for _, name := range names {
		percent := 0.0
		if a.totalCalls > 0 {
			percent = float64(a.counts[name]) / float64(a.totalCalls) * 100
		}

		result.Libraries = append(result.Libraries, LibraryUsage{
			Library: name,
			Count:   a.counts[name],
			Percent: percent,
		})
	}

	return result
}

// topLevelSequences groups a report's depth-0 keyword calls by test
// name, preserving execution order within each test.
func topLevelSequences(report *Report) map[string][]string {
	sequences := make(map[string][]string)

	for i := range report.Calls {
		call := &report.Calls[i]
		if call.Depth != 0 {
			continue
		}

		sequences[call.TestName] = append(
			sequences[call.TestName], call.KeywordName,
		)
	}

	return sequences
}
