package analysis

import (
	"sort"

	"github.com/robodash/robodash/pkg/robot"
)

// --- source_test_stats ---

// SourceFileStats is one suite file row of the source stats result.
type SourceFileStats struct {
	Path       string `json:"path"`
	Tests      int    `json:"tests"`
	Lines      int    `json:"lines"`
	TotalSteps int    `json:"total_steps"`
}

// SourceKeywordCount is one static keyword occurrence row, counted
// across every test step in the scanned sources.
type SourceKeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// SourceTestStatsResult is the finalized source_test_stats KPI.
type SourceTestStatsResult struct {
	TotalFiles      int                  `json:"total_files"`
	TotalTests      int                  `json:"total_tests"`
	TotalLines      int                  `json:"total_lines"`
	AvgTestsPerFile float64              `json:"avg_tests_per_file"`
	AvgStepsPerTest float64              `json:"avg_steps_per_test"`
	AvgLinesPerFile float64              `json:"avg_lines_per_file"`
	Histogram       []ComplexityBucket   `json:"histogram"`
	TopKeywords     []SourceKeywordCount `json:"top_keywords"`
	LargestFiles    []SourceFileStats    `json:"largest_files"`
}

type sourceTestStats struct {
	topN int
}

func newSourceTestStats(topN int) *sourceTestStats {
	return &sourceTestStats{topN: topN}
}

func (a *sourceTestStats) ID() string { return KPISourceTestStats }

func (a *sourceTestStats) Analyze(files []robot.SuiteFile) any {
	result := SourceTestStatsResult{
		TotalFiles:   len(files),
		TopKeywords:  []SourceKeywordCount{},
		LargestFiles: []SourceFileStats{},
	}

	perFile := make([]SourceFileStats, 0, len(files))
	byBucket := make(map[string]int, len(complexityBuckets))
	keywordCounts := make(map[string]int, 256)

	totalSteps := 0
	for _, file := range files {
		stats := SourceFileStats{
			Path:  file.Path,
			Tests: len(file.Tests),
			Lines: file.LineCount,
		}

		for _, test := range file.Tests {
			stats.TotalSteps += len(test.Steps)
			byBucket[complexityBucket(len(test.Steps))]++

			for _, step := range test.Steps {
				keywordCounts[step]++
			}
		}

		result.TotalTests += stats.Tests
		result.TotalLines += stats.Lines
		totalSteps += stats.TotalSteps

		perFile = append(perFile, stats)
	}

	if result.TotalFiles > 0 {
		result.AvgTestsPerFile =
			float64(result.TotalTests) / float64(result.TotalFiles)
		result.AvgLinesPerFile =
			float64(result.TotalLines) / float64(result.TotalFiles)
	}

	if result.TotalTests > 0 {
		result.AvgStepsPerTest =
			float64(totalSteps) / float64(result.TotalTests)
	}

	for _, bucket := range complexityBuckets {
		result.Histogram = append(result.Histogram, ComplexityBucket{
			Bucket: bucket,
			Count:  byBucket[bucket],
		})
	}

	keywords := make([]string, 0, len(keywordCounts))
	for name := range keywordCounts {
		keywords = append(keywords, name)
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywordCounts[keywords[i]] != keywordCounts[keywords[j]] {
			return keywordCounts[keywords[i]] > keywordCounts[keywords[j]]
		}

		return keywords[i] < keywords[j]
	})

	if len(keywords) > a.topN {
		keywords = keywords[:a.topN]
	}

	for _, name := range keywords {
		result.TopKeywords = append(result.TopKeywords, SourceKeywordCount{
			Keyword: name,
			Count:   keywordCounts[name],
		})
	}

	sort.Slice(perFile, func(i, j int) bool {
		if perFile[i].Tests != perFile[j].Tests {
			return perFile[i].Tests > perFile[j].Tests
		}

		return perFile[i].Path < perFile[j].Path
	})

	if len(perFile) > a.topN {
		perFile = perFile[:a.topN]
	}

	result.LargestFiles = append(result.LargestFiles, perFile...)

	return result
}

// --- source_library_distribution ---

// SourceLibraryUsage is one library row of the source import result.
type SourceLibraryUsage struct {
	Library string `json:"library"`
	Files   int    `json:"files"`
}

// SourceLibrariesResult is the finalized source_library_distribution
// KPI.
type SourceLibrariesResult struct {
	TotalFiles int                  `json:"total_files"`
	Libraries  []SourceLibraryUsage `json:"libraries"`
}

type sourceLibraries struct{}

func newSourceLibraries() *sourceLibraries { return &sourceLibraries{} }

func (a *sourceLibraries) ID() string { return KPISourceLibraries }

func (a *sourceLibraries) Analyze(files []robot.SuiteFile) any {
	result := SourceLibrariesResult{
		TotalFiles: len(files),
		Libraries:  []SourceLibraryUsage{},
	}

	// A library imported twice by the same file counts once.
	fileCounts := make(map[string]int, 16)
	for _, file := range files {
		seen := make(map[string]struct{}, len(file.Libraries))
		for _, library := range file.Libraries {
			canonical := robot.CanonicalLibrary(library)
			if _, ok := seen[canonical]; ok {
				continue
			}

			seen[canonical] = struct{}{}
			fileCounts[canonical]++
		}
	}

	names := make([]string, 0, len(fileCounts))
	for name := range fileCounts {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		if fileCounts[names[i]] != fileCounts[names[j]] {
			return fileCounts[names[i]] > fileCounts[names[j]]
		}

		return names[i] < names[j]
	})

	for _, name := range names {
		result.Libraries = append(result.Libraries, SourceLibraryUsage{
			Library: name,
			Files:   fileCounts[name],
		})
	}

	return result
}
