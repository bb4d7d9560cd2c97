package analysis

import (
	"sort"

	"github.com/robodash/robodash/pkg/robot"
)

// --- test_complexity ---

// complexityBuckets are the histogram bucket labels in display order.
var complexityBuckets = []string{"1-5", "6-10", "11-20", "21-50", "50+"}

func complexityBucket(steps int) string {
	switch {
	case steps <= 5:
		return "1-5"
	case steps <= 10:
		return "6-10"
	case steps <= 20:
		return "11-20"
	case steps <= 50:
		return "21-50"
	default:
		return "50+"
	}
}

// ComplexityBucket is one histogram bar of the complexity result.
type ComplexityBucket struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// TestComplexityResult is the finalized test_complexity KPI.
type TestComplexityResult struct {
	TotalTests int                `json:"total_tests"`
	MinSteps   int                `json:"min_steps"`
	AvgSteps   float64            `json:"avg_steps"`
	MaxSteps   int                `json:"max_steps"`
	Histogram  []ComplexityBucket `json:"histogram"`
}

// testComplexity counts top-level keyword calls per test. A test seen
// in several runs keeps the highest observed step count, so folding
// the same reports in any order yields the same histogram.
type testComplexity struct {
	steps map[string]int
}

func newTestComplexity() *testComplexity {
	return &testComplexity{steps: make(map[string]int, 128)}
}

func (a *testComplexity) ID() string { return KPITestComplexity }

func (a *testComplexity) Fold(report *Report) {
	counts := make(map[string]int)

	for i := range report.Calls {
		if report.Calls[i].Depth != 0 {
			continue
		}

		counts[report.Calls[i].TestName]++
	}

	for name, n := range counts {
		if n > a.steps[name] {
			a.steps[name] = n
		}
	}
}

func (a *testComplexity) Finalize() any {
	result := TestComplexityResult{
		TotalTests: len(a.steps),
		Histogram:  make([]ComplexityBucket, 0, len(complexityBuckets)),
	}

	byBucket := make(map[string]int, len(complexityBuckets))

	total := 0
	for _, steps := range a.steps {
		if result.MinSteps == 0 || steps < result.MinSteps {
			result.MinSteps = steps
		}

		if steps > result.MaxSteps {
			result.MaxSteps = steps
		}

		total += steps
		byBucket[complexityBucket(steps)]++
	}

	if len(a.steps) > 0 {
		result.AvgSteps = float64(total) / float64(len(a.steps))
	}

	for _, bucket := range complexityBuckets {
		result.Histogram = append(result.Histogram, ComplexityBucket{
			Bucket: bucket,
			Count:  byBucket[bucket],
		})
	}

	return result
}

// --- assertion_density ---

// ZeroAssertionTest is one test without any verification keyword,
// listed with its total keyword call count.
type ZeroAssertionTest struct {
	Test         string `json:"test"`
	KeywordCount int    `json:"keyword_count"`
}

// AssertionDensityResult is the finalized assertion_density KPI.
type AssertionDensityResult struct {
	TotalTests         int                 `json:"total_tests"`
	TotalCalls         int                 `json:"total_calls"`
	AssertionCalls     int                 `json:"assertion_calls"`
	AvgDensity         float64             `json:"avg_density"`
	ZeroAssertionTests []ZeroAssertionTest `json:"zero_assertion_tests"`
	ZeroAssertionCount int                 `json:"zero_assertion_count"`
}

type testCallCounts struct {
	calls      int
	assertions int
}

// assertionDensity tracks, per test name, how many keyword calls were
// verification keywords. Counts are summed across runs, which keeps
// the fold order irrelevant.
type assertionDensity struct {
	limit int
	tests map[string]*testCallCounts
}

func newAssertionDensity(zeroLimit int) *assertionDensity {
	return &assertionDensity{
		limit: zeroLimit,
		tests: make(map[string]*testCallCounts, 128),
	}
}

func (a *assertionDensity) ID() string { return KPIAssertionDensity }

func (a *assertionDensity) Fold(report *Report) {
	for i := range report.Calls {
		call := &report.Calls[i]

		c, ok := a.tests[call.TestName]
		if !ok {
			c = &testCallCounts{}
			a.tests[call.TestName] = c
		}

		c.calls++
		if robot.IsAssertion(call.KeywordName) {
			c.assertions++
		}
	}
}

func (a *assertionDensity) Finalize() any {
	result := AssertionDensityResult{
		TotalTests:         len(a.tests),
		ZeroAssertionTests: []ZeroAssertionTest{},
	}

	densitySum := 0.0

	for name, c := range a.tests {
		result.TotalCalls += c.calls
		result.AssertionCalls += c.assertions

		if c.calls > 0 {
			densitySum += float64(c.assertions) / float64(c.calls)
		}

		if c.assertions == 0 {
			result.ZeroAssertionCount++
			result.ZeroAssertionTests = append(
				result.ZeroAssertionTests, ZeroAssertionTest{
					Test:         name,
					KeywordCount: c.calls,
				},
			)
		}
	}

	if len(a.tests) > 0 {
		result.AvgDensity = densitySum / float64(len(a.tests)) * 100
	}

	sort.Slice(result.ZeroAssertionTests, func(i, j int) bool {
		return result.ZeroAssertionTests[i].Test <
			result.ZeroAssertionTests[j].Test
	})

	if len(result.ZeroAssertionTests) > a.limit {
		result.ZeroAssertionTests = result.ZeroAssertionTests[:a.limit]
	}

	return result
}

// --- tag_coverage ---

// TagCount is one row of the tag coverage result.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCoverageResult is the finalized tag_coverage KPI.
type TagCoverageResult struct {
	TotalTests     int        `json:"total_tests"`
	UntaggedTests  int        `json:"untagged_tests"`
	UniqueTags     int        `json:"unique_tags"`
	AvgTagsPerTest float64    `json:"avg_tags_per_test"`
	Tags           []TagCount `json:"tags"`
}

// tagCoverage unions the tag sets seen per test, so duplicate reports
// of the same test contribute each tag only once.
type tagCoverage struct {
	tagsByTest map[string]map[string]struct{}
}

func newTagCoverage() *tagCoverage {
	return &tagCoverage{tagsByTest: make(map[string]map[string]struct{}, 128)}
}

func (a *tagCoverage) ID() string { return KPITagCoverage }

func (a *tagCoverage) Fold(report *Report) {
	for i := range report.Results {
		r := &report.Results[i]

		set, ok := a.tagsByTest[r.TestName]
		if !ok {
			set = make(map[string]struct{})
			a.tagsByTest[r.TestName] = set
		}

		for _, tag := range r.Tags() {
			set[tag] = struct{}{}
		}
	}
}

func (a *tagCoverage) Finalize() any {
	result := TagCoverageResult{
		TotalTests: len(a.tagsByTest),
		Tags:       []TagCount{},
	}

	testsByTag := make(map[string]int)

	totalTags := 0
	for _, set := range a.tagsByTest {
		if len(set) == 0 {
			result.UntaggedTests++
		}

		totalTags += len(set)
		for tag := range set {
			testsByTag[tag]++
		}
	}

	result.UniqueTags = len(testsByTag)
	if len(a.tagsByTest) > 0 {
		result.AvgTagsPerTest = float64(totalTags) / float64(len(a.tagsByTest))
	}

	names := make([]string, 0, len(testsByTag))
	for tag := range testsByTag {
		names = append(names, tag)
	}

	sort.Slice(names, func(i, j int) bool {
		if testsByTag[names[i]] != testsByTag[names[j]] {
			return testsByTag[names[i]] > testsByTag[names[j]]
		}

		return names[i] < names[j]
	})

	for _, tag := range names {
		result.Tags = append(result.Tags, TagCount{
			Tag:   tag,
			Count: testsByTag[tag],
		})
	}

	return result
}
