package analysis

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robodash/robodash/pkg/config"
	"github.com/robodash/robodash/pkg/robot"
	"github.com/robodash/robodash/pkg/store"
)

func analysisDefaults() *config.AnalysisConfig {
	return &config.AnalysisConfig{
		Workers:            1,
		QueueSize:          8,
		TopKeywords:        config.DefaultTopKeywords,
		MinSequenceLength:  config.DefaultMinSequenceLength,
		MaxSequenceLength:  config.DefaultMaxSequenceLength,
		MaxSequenceResults: config.DefaultMaxSequenceResults,
		MaxSequenceTests:   config.DefaultMaxSequenceTests,
		ErrorSamples:       config.DefaultErrorSamples,
		ZeroAssertionLimit: config.DefaultZeroAssertionLimit,
	}
}

func call(
	test, keyword string, duration float64, depth int,
) store.KeywordCall {
	return store.KeywordCall{
		TestName:        test,
		KeywordName:     keyword,
		DurationSeconds: duration,
		Depth:           depth,
	}
}

func TestKeywordFrequency(t *testing.T) {
	a := newKeywordFrequency(2)

	a.Fold(&Report{Calls: []store.KeywordCall{
		call("T1", "Log", 0.1, 0),
		call("T1", "Log", 0.1, 0),
		call("T1", "Click Element", 0.5, 0),
		call("T2", "Log", 0.1, 0),
		call("T2", "Should Be Equal", 0.2, 0),
	}})

	result, ok := a.Finalize().(KeywordFrequencyResult)
	require.True(t, ok)

	assert.Equal(t, 5, result.TotalCalls)
	assert.Equal(t, 3, result.UniqueKeywords)
	require.Len(t, result.Top, 2, "truncated to requested top N")

	assert.Equal(t, "Log", result.Top[0].Keyword)
	assert.Equal(t, "BuiltIn", result.Top[0].Library)
	assert.Equal(t, 3, result.Top[0].Count)
	assert.InDelta(t, 60.0, result.Top[0].Percent, 0.001)

	// Count tie between the remaining two resolves by name.
	assert.Equal(t, "Click Element", result.Top[1].Keyword)
}

func TestKeywordDurationImpact(t *testing.T) {
	a := newKeywordDurationImpact(10)

	a.Fold(&Report{Calls: []store.KeywordCall{
		call("T1", "Wait Until Element Is Visible", 4.0, 0),
		call("T1", "Wait Until Element Is Visible", 6.0, 0),
		call("T1", "Log", 0.1, 0),
	}})

	result, ok := a.Finalize().(KeywordDurationResult)
	require.True(t, ok)

	require.Len(t, result.Top, 2)
	assert.Equal(t, "Wait Until Element Is Visible", result.Top[0].Keyword)
	assert.InDelta(t, 10.0, result.Top[0].TotalSeconds, 0.001)
	assert.InDelta(t, 5.0, result.Top[0].AvgSeconds, 0.001)
	assert.Equal(t, 2, result.Top[0].Count)
}

func TestKeywordFrequency_LibraryLabelIsOrderIndependent(t *testing.T) {
	zeta := call("T1", "Do Custom Thing", 0.1, 0)
	zeta.LibraryName = "ZetaLib"

	alpha := call("T2", "Do Custom Thing", 0.1, 0)
	alpha.LibraryName = "AlphaLib"

	orders := [][]*Report{
		{
			{Calls: []store.KeywordCall{zeta}},
			{Calls: []store.KeywordCall{alpha}},
		},
		{
			{Calls: []store.KeywordCall{alpha}},
			{Calls: []store.KeywordCall{zeta}},
		},
	}

	for _, reports := range orders {
		a := newKeywordFrequency(5)
		for _, report := range reports {
			a.Fold(report)
		}

		result, ok := a.Finalize().(KeywordFrequencyResult)
		require.True(t, ok)

		require.Len(t, result.Top, 1)
		assert.Equal(t, "AlphaLib", result.Top[0].Library,
			"conflicting labels must settle the same way in any order")
	}
}

func TestLibraryDistribution_PrefersRecordedLibrary(t *testing.T) {
	a := newLibraryDistribution()

	recorded := call("T1", "Do Custom Thing", 0.1, 0)
	recorded.LibraryName = "MyCustomLib"

	a.Fold(&Report{Calls: []store.KeywordCall{
		recorded,
		call("T1", "Should Be Equal", 0.1, 0),
		call("T1", "Totally Unknown Keyword", 0.1, 0),
	}})

	result, ok := a.Finalize().(LibraryDistributionResult)
	require.True(t, ok)

	byName := make(map[string]int)
	for _, usage := range result.Libraries {
		byName[usage.Library] = usage.Count
	}

	assert.Equal(t, 1, byName["MyCustomLib"])
	assert.Equal(t, 1, byName["BuiltIn"])
	assert.Equal(t, 1, byName["Unknown"])
}

func TestTestComplexity_BucketsAndMaxMerge(t *testing.T) {
	a := newTestComplexity()

	short := make([]store.KeywordCall, 0, 3)
	for i := 0; i < 3; i++ {
		short = append(short, call("Short Test", "Log", 0.1, 0))
	}

	long := make([]store.KeywordCall, 0, 12)
	for i := 0; i < 12; i++ {
		long = append(long, call("Long Test", "Click Element", 0.1, 0))
	}

	// Nested calls do not count as steps.
	long = append(long, call("Long Test", "Log", 0.1, 1))

	a.Fold(&Report{Calls: short})
	a.Fold(&Report{Calls: long})

	// The same test seen again with fewer steps keeps its maximum.
	a.Fold(&Report{Calls: long[:6]})

	result, ok := a.Finalize().(TestComplexityResult)
	require.True(t, ok)

	assert.Equal(t, 2, result.TotalTests)
	assert.Equal(t, 3, result.MinSteps)
	assert.Equal(t, 12, result.MaxSteps)
	assert.InDelta(t, 7.5, result.AvgSteps, 0.001)

	byBucket := make(map[string]int)
	for _, b := range result.Histogram {
		byBucket[b.Bucket] = b.Count
	}

	assert.Equal(t, 1, byBucket["1-5"])
	assert.Equal(t, 1, byBucket["11-20"])
	assert.Equal(t, 0, byBucket["50+"])
}

func TestAssertionDensity(t *testing.T) {
	a := newAssertionDensity(10)

	a.Fold(&Report{Calls: []store.KeywordCall{
		call("Checked", "Open Browser", 1.0, 0),
		call("Checked", "Should Be Equal", 0.1, 0),
		call("Unchecked", "Log", 0.1, 0),
		call("Unchecked", "Click Element", 0.2, 0),
	}})

	result, ok := a.Finalize().(AssertionDensityResult)
	require.True(t, ok)

	assert.Equal(t, 2, result.TotalTests)
	assert.Equal(t, 4, result.TotalCalls)
	assert.Equal(t, 1, result.AssertionCalls)
	assert.Equal(t, 1, result.ZeroAssertionCount)
	assert.Equal(t, []ZeroAssertionTest{
		{Test: "Unchecked", KeywordCount: 2},
	}, result.ZeroAssertionTests)
	assert.InDelta(t, 25.0, result.AvgDensity, 0.001)
}

func TestTagCoverage(t *testing.T) {
	a := newTagCoverage()

	tagged := store.TestResult{TestName: "Login", Status: "PASS"}
	tagged.SetTags([]string{"smoke", "auth"})

	duplicate := store.TestResult{TestName: "Login", Status: "FAIL"}
	duplicate.SetTags([]string{"smoke"})

	untagged := store.TestResult{TestName: "Cleanup", Status: "PASS"}

	a.Fold(&Report{Results: []store.TestResult{tagged, untagged}})
	a.Fold(&Report{Results: []store.TestResult{duplicate}})

	result, ok := a.Finalize().(TagCoverageResult)
	require.True(t, ok)

	assert.Equal(t, 2, result.TotalTests)
	assert.Equal(t, 1, result.UntaggedTests)
	assert.Equal(t, 2, result.UniqueTags)
	assert.InDelta(t, 1.0, result.AvgTagsPerTest, 0.001)

	require.Len(t, result.Tags, 2)
	assert.Equal(t, "auth", result.Tags[0].Tag, "count tie resolves by name")
	assert.Equal(t, 1, result.Tags[0].Count)
	assert.Equal(t, "smoke", result.Tags[1].Tag)
}

func TestSourceTestStats(t *testing.T) {
	repeated := make([]string, 12)
	for i := range repeated {
		repeated[i] = "Click Button"
	}

	files := []robot.SuiteFile{
		{
			Path:      "login.robot",
			LineCount: 30,
			Tests: []robot.SuiteTest{
				{
					Name: "Valid Login",
					Steps: []string{
						"Open Browser", "Input Text", "Click Button",
					},
				},
				{Name: "Bulk Clicks", Steps: repeated},
			},
		},
		{
			Path:      "api.robot",
			LineCount: 10,
			Tests: []robot.SuiteTest{
				{
					Name: "Ping",
					Steps: []string{
						"Create Session", "Get On Session", "Status Should Be",
					},
				},
			},
		},
	}

	a := newSourceTestStats(2)

	result, ok := a.Analyze(files).(SourceTestStatsResult)
	require.True(t, ok)

	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 3, result.TotalTests)
	assert.Equal(t, 40, result.TotalLines)
	assert.InDelta(t, 1.5, result.AvgTestsPerFile, 0.001)
	assert.InDelta(t, 6.0, result.AvgStepsPerTest, 0.001)
	assert.InDelta(t, 20.0, result.AvgLinesPerFile, 0.001)

	byBucket := make(map[string]int)
	for _, b := range result.Histogram {
		byBucket[b.Bucket] = b.Count
	}

	assert.Equal(t, 2, byBucket["1-5"])
	assert.Equal(t, 1, byBucket["11-20"])
	assert.Equal(t, 0, byBucket["50+"])

	// Top keywords truncate to the requested N; the count tie after
	// "Click Button" resolves by name.
	require.Len(t, result.TopKeywords, 2)
	assert.Equal(t,
		SourceKeywordCount{Keyword: "Click Button", Count: 13},
		result.TopKeywords[0])
	assert.Equal(t,
		SourceKeywordCount{Keyword: "Create Session", Count: 1},
		result.TopKeywords[1])

	// LargestFiles shares the same cap.
	require.Len(t, result.LargestFiles, 2)
	assert.Equal(t, "login.robot", result.LargestFiles[0].Path)
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "numbers collapse",
			message: "Expected 5 but got 7",
			want:    "Expected <num> but got <num>",
		},
		{
			name:    "single quoted strings collapse",
			message: "Element 'login-btn' not found",
			want:    "Element '<str>' not found",
		},
		{
			name:    "double quoted strings collapse",
			message: `Value "abc" != "def"`,
			want:    `Value "<str>" != "<str>"`,
		},
		{
			name:    "variables collapse",
			message: "Variable ${USER_ID} not set",
			want:    "Variable <var> not set",
		},
		{
			name:    "hex and decimals collapse",
			message: "got 0xDEAD after 1.5 seconds",
			want:    "got <num> after <num> seconds",
		},
		{
			name:    "quotes win over inner numbers",
			message: "Expected '42' but got '43'",
			want:    "Expected '<str>' but got '<str>'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeError(tt.message))
		})
	}
}

func TestErrorPatterns_ClustersEquivalentMessages(t *testing.T) {
	a := newErrorPatterns(5)

	a.Fold(&Report{Results: []store.TestResult{
		{TestName: "Sum", Status: "FAIL", ErrorMessage: "Expected 5 but got 7"},
		{TestName: "Mul", Status: "FAIL", ErrorMessage: "Expected 3 but got 9"},
		{TestName: "Ok", Status: "PASS"},
		{TestName: "Conn", Status: "FAIL", ErrorMessage: "Connection refused"},
	}})

	result, ok := a.Finalize().(ErrorPatternsResult)
	require.True(t, ok)

	assert.Equal(t, 3, result.TotalFailures)
	require.Len(t, result.Clusters, 2)

	top := result.Clusters[0]
	assert.Equal(t, "Expected <num> but got <num>", top.Pattern)
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, []string{"Mul", "Sum"}, top.SampleTests)

	assert.Equal(t, "Connection refused", result.Clusters[1].Pattern)
}

func TestRedundancy_SharedSequences(t *testing.T) {
	a := newRedundancy(2, 5, 50, 10)

	login := []store.KeywordCall{
		call("Order Flow", "Open Browser", 1.0, 0),
		call("Order Flow", "Input Username", 0.2, 0),
		call("Order Flow", "Input Password", 0.2, 0),
		call("Order Flow", "Click Login", 0.3, 0),
		call("Checkout Flow", "Open Browser", 1.0, 0),
		call("Checkout Flow", "Input Username", 0.2, 0),
		call("Checkout Flow", "Input Password", 0.2, 0),
	}

	a.Fold(&Report{Calls: login})

	result, ok := a.Finalize().(RedundancyResult)
	require.True(t, ok)

	assert.Equal(t, 2, result.TestsScanned)
	require.NotEmpty(t, result.Sequences)

	// The longest shared run surfaces before its own sub-sequences.
	top := result.Sequences[0]
	assert.Equal(t,
		[]string{"Open Browser", "Input Username", "Input Password"},
		top.Keywords)
	assert.Equal(t, 3, top.Length)
	assert.Equal(t, 2, top.TestCount)
	assert.Equal(t, []string{"Checkout Flow", "Order Flow"}, top.Tests)
}

func TestRedundancy_SameTestRepeatCountsOnce(t *testing.T) {
	a := newRedundancy(2, 5, 50, 10)

	a.Fold(&Report{Calls: []store.KeywordCall{
		call("Loop Test", "Fetch Row", 0.1, 0),
		call("Loop Test", "Check Row", 0.1, 0),
		call("Loop Test", "Fetch Row", 0.1, 0),
		call("Loop Test", "Check Row", 0.1, 0),
	}})

	result, ok := a.Finalize().(RedundancyResult)
	require.True(t, ok)

	assert.Empty(t, result.Sequences,
		"a sequence repeated within one test is not cross-test redundancy")
}

func TestFoldOrderIndependence(t *testing.T) {
	reports := []*Report{
		{
			Results: []store.TestResult{
				{TestName: "A", Status: "FAIL", ErrorMessage: "Expected 1 but got 2"},
			},
			Calls: []store.KeywordCall{
				call("A", "Open Browser", 1.0, 0),
				call("A", "Should Be Equal", 0.1, 0),
			},
		},
		{
			Results: []store.TestResult{
				{TestName: "B", Status: "PASS"},
			},
			Calls: []store.KeywordCall{
				call("B", "Open Browser", 2.0, 0),
				call("B", "Click Element", 0.5, 0),
				call("B", "Should Be Equal", 0.1, 0),
			},
		},
		{
			Results: []store.TestResult{
				{TestName: "C", Status: "FAIL", ErrorMessage: "Expected 8 but got 9"},
			},
			Calls: []store.KeywordCall{
				call("C", "Open Browser", 0.7, 0),
				call("C", "Click Element", 0.5, 0),
			},
		},
	}

	cfg := analysisDefaults()

	kpis := []string{
		KPIKeywordFrequency,
		KPIKeywordDurationImpact,
		KPILibraryDistribution,
		KPITestComplexity,
		KPIAssertionDensity,
		KPITagCoverage,
		KPIErrorPatterns,
		KPIRedundancy,
	}

	finalize := func(order []int) map[string]string {
		out := make(map[string]string, len(kpis))

		for _, id := range kpis {
			a := newAnalyzer(id, cfg)
			require.NotNil(t, a)

			for _, idx := range order {
				a.Fold(reports[idx])
			}

			encoded, err := json.Marshal(a.Finalize())
			require.NoError(t, err)

			out[id] = string(encoded)
		}

		return out
	}

	baseline := finalize([]int{0, 1, 2})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		order := rng.Perm(len(reports))

		assert.Equal(t, baseline, finalize(order),
			"fold order %v changed a result", order)
	}
}
