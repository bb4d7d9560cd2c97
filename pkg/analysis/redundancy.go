package analysis

import (
	"sort"
	"strings"
)

// sequenceSeparator joins keyword names into a map key. The unit
// separator cannot appear in keyword names parsed from reports.
const sequenceSeparator = "\x1f"

// RedundantSequence is one shared keyword sequence found across tests.
type RedundantSequence struct {
	Keywords  []string `json:"keywords"`
	Length    int      `json:"length"`
	TestCount int      `json:"test_count"`
	Tests     []string `json:"tests"`
}

// RedundancyResult is the finalized redundancy KPI.
type RedundancyResult struct {
	TestsScanned int                 `json:"tests_scanned"`
	Sequences    []RedundantSequence `json:"sequences"`
}

// redundancy mines contiguous top-level keyword subsequences that
// recur in more than one test. Occurrences are tracked as sets of
// test names: repeating a sequence within the same test counts once,
// and re-folding the same test is a no-op.
type redundancy struct {
	minLen     int
	maxLen     int
	maxResults int
	maxTests   int

	tests     map[string]struct{}
	sequences map[string]map[string]struct{}
}

func newRedundancy(minLen, maxLen, maxResults, maxTests int) *redundancy {
	return &redundancy{
		minLen:     minLen,
		maxLen:     maxLen,
		maxResults: maxResults,
		maxTests:   maxTests,
		tests:      make(map[string]struct{}, 128),
		sequences:  make(map[string]map[string]struct{}, 512),
	}
}

func (a *redundancy) ID() string { return KPIRedundancy }

func (a *redundancy) Fold(report *Report) {
	for test, keywords := range topLevelSequences(report) {
		a.tests[test] = struct{}{}

		for length := a.minLen; length <= a.maxLen; length++ {
			for start := 0; start+length <= len(keywords); start++ {
				key := strings.Join(
					keywords[start:start+length], sequenceSeparator,
				)

				set, ok := a.sequences[key]
				if !ok {
					set = make(map[string]struct{}, 2)
					a.sequences[key] = set
				}

				set[test] = struct{}{}
			}
		}
	}
}

func (a *redundancy) Finalize() any {
	result := RedundancyResult{
		TestsScanned: len(a.tests),
		Sequences:    []RedundantSequence{},
	}

	shared := make([]string, 0, len(a.sequences))
	for key, set := range a.sequences {
		if len(set) > 1 {
			shared = append(shared, key)
		}
	}

	// Most widely shared first, longer sequences ahead of their own
	// sub-sequences at equal spread.
	sort.Slice(shared, func(i, j int) bool {
		si, sj := a.sequences[shared[i]], a.sequences[shared[j]]
		if len(si) != len(sj) {
			return len(si) > len(sj)
		}

		li := strings.Count(shared[i], sequenceSeparator)
		lj := strings.Count(shared[j], sequenceSeparator)
		if li != lj {
			return li > lj
		}

		return shared[i] < shared[j]
	})

	for _, key := range shared {
		if len(result.Sequences) >= a.maxResults {
			break
		}

		set := a.sequences[key]

		tests := make([]string, 0, len(set))
		for test := range set {
			tests = append(tests, test)
		}

		sort.Strings(tests)

		testCount := len(tests)
		if len(tests) > a.maxTests {
			tests = tests[:a.maxTests]
		}

		result.Sequences = append(result.Sequences, RedundantSequence{
			Keywords:  strings.Split(key, sequenceSeparator),
			Length:    strings.Count(key, sequenceSeparator) + 1,
			TestCount: testCount,
			Tests:     tests,
		})
	}

	return result
}
