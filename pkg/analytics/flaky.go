package analytics

import (
	"sort"

	"github.com/robodash/robodash/pkg/store"
)

// DetectFlaky groups test results by (test_name, suite_name), orders
// each group by the parent run's finished_at ascending, and counts
// adjacent PASS/FAIL transitions. A test qualifies as flaky iff its
// status flipped at least once within the window. Full recompute, no
// incremental state.
//
// The runs slice must be ordered by finished_at ascending (the order
// the store returns).
func DetectFlaky(
	windowDays int,
	repositoryID *uint,
	runs []store.RunRecord,
	resultsByRun map[uint][]store.TestResult,
) []store.FlakyTestEntry {
	type testKey struct {
		test  string
		suite string
	}

	type testHistory struct {
		statuses []string
	}

	histories := make(map[testKey]*testHistory)

	var order []testKey

	for i := range runs {
		for _, result := range resultsByRun[runs[i].ID] {
			key := testKey{test: result.TestName, suite: result.SuiteName}

			h, ok := histories[key]
			if !ok {
				h = &testHistory{}
				histories[key] = h
				order = append(order, key)
			}

			h.statuses = append(h.statuses, result.Status)
		}
	}

	entries := make([]store.FlakyTestEntry, 0, len(order))

	for _, key := range order {
		h := histories[key]

		entry := store.FlakyTestEntry{
			FilterDays:   windowDays,
			RepositoryID: repositoryID,
			TestName:     key.test,
			SuiteName:    key.suite,
			TotalRuns:    len(h.statuses),
		}

		for i, status := range h.statuses {
			if status == store.TestStatusPass {
				entry.PassCount++
			} else {
				entry.FailCount++
			}

			if i > 0 && status != h.statuses[i-1] {
				entry.FlipCount++
			}
		}

		if entry.FlipCount == 0 {
			continue
		}

		entry.FlakyRate =
			float64(entry.PassCount) / float64(entry.TotalRuns) * 100
		entry.LastStatus = h.statuses[len(h.statuses)-1]

		entries = append(entries, entry)
	}

	// Most unstable first: flip count descending, then the lower pass
	// rate, then name for determinism.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FlipCount != entries[j].FlipCount {
			return entries[i].FlipCount > entries[j].FlipCount
		}

		if entries[i].FlakyRate != entries[j].FlakyRate {
			return entries[i].FlakyRate < entries[j].FlakyRate
		}

		return entries[i].TestName < entries[j].TestName
	})

	return entries
}
