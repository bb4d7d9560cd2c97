package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robodash/robodash/pkg/store"
)

// historyFixture builds runs and per-run results so that the named test
// sees the given status sequence in chronological order.
func historyFixture(
	statuses map[string][]string,
) ([]store.RunRecord, map[uint][]store.TestResult) {
	maxLen := 0
	for _, seq := range statuses {
		if len(seq) > maxLen {
			maxLen = len(seq)
		}
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	runs := make([]store.RunRecord, 0, maxLen)
	resultsByRun := make(map[uint][]store.TestResult, maxLen)

	for i := 0; i < maxLen; i++ {
		run := store.RunRecord{
			ID:         uint(i + 1),
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + 10*time.Minute),
			Status:     store.RunStatusPass,
		}
		runs = append(runs, run)

		for name, seq := range statuses {
			if i >= len(seq) {
				continue
			}

			resultsByRun[run.ID] = append(resultsByRun[run.ID], store.TestResult{
				RunID:     run.ID,
				TestName:  name,
				SuiteName: "suite",
				Status:    seq[i],
			})
		}
	}

	return runs, resultsByRun
}

func TestDetectFlaky_FlipCounting(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []string
		wantFlips int
		wantFlaky bool
	}{
		{
			name:      "all pass is not flaky",
			statuses:  []string{"PASS", "PASS", "PASS"},
			wantFlips: 0,
			wantFlaky: false,
		},
		{
			name:      "all fail is not flaky",
			statuses:  []string{"FAIL", "FAIL"},
			wantFlips: 0,
			wantFlaky: false,
		},
		{
			name:      "pass fail pass flips twice",
			statuses:  []string{"PASS", "FAIL", "PASS"},
			wantFlips: 2,
			wantFlaky: true,
		},
		{
			name:      "fail fail pass fail flips twice",
			statuses:  []string{"FAIL", "FAIL", "PASS", "FAIL"},
			wantFlips: 2,
			wantFlaky: true,
		},
		{
			name:      "single flip qualifies",
			statuses:  []string{"PASS", "FAIL"},
			wantFlips: 1,
			wantFlaky: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, resultsByRun := historyFixture(
				map[string][]string{"Test Under Watch": tt.statuses},
			)

			entries := DetectFlaky(30, nil, runs, resultsByRun)

			if !tt.wantFlaky {
				assert.Empty(t, entries)

				return
			}

			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, "Test Under Watch", entry.TestName)
			assert.Equal(t, tt.wantFlips, entry.FlipCount)
			assert.Equal(t, len(tt.statuses), entry.TotalRuns)
			assert.Equal(t,
				tt.statuses[len(tt.statuses)-1], entry.LastStatus)
		})
	}
}

func TestDetectFlaky_CountsAndRate(t *testing.T) {
	runs, resultsByRun := historyFixture(map[string][]string{
		"Checkout": {"PASS", "FAIL", "PASS", "FAIL"},
	})

	entries := DetectFlaky(30, nil, runs, resultsByRun)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, 4, entry.TotalRuns)
	assert.Equal(t, 2, entry.PassCount)
	assert.Equal(t, 2, entry.FailCount)
	assert.Equal(t, 3, entry.FlipCount)
	assert.InDelta(t, 50.0, entry.FlakyRate, 0.001)
	assert.Equal(t, "FAIL", entry.LastStatus)
}

func TestDetectFlaky_Ordering(t *testing.T) {
	runs, resultsByRun := historyFixture(map[string][]string{
		"Very Unstable": {"PASS", "FAIL", "PASS", "FAIL"}, // 3 flips, 50%
		"Mildly Flaky":  {"PASS", "PASS", "FAIL", "PASS"}, // 2 flips, 75%
		"Mostly Broken": {"FAIL", "FAIL", "PASS", "FAIL"}, // 2 flips, 25%
		"Rock Solid":    {"PASS", "PASS", "PASS", "PASS"}, // excluded
	})

	entries := DetectFlaky(30, nil, runs, resultsByRun)
	require.Len(t, entries, 3)

	// Flip count descending, ties broken by lowest pass rate first.
	assert.Equal(t, "Very Unstable", entries[0].TestName)
	assert.Equal(t, "Mostly Broken", entries[1].TestName)
	assert.Equal(t, "Mildly Flaky", entries[2].TestName)
}

func TestDetectFlaky_EmptyWindow(t *testing.T) {
	entries := DetectFlaky(7, nil, nil, nil)
	assert.Empty(t, entries)
}
