package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/robodash/robodash/pkg/store"
)

// normalizationRules rewrite the volatile parts of failure messages so
// that messages differing only in values fall into the same cluster.
// Rules apply in order; quoted strings before variables before numbers.
var normalizationRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`'[^']*'`), "'<str>'"},
	{regexp.MustCompile(`"[^"]*"`), `"<str>"`},
	{regexp.MustCompile(`\$\{[^}]*\}`), "<var>"},
	{regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`), "<num>"},
	{regexp.MustCompile(`\b\d+(\.\d+)?\b`), "<num>"},
}

// NormalizeError collapses message-specific values into placeholders.
func NormalizeError(message string) string {
	normalized := strings.TrimSpace(message)
	for _, rule := range normalizationRules {
		normalized = rule.re.ReplaceAllString(normalized, rule.repl)
	}

	return normalized
}

// ErrorCluster is one group of equivalent failure messages.
type ErrorCluster struct {
	Pattern     string   `json:"pattern"`
	Count       int      `json:"count"`
	SampleTests []string `json:"sample_tests"`
}

// ErrorPatternsResult is the finalized error_patterns KPI.
type ErrorPatternsResult struct {
	TotalFailures int            `json:"total_failures"`
	Clusters      []ErrorCluster `json:"clusters"`
}

type errorCluster struct {
	count   int
	samples map[string]struct{}
}

// errorPatterns clusters failing test messages by normalized pattern.
// Sample test names are kept as a set and emitted sorted, so the fold
// order does not leak into the result.
type errorPatterns struct {
	sampleLimit   int
	totalFailures int
	clusters      map[string]*errorCluster
}

func newErrorPatterns(sampleLimit int) *errorPatterns {
	return &errorPatterns{
		sampleLimit: sampleLimit,
		clusters:    make(map[string]*errorCluster, 64),
	}
}

func (a *errorPatterns) ID() string { return KPIErrorPatterns }

func (a *errorPatterns) Fold(report *Report) {
	for i := range report.Results {
		r := &report.Results[i]
		if r.Status != store.TestStatusFail || r.ErrorMessage == "" {
			continue
		}

		pattern := NormalizeError(r.ErrorMessage)

		c, ok := a.clusters[pattern]
		if !ok {
			c = &errorCluster{samples: make(map[string]struct{})}
			a.clusters[pattern] = c
		}

		c.count++
		c.samples[r.TestName] = struct{}{}
		a.totalFailures++
	}
}

func (a *errorPatterns) Finalize() any {
	result := ErrorPatternsResult{
		TotalFailures: a.totalFailures,
		Clusters:      []ErrorCluster{},
	}

	patterns := make([]string, 0, len(a.clusters))
	for pattern := range a.clusters {
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if a.clusters[patterns[i]].count != a.clusters[patterns[j]].count {
			return a.clusters[patterns[i]].count > a.clusters[patterns[j]].count
		}

		return patterns[i] < patterns[j]
	})

	for _, pattern := range patterns {
		c := a.clusters[pattern]

		samples := make([]string, 0, len(c.samples))
		for name := range c.samples {
			samples = append(samples, name)
		}

		sort.Strings(samples)
		if len(samples) > a.sampleLimit {
			samples = samples[:a.sampleLimit]
		}

		result.Clusters = append(result.Clusters, ErrorCluster{
			Pattern:     pattern,
			Count:       c.count,
			SampleTests: samples,
		})
	}

	return result
}
