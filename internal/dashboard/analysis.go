package dashboard

import (
	"sort"

	"github.com/testkube/quality-dashboard/internal/classifier"
	"github.com/testkube/quality-dashboard/internal/records"
)

// Diagnose classifies a single failing record on demand. It reports false
// for records that did not fail.
func Diagnose(r records.TestRecord) (classifier.Result, bool) {
	if !r.Status.IsFailing() {
		return classifier.Result{}, false
	}
	return classifier.Classify(r.Message(), r.Trace()), true
}

type KindCount struct {
	Kind  classifier.ErrorKind `json:"kind"`
	Count int                  `json:"count"`
}

type TestFailures struct {
	Name     string `json:"name"`
	Failures int    `json:"failures"`
}

// FailureAnalysis breaks failing records down by error kind and by test.
type FailureAnalysis struct {
	TotalFailures   int            `json:"total_failures"`
	UniqueTests     int            `json:"unique_tests_failed"`
	ErrorCategories []KindCount    `json:"error_categories"`
	TopFailingTests []TestFailures `json:"top_failing_tests"`
}

const maxTopFailing = 10

// AnalyzeFailures counts failing records per error kind and per test name.
// Both lists are sorted by count, descending, ties by name.
func AnalyzeFailures(recs []records.TestRecord) FailureAnalysis {
	kinds := map[classifier.ErrorKind]int{}
	tests := map[string]int{}
	total := 0
	for _, r := range recs {
		if !r.Status.IsFailing() {
			continue
		}
		total++
		kinds[classifier.KindOf(r.Message())]++
		name := r.FullName
		if name == "" {
			name = r.Name
		}
		tests[name]++
	}

	categories := make([]KindCount, 0, len(kinds))
	for k, c := range kinds {
		categories = append(categories, KindCount{Kind: k, Count: c})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Kind < categories[j].Kind
	})

	top := make([]TestFailures, 0, len(tests))
	for n, c := range tests {
		top = append(top, TestFailures{Name: n, Failures: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Failures != top[j].Failures {
			return top[i].Failures > top[j].Failures
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > maxTopFailing {
		top = top[:maxTopFailing]
	}

	return FailureAnalysis{
		TotalFailures:   total,
		UniqueTests:     len(tests),
		ErrorCategories: categories,
		TopFailingTests: top,
	}
}
