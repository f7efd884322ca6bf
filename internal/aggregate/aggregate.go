package aggregate

import (
	"strings"

	"github.com/testkube/quality-dashboard/internal/records"
)

const (
	UnknownSuite = "Unknown Suite"
	suiteLabel   = "suite"

	TrendUp   = "up"
	TrendDown = "down"
)

// OverallHealth holds the headline counts over a record set.
type OverallHealth struct {
	PassRate      int   `json:"pass_rate"`
	TotalTests    int   `json:"total_tests"`
	Passed        int   `json:"passed"`
	Failed        int   `json:"failed"`
	Skipped       int   `json:"skipped"`
	Unknown       int   `json:"unknown"`
	AvgDurationMs int64 `json:"avg_duration_ms"`
}

// Suite is the per-suite ("project") view.
type Suite struct {
	Name     string `json:"name"`
	Total    int    `json:"total_tests"`
	Passed   int    `json:"passed"`
	PassRate int    `json:"pass_rate"`
	Trend    string `json:"trend"`
}

type Result struct {
	Health OverallHealth `json:"overall_health"`
	Suites []Suite       `json:"projects"`
}

// Aggregate computes overall health and the suite list. Suites appear in
// order of first occurrence.
func Aggregate(recs []records.TestRecord) Result {
	var (
		health     OverallHealth
		durationMs int64
		timed      int64
	)
	health.TotalTests = len(recs)

	type tally struct{ total, passed int }
	index := map[string]int{}
	var order []string
	var tallies []tally

	for _, r := range recs {
		switch {
		case r.Status == records.StatusPassed:
			health.Passed++
		case r.Status.IsFailing():
			health.Failed++
		case r.Status == records.StatusSkipped:
			health.Skipped++
		default:
			health.Unknown++
		}
		if d, ok := r.Duration(); ok {
			durationMs += d.Milliseconds()
			timed++
		}

		key := SuiteName(r)
		i, seen := index[key]
		if !seen {
			i = len(tallies)
			index[key] = i
			order = append(order, key)
			tallies = append(tallies, tally{})
		}
		tallies[i].total++
		if r.Status == records.StatusPassed {
			tallies[i].passed++
		}
	}

	health.PassRate = PassRate(health.Passed, health.TotalTests)
	if timed > 0 {
		health.AvgDurationMs = durationMs / timed
	}

	suites := make([]Suite, 0, len(order))
	for i, key := range order {
		t := tallies[i]
		suites = append(suites, Suite{
			Name:     SuiteDisplayName(key),
			Total:    t.total,
			Passed:   t.passed,
			PassRate: PassRate(t.passed, t.total),
			Trend:    suiteTrend(t.passed, t.total),
		})
	}
	return Result{Health: health, Suites: suites}
}

// PassRate returns round(passed/total*100) rounded half-up, or 0 when total
// is 0.
func PassRate(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*passed + total) / (2 * total)
}

// suiteTrend is "up" only on a strict majority of passes.
func suiteTrend(passed, total int) string {
	if 2*passed > total {
		return TrendUp
	}
	return TrendDown
}

// SuiteName returns the raw suite label of a record, or UnknownSuite.
func SuiteName(r records.TestRecord) string {
	if v, ok := r.Label(suiteLabel); ok && v != "" {
		return v
	}
	return UnknownSuite
}

// SuiteDisplayName keeps only the last non-empty segment of a path-like
// suite name. A backslash always separates segments. A forward slash does
// only when the name looks like a file path, so "Auth/Login" stays whole.
func SuiteDisplayName(name string) string {
	slashIsSeparator := looksLikeSlashPath(name)
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '\\' || (r == '/' && slashIsSeparator)
	})
	if len(segments) == 0 {
		return name
	}
	return segments[len(segments)-1]
}

// looksLikeSlashPath is true for rooted or relative paths ("/a/b", "./b")
// and for names with more than one slash ("tests/e2e/Cart").
func looksLikeSlashPath(name string) bool {
	return strings.HasPrefix(name, "/") || strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") ||
		strings.Count(name, "/") > 1
}
