package dashboard

import (
	"sort"
	"time"

	"github.com/testkube/quality-dashboard/internal/aggregate"
	"github.com/testkube/quality-dashboard/internal/records"
)

const (
	maxHistoryRuns = 100
	recentTrendLen = 10
)

// TestHistory summarises the runs of one test across reports, matched by
// the report tool's history id.
type TestHistory struct {
	HistoryID     string           `json:"history_id"`
	TestName      string           `json:"test_name"`
	TotalRuns     int              `json:"total_runs"`
	PassedRuns    int              `json:"passed_runs"`
	FailedRuns    int              `json:"failed_runs"`
	PassRate      int              `json:"pass_rate"`
	AvgDurationMs int64            `json:"avg_duration_ms"`
	RecentTrend   []records.Status `json:"recent_trend"`
	LastRun       *int64           `json:"last_run,omitempty"`
}

// TestMetrics computes the history of the test with historyID over its most
// recent runs, newest first. Runs without a start time sort last. It
// reports false when no record carries the id.
func TestMetrics(recs []records.TestRecord, historyID string) (TestHistory, bool) {
	var runs []records.TestRecord
	for _, r := range recs {
		if historyID != "" && r.HistoryID == historyID {
			runs = append(runs, r)
		}
	}
	if len(runs) == 0 {
		return TestHistory{}, false
	}

	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i].Start, runs[j].Start
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})
	if len(runs) > maxHistoryRuns {
		runs = runs[:maxHistoryRuns]
	}

	h := TestHistory{
		HistoryID:   historyID,
		TestName:    runs[0].Name,
		TotalRuns:   len(runs),
		RecentTrend: make([]records.Status, 0, recentTrendLen),
		LastRun:     runs[0].Start,
	}
	var durationMs, timed int64
	for i, r := range runs {
		switch {
		case r.Status == records.StatusPassed:
			h.PassedRuns++
		case r.Status.IsFailing():
			h.FailedRuns++
		}
		if d, ok := r.Duration(); ok {
			durationMs += d.Milliseconds()
			timed++
		}
		if i < recentTrendLen {
			h.RecentTrend = append(h.RecentTrend, r.Status)
		}
	}
	h.PassRate = aggregate.PassRate(h.PassedRuns, h.TotalRuns)
	if timed > 0 {
		h.AvgDurationMs = durationMs / timed
	}
	return h, true
}

// SuiteReport is the health and daily trend of a single suite.
type SuiteReport struct {
	Name       string                  `json:"name"`
	Stats      aggregate.OverallHealth `json:"stats"`
	Trend      []aggregate.DayBucket   `json:"trend"`
	WindowDays int                     `json:"window_days"`
}

// SuiteStats reports on the records of one suite. name matches either the
// raw suite label or its display name. It reports false when no record
// belongs to the suite.
func SuiteStats(recs []records.TestRecord, name string, windowDays int, reference time.Time) (SuiteReport, bool) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if reference.IsZero() {
		reference = time.Now()
	}

	var suite []records.TestRecord
	for _, r := range recs {
		raw := aggregate.SuiteName(r)
		if raw == name || aggregate.SuiteDisplayName(raw) == name {
			suite = append(suite, r)
		}
	}
	if len(suite) == 0 {
		return SuiteReport{}, false
	}

	return SuiteReport{
		Name:       aggregate.SuiteDisplayName(aggregate.SuiteName(suite[0])),
		Stats:      aggregate.Aggregate(suite).Health,
		Trend:      aggregate.BuildTrend(aggregate.GroupByDay(suite, reference.Location()), windowDays, reference),
		WindowDays: windowDays,
	}, true
}
