// Package dashboard composes aggregates, trends and failed-test summaries
// into a single response for the presentation layer.
package dashboard

import (
	"fmt"
	"time"

	"github.com/testkube/quality-dashboard/internal/aggregate"
	"github.com/testkube/quality-dashboard/internal/records"
)

const (
	DefaultWindowDays = 30
	MaxFailedTests    = 10
	MaxFailedNames    = 5
)

// Payload is everything the dashboard page renders.
type Payload struct {
	OverallHealth   aggregate.OverallHealth `json:"overall_health"`
	PassRate        int                     `json:"pass_rate"`
	Projects        []aggregate.Suite       `json:"projects"`
	RecentTrends    []aggregate.DayBucket   `json:"recent_trends"`
	FailedTestNames []string                `json:"failed_test_names"`
	FailedTests     []FailedTest            `json:"failed_tests_data"`
	RecentRuns      []RecentRun             `json:"recent_runs"`
	WindowDays      int                     `json:"window_days"`
	ReferenceDate   string                  `json:"reference_date"`
}

// FailedTest is a failing record prepared for the list and detail views.
// ID and ReportID are carried separately and either may be empty.
type FailedTest struct {
	ID          string          `json:"id"`
	ReportID    string          `json:"reportId"`
	Name        string          `json:"name"`
	FullName    string          `json:"fullName"`
	Status      records.Status  `json:"status"`
	Suite       string          `json:"suite"`
	Message     string          `json:"message"`
	Trace       string          `json:"trace"`
	Start       *int64          `json:"start,omitempty"`
	Stop        *int64          `json:"stop,omitempty"`
	DurationMs  *int64          `json:"durationMs,omitempty"`
	Labels      []records.Label `json:"labels"`
	Parameters  []any           `json:"parameters"`
	Attachments []any           `json:"attachments"`
}

// RecentRun summarises one day of the trend that had results.
type RecentRun struct {
	Suite  string `json:"suite"`
	Date   string `json:"date"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Status string `json:"status"`
}

// Compose builds the payload. Calendar days are taken in the location of
// reference; a zero reference means now. Classification is not run here.
func Compose(recs []records.TestRecord, windowDays int, reference time.Time) Payload {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if reference.IsZero() {
		reference = time.Now()
	}

	agg := aggregate.Aggregate(recs)
	trend := aggregate.BuildTrend(aggregate.GroupByDay(recs, reference.Location()), windowDays, reference)

	failed := FailedTests(recs, MaxFailedTests)
	names := make([]string, 0, MaxFailedNames)
	for i := 0; i < len(failed) && i < MaxFailedNames; i++ {
		names = append(names, failed[i].Name)
	}

	return Payload{
		OverallHealth:   agg.Health,
		PassRate:        agg.Health.PassRate,
		Projects:        agg.Suites,
		RecentTrends:    trend,
		FailedTestNames: names,
		FailedTests:     failed,
		RecentRuns:      recentRuns(trend),
		WindowDays:      windowDays,
		ReferenceDate:   reference.Format(time.DateOnly),
	}
}

// FailedTests returns up to limit failing records in input order.
func FailedTests(recs []records.TestRecord, limit int) []FailedTest {
	out := make([]FailedTest, 0, limit)
	for _, r := range recs {
		if len(out) >= limit {
			break
		}
		if !r.Status.IsFailing() {
			continue
		}
		out = append(out, newFailedTest(r))
	}
	return out
}

func newFailedTest(r records.TestRecord) FailedTest {
	ft := FailedTest{
		ID:          r.ID,
		ReportID:    r.ReportID,
		Name:        r.Name,
		FullName:    r.FullName,
		Status:      r.Status,
		Suite:       aggregate.SuiteDisplayName(aggregate.SuiteName(r)),
		Message:     r.Message(),
		Trace:       r.Trace(),
		Start:       r.Start,
		Stop:        r.Stop,
		Labels:      r.Labels,
		Parameters:  r.Parameters,
		Attachments: r.Attachments,
	}
	if d, ok := r.Duration(); ok {
		ms := d.Milliseconds()
		ft.DurationMs = &ms
	}
	return ft
}

// recentRuns lists the days of the trend that had results, newest first.
func recentRuns(trend []aggregate.DayBucket) []RecentRun {
	runs := []RecentRun{}
	for i := len(trend) - 1; i >= 0; i-- {
		day := trend[i]
		if day.Passed+day.Failed == 0 {
			continue
		}
		status := "passed"
		if day.Failed > 0 {
			status = "failed"
		}
		runs = append(runs, RecentRun{
			Suite:  fmt.Sprintf("Test Run %s", day.Date),
			Date:   day.Date,
			Passed: day.Passed,
			Failed: day.Failed,
			Status: status,
		})
	}
	return runs
}
