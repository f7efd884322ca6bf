// Package cli renders dashboard data for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/testkube/quality-dashboard/internal/aggregate"
	"github.com/testkube/quality-dashboard/internal/classifier"
	"github.com/testkube/quality-dashboard/internal/dashboard"
)

const (
	TextOut = "text"
	JSONOut = "json"
)

// Writer prints payloads as tables or JSON.
type Writer struct {
	out    io.Writer
	format string

	red, green, yellow, bold func(...any) string
}

func NewWriter(out io.Writer, format string, useColors bool) *Writer {
	w := &Writer{out: out, format: format}
	if useColors {
		w.red = color.New(color.FgRed).SprintFunc()
		w.green = color.New(color.FgGreen).SprintFunc()
		w.yellow = color.New(color.FgYellow).SprintFunc()
		w.bold = color.New(color.Bold).SprintFunc()
	} else {
		w.red = fmt.Sprint
		w.green = fmt.Sprint
		w.yellow = fmt.Sprint
		w.bold = fmt.Sprint
	}
	return w
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// rate colours a pass rate: green from 80, yellow from 50, red below.
func (w *Writer) rate(passRate int) string {
	s := strconv.Itoa(passRate) + "%"
	switch {
	case passRate >= 80:
		return w.green(s)
	case passRate >= 50:
		return w.yellow(s)
	default:
		return w.red(s)
	}
}

func (w *Writer) trend(t string) string {
	if t == aggregate.TrendUp {
		return w.green("▲ up")
	}
	return w.red("▼ down")
}

func (w *Writer) newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w.out)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	return table
}

func renderTable(table *tablewriter.Table, rows [][]string) error {
	defer func() { _ = table.Close() }()
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// WriteSummary prints the overall health, the suites, the trend and the
// most recent failures.
func (w *Writer) WriteSummary(p dashboard.Payload) error {
	if w.format == JSONOut {
		return w.writeJSON(p)
	}

	h := p.OverallHealth
	if _, err := fmt.Fprintf(w.out, "%s %s  (%d tests: %d passed, %d failed, %d skipped, %d unknown)\n",
		w.bold("Overall pass rate:"), w.rate(h.PassRate), h.TotalTests, h.Passed, h.Failed, h.Skipped, h.Unknown); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.out, "Window: %d days ending %s\n\n", p.WindowDays, p.ReferenceDate); err != nil {
		return err
	}

	if len(p.Projects) > 0 {
		rows := make([][]string, 0, len(p.Projects))
		for _, s := range p.Projects {
			rows = append(rows, []string{s.Name, strconv.Itoa(s.Total), strconv.Itoa(s.Passed), w.rate(s.PassRate), w.trend(s.Trend)})
		}
		if err := renderTable(w.newTable("Suite", "Tests", "Passed", "Pass Rate", "Trend"), rows); err != nil {
			return err
		}
	}

	if len(p.RecentRuns) > 0 {
		rows := make([][]string, 0, len(p.RecentRuns))
		for _, r := range p.RecentRuns {
			status := w.green(r.Status)
			if r.Failed > 0 {
				status = w.red(r.Status)
			}
			rows = append(rows, []string{r.Date, strconv.Itoa(r.Passed), strconv.Itoa(r.Failed), status})
		}
		if err := renderTable(w.newTable("Day", "Passed", "Failed", "Status"), rows); err != nil {
			return err
		}
	}

	if len(p.FailedTests) > 0 {
		rows := make([][]string, 0, len(p.FailedTests))
		for _, f := range p.FailedTests {
			rows = append(rows, []string{f.Name, f.Suite, w.red(string(f.Status)), truncate(f.Message, 60)})
		}
		if err := renderTable(w.newTable("Failed Test", "Suite", "Status", "Message"), rows); err != nil {
			return err
		}
	}

	return nil
}

// WriteClassification prints one diagnosis.
func (w *Writer) WriteClassification(r classifier.Result) error {
	if w.format == JSONOut {
		return w.writeJSON(r)
	}

	if _, err := fmt.Fprintf(w.out, "%s %s (%d%% confidence)\n\n%s\n%s\n\n%s\n",
		w.bold("Category:"), w.yellow(string(r.Category)), r.Confidence,
		w.bold("Root cause:"), r.RootCause, w.bold("Recommended actions:")); err != nil {
		return err
	}
	for i, a := range r.RecommendedActions {
		if _, err := fmt.Fprintf(w.out, "  %d. %s\n", i+1, a); err != nil {
			return err
		}
	}
	return nil
}

// WriteFailureAnalysis prints the failure breakdown by error kind.
func (w *Writer) WriteFailureAnalysis(a dashboard.FailureAnalysis) error {
	if w.format == JSONOut {
		return w.writeJSON(a)
	}

	if _, err := fmt.Fprintf(w.out, "%s %d failures across %d tests\n", w.bold("Failures:"), a.TotalFailures, a.UniqueTests); err != nil {
		return err
	}
	if len(a.ErrorCategories) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(a.ErrorCategories))
	for _, k := range a.ErrorCategories {
		rows = append(rows, []string{string(k.Kind), strconv.Itoa(k.Count)})
	}
	return renderTable(w.newTable("Error Kind", "Count"), rows)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
