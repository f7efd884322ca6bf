package records

import (
	"time"
)

// Status is the outcome of a single test execution.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusBroken  Status = "broken"
	StatusSkipped Status = "skipped"
	StatusUnknown Status = "unknown" // missing or unrecognised status
)

// IsFailing reports whether the status counts as a failure in aggregates.
// Failed and broken stay distinct for display.
func (s Status) IsFailing() bool {
	return s == StatusFailed || s == StatusBroken
}

type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type StatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// TestRecord is one normalized test execution.
//
// ID is the identifier assigned by a storage layer and ReportID the one
// assigned by the tool that produced the report. Either may be empty and
// neither is ever derived from the other.
type TestRecord struct {
	ID            string         `json:"id,omitempty"`
	ReportID      string         `json:"reportId,omitempty"`
	Name          string         `json:"name"`
	FullName      string         `json:"fullName"`
	Description   string         `json:"description,omitempty"`
	HistoryID     string         `json:"historyId,omitempty"` // stable across runs of the same test
	Status        Status         `json:"status"`
	Start         *int64         `json:"start,omitempty"` // epoch ms
	Stop          *int64         `json:"stop,omitempty"`  // epoch ms
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
	Labels        []Label        `json:"labels"`
	Parameters    []any          `json:"parameters"`
	Attachments   []any          `json:"attachments"`
	Steps         []any          `json:"steps"`
}

// Label returns the value of the first label called name.
func (r TestRecord) Label(name string) (string, bool) {
	for _, l := range r.Labels {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// StartedAt returns the start time when it is known.
func (r TestRecord) StartedAt() (time.Time, bool) {
	if r.Start == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*r.Start), true
}

// Duration is defined only when both timestamps are present and stop is
// not before start.
func (r TestRecord) Duration() (time.Duration, bool) {
	if r.Start == nil || r.Stop == nil || *r.Stop < *r.Start {
		return 0, false
	}
	return time.Duration(*r.Stop-*r.Start) * time.Millisecond, true
}

func (r TestRecord) Message() string {
	if r.StatusDetails == nil {
		return ""
	}
	return r.StatusDetails.Message
}

func (r TestRecord) Trace() string {
	if r.StatusDetails == nil {
		return ""
	}
	return r.StatusDetails.Trace
}

// WithID returns a copy of r carrying the given storage identifier.
func (r TestRecord) WithID(id string) TestRecord {
	r.ID = id
	return r
}
