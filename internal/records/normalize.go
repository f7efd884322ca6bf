package records

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Raw is a record as supplied by a record source, in no particular shape.
type Raw map[string]any

// identifierKeys says which raw keys hold which identifier. The same key
// means different things in different sources: "uuid" is the storage id in
// API payloads but the report id in Allure result files.
type identifierKeys struct {
	storage []string
	report  []string
}

var (
	apiKeys    = identifierKeys{storage: []string{"id", "uuid"}, report: []string{"reportId", "allureUuid"}}
	allureKeys = identifierKeys{storage: []string{"id"}, report: []string{"uuid", "reportId", "allureUuid"}}
)

// Normalize converts a raw API-shaped record into a TestRecord. It never
// fails: missing or malformed fields get their defaults.
func Normalize(raw Raw) TestRecord {
	return normalize(raw, apiKeys)
}

// NormalizeAllureResult converts the contents of an Allure *-result.json
// file, where "uuid" is the identifier assigned by the report tool.
func NormalizeAllureResult(raw Raw) TestRecord {
	return normalize(raw, allureKeys)
}

// NormalizeAll normalizes every record of a batch, keeping order.
func NormalizeAll(raws []Raw) []TestRecord {
	out := make([]TestRecord, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

func normalize(raw Raw, keys identifierKeys) TestRecord {
	rec := TestRecord{
		ID:          firstString(raw, keys.storage...),
		ReportID:    firstString(raw, keys.report...),
		Name:        firstString(raw, "name"),
		FullName:    firstString(raw, "fullName", "full_name"),
		Description: firstString(raw, "description"),
		HistoryID:   firstString(raw, "historyId", "history_id"),
		Status:      parseStatus(raw["status"]),
		Labels:      parseLabels(raw["labels"]),
		Parameters:  parseList(raw["parameters"]),
		Attachments: parseList(raw["attachments"]),
		Steps:       parseList(raw["steps"]),
	}

	start, stop := timestamps(raw)
	if start != nil && stop != nil && *stop < *start {
		// an inverted interval has no meaningful duration
		stop = nil
	}
	rec.Start, rec.Stop = start, stop

	if details, ok := raw["statusDetails"].(map[string]any); ok {
		sd := StatusDetails{
			Message: firstString(details, "message"),
			Trace:   firstString(details, "trace"),
		}
		if sd.Message != "" || sd.Trace != "" {
			rec.StatusDetails = &sd
		}
	}
	return rec
}

func parseStatus(v any) Status {
	s, _ := v.(string)
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPassed, StatusFailed, StatusBroken, StatusSkipped:
		return st
	default:
		return StatusUnknown
	}
}

// timestamps reads start/stop either from the top level or from a nested
// "time" object. Non-positive values are treated as absent.
func timestamps(raw Raw) (*int64, *int64) {
	start, stop := epochMillis(raw["start"]), epochMillis(raw["stop"])
	if nested, ok := raw["time"].(map[string]any); ok {
		if start == nil {
			start = epochMillis(nested["start"])
		}
		if stop == nil {
			stop = epochMillis(nested["stop"])
		}
	}
	return start, stop
}

func epochMillis(v any) *int64 {
	var ms int64
	switch n := v.(type) {
	case float64:
		// Converting an out-of-range float is implementation-defined.
		if math.IsNaN(n) || n < 1 || n >= math.MaxInt64 {
			return nil
		}
		ms = int64(n)
	case int64:
		ms = n
	case int:
		ms = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil
		}
		ms = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil
		}
		ms = i
	default:
		return nil
	}
	if ms <= 0 {
		return nil
	}
	return &ms
}

func parseLabels(v any) []Label {
	labels := []Label{}
	items, ok := v.([]any)
	if !ok {
		return labels
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := firstString(m, "name")
		if name == "" {
			continue
		}
		labels = append(labels, Label{Name: name, Value: firstString(m, "value")})
	}
	return labels
}

func parseList(v any) []any {
	items, ok := v.([]any)
	if !ok {
		return []any{}
	}
	return items
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
