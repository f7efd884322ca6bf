package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/testkube/quality-dashboard/internal/records"
)

// DayBucket holds pass/fail counts for one calendar day. Day is the
// midnight of that day when it is known; buckets built from external data
// may carry only the Date key.
type DayBucket struct {
	Date   string    `json:"date"`
	Day    time.Time `json:"-"`
	Passed int       `json:"passed"`
	Failed int       `json:"failed"`
}

// DayKey formats the display key of a calendar day: day/month without zero
// padding.
func DayKey(t time.Time) string {
	return fmt.Sprintf("%d/%d", t.Day(), int(t.Month()))
}

// civilDate is a calendar day with year zero when the year is unknown.
type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{year: y, month: m, day: d}
}

// parseDayKey accepts "D/M", zero-padded "DD/MM" and ISO "YYYY-MM-DD".
// Keys without a year come back with year 0.
func parseDayKey(key string) (civilDate, bool) {
	key = strings.TrimSpace(key)
	if t, err := time.Parse(time.DateOnly, key); err == nil {
		return dateOf(t), true
	}
	day, month, ok := strings.Cut(key, "/")
	if !ok {
		return civilDate{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return civilDate{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 || d < 1 || d > daysIn(time.Month(m)) {
		return civilDate{}, false
	}
	return civilDate{month: time.Month(m), day: d}, true
}

// daysIn uses a leap year so 29/2 is always accepted.
func daysIn(m time.Month) int {
	return time.Date(2000, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// GroupByDay counts passing and failing records per calendar day of their
// start time in loc. Records without a start time are skipped. Buckets come
// back oldest first.
func GroupByDay(recs []records.TestRecord, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.UTC
	}
	byDate := map[civilDate]*DayBucket{}
	for _, r := range recs {
		started, ok := r.StartedAt()
		if !ok {
			continue
		}
		started = started.In(loc)
		key := dateOf(started)
		b, ok := byDate[key]
		if !ok {
			day := time.Date(key.year, key.month, key.day, 0, 0, 0, 0, loc)
			b = &DayBucket{Date: DayKey(day), Day: day}
			byDate[key] = b
		}
		switch {
		case r.Status == records.StatusPassed:
			b.Passed++
		case r.Status.IsFailing():
			b.Failed++
		}
	}

	out := make([]DayBucket, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// BuildTrend returns exactly windowDays buckets ending on the calendar day
// of reference, oldest first. Days without a matching bucket are
// zero-filled; buckets whose key cannot be parsed are ignored. Buckets that
// resolve to the same day are summed.
func BuildTrend(buckets []DayBucket, windowDays int, reference time.Time) []DayBucket {
	if windowDays <= 0 {
		return []DayBucket{}
	}

	full := map[civilDate]DayBucket{}
	yearless := map[civilDate]DayBucket{}
	for _, b := range buckets {
		var (
			key civilDate
			ok  bool
		)
		if !b.Day.IsZero() {
			key, ok = dateOf(b.Day), true
		} else {
			key, ok = parseDayKey(b.Date)
		}
		if !ok {
			continue
		}
		target := full
		if key.year == 0 {
			target = yearless
		}
		acc := target[key]
		acc.Passed += b.Passed
		acc.Failed += b.Failed
		target[key] = acc
	}

	y, m, d := reference.Date()
	loc := reference.Location()
	out := make([]DayBucket, 0, windowDays)
	for i := windowDays - 1; i >= 0; i-- {
		day := time.Date(y, m, d-i, 0, 0, 0, 0, loc)
		key := dateOf(day)
		entry := DayBucket{Date: DayKey(day), Day: day}
		if b, ok := full[key]; ok {
			entry.Passed, entry.Failed = b.Passed, b.Failed
		}
		if b, ok := yearless[civilDate{month: key.month, day: key.day}]; ok {
			entry.Passed += b.Passed
			entry.Failed += b.Failed
		}
		out = append(out, entry)
	}
	return out
}
