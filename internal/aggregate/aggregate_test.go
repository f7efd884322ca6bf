package aggregate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testkube/quality-dashboard/internal/records"
)

func rec(status records.Status, suite string) records.TestRecord {
	r := records.TestRecord{Name: string(status), Status: status}
	if suite != "" {
		r.Labels = []records.Label{{Name: "suite", Value: suite}}
	}
	return r
}

func TestAggregate_LoginScenario(t *testing.T) {
	var recs []records.TestRecord
	for i := 0; i < 7; i++ {
		recs = append(recs, rec(records.StatusPassed, "Login"))
	}
	for i := 0; i < 3; i++ {
		recs = append(recs, rec(records.StatusFailed, "Login"))
	}

	got := Aggregate(recs)

	assert.Equal(t, 10, got.Health.TotalTests)
	assert.Equal(t, 7, got.Health.Passed)
	assert.Equal(t, 3, got.Health.Failed)
	assert.Equal(t, 70, got.Health.PassRate)
	require.Len(t, got.Suites, 1)
	assert.Equal(t, Suite{Name: "Login", Total: 10, Passed: 7, PassRate: 70, Trend: TrendUp}, got.Suites[0])
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil)
	assert.Equal(t, OverallHealth{}, got.Health)
	assert.NotNil(t, got.Suites)
	assert.Empty(t, got.Suites)
}

func TestAggregate_CountsPartitionTotal(t *testing.T) {
	recs := []records.TestRecord{
		rec(records.StatusPassed, "A"),
		rec(records.StatusFailed, "A"),
		rec(records.StatusBroken, "B"),
		rec(records.StatusSkipped, "B"),
		rec(records.StatusUnknown, ""),
		rec(records.StatusPassed, ""),
	}
	h := Aggregate(recs).Health

	assert.Equal(t, h.TotalTests, h.Passed+h.Failed+h.Skipped+h.Unknown)
	assert.Equal(t, 2, h.Failed, "broken counts as failing")
	assert.Equal(t, 1, h.Unknown)
	assert.Equal(t, 33, h.PassRate)
}

func TestAggregate_SuiteOrderAndDefaults(t *testing.T) {
	recs := []records.TestRecord{
		rec(records.StatusPassed, `tests\e2e\Checkout`),
		rec(records.StatusFailed, ""),
		rec(records.StatusPassed, "Search"),
		rec(records.StatusFailed, `tests\e2e\Checkout`),
	}
	suites := Aggregate(recs).Suites

	require.Len(t, suites, 3)
	assert.Equal(t, "Checkout", suites[0].Name)
	assert.Equal(t, 50, suites[0].PassRate)
	assert.Equal(t, TrendDown, suites[0].Trend, "exactly half is down")
	assert.Equal(t, UnknownSuite, suites[1].Name)
	assert.Equal(t, "Search", suites[2].Name)
	assert.Equal(t, TrendUp, suites[2].Trend)
}

func TestAggregate_AverageDurationIgnoresUndefined(t *testing.T) {
	start, stop := int64(1000), int64(4000)
	timed := records.TestRecord{Status: records.StatusPassed, Start: &start, Stop: &stop}
	untimed := records.TestRecord{Status: records.StatusPassed, Start: &start}

	h := Aggregate([]records.TestRecord{timed, untimed}).Health
	assert.Equal(t, int64(3000), h.AvgDurationMs)
}

func TestAggregate_Idempotent(t *testing.T) {
	recs := []records.TestRecord{
		rec(records.StatusPassed, "A"),
		rec(records.StatusFailed, "B"),
	}
	assert.Equal(t, Aggregate(recs), Aggregate(recs))
}

func TestPassRate(t *testing.T) {
	tests := []struct {
		passed, total, want int
	}{
		{0, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},  // 12.5 rounds half-up
		{1, 200, 1}, // 0.5 rounds half-up
		{7, 10, 70},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of %d", tt.passed, tt.total), func(t *testing.T) {
			got := PassRate(tt.passed, tt.total)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestSuiteDisplayName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a\b\Checkout`, "Checkout"},
		{"Checkout", "Checkout"},
		{"tests/e2e/Cart", "Cart"},
		{"/suites/Cart", "Cart"},
		{"./Cart", "Cart"},
		{"Auth/Login", "Auth/Login"},
		{`a\Auth/Login`, "Auth/Login"},
		{`a\b\`, "b"},
		{`\\`, `\\`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SuiteDisplayName(tt.in), "input %q", tt.in)
	}
}
