package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testkube/quality-dashboard/internal/database"
	"github.com/testkube/quality-dashboard/internal/records"
)

var fixedNow = time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

func ms(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}

func newTestServer(t *testing.T, recs ...records.TestRecord) (*Server, database.Database) {
	t.Helper()
	db := database.NewMockDatabase()
	if len(recs) > 0 {
		_, err := db.InsertRecords(context.Background(), recs)
		require.NoError(t, err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := NewServer(db, Options{
		WindowDays: 3,
		Logger:     logrus.NewEntry(logger),
		Now:        func() time.Time { return fixedNow },
	})
	return srv, db
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func sampleRecords() []records.TestRecord {
	day := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return []records.TestRecord{
		{ID: "p1", HistoryID: "h-login", Name: "login ok", Status: records.StatusPassed, Start: ms(day), Stop: ms(day.Add(2 * time.Second)), Labels: []records.Label{{Name: "suite", Value: `e2e\Login`}}},
		{
			ID:            "f1",
			ReportID:      "allure-f1",
			Name:          "login times out",
			Status:        records.StatusFailed,
			Start:         ms(day.Add(-24 * time.Hour)),
			Labels:        []records.Label{{Name: "suite", Value: `e2e\Login`}},
			StatusDetails: &records.StatusDetails{Message: "Request timed out after 30s"},
		},
		{ID: "old", Name: "ancient", Status: records.StatusFailed, Start: ms(day.AddDate(0, -2, 0))},
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rr.Body.String())
}

func TestDashboardAPI(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)

	rr := do(t, srv, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		PassRate     int `json:"pass_rate"`
		RecentTrends []struct {
			Date   string `json:"date"`
			Passed int    `json:"passed"`
			Failed int    `json:"failed"`
		} `json:"recent_trends"`
		FailedTestNames []string `json:"failed_test_names"`
		WindowDays      int      `json:"window_days"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, 3, body.WindowDays)
	assert.Equal(t, 50, body.PassRate, "records older than the window are not loaded")
	require.Len(t, body.RecentTrends, 3)
	assert.Equal(t, "17/10", body.RecentTrends[0].Date)
	assert.Equal(t, 1, body.RecentTrends[1].Failed)
	assert.Equal(t, 1, body.RecentTrends[2].Passed)
	assert.Equal(t, []string{"login times out"}, body.FailedTestNames)
}

func TestDashboardAPI_Window(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)

	rr := do(t, srv, http.MethodGet, "/api/v1/dashboard?window=90", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Health struct {
			TotalTests int `json:"total_tests"`
		} `json:"overall_health"`
		RecentTrends []any `json:"recent_trends"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Health.TotalTests)
	assert.Len(t, body.RecentTrends, 90)

	for _, bad := range []string{"0", "366", "abc"} {
		rr := do(t, srv, http.MethodGet, "/api/v1/dashboard?window="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestDashboardPage(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)
	rr := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Test Quality Dashboard")
	assert.Contains(t, rr.Body.String(), "login times out")
	assert.Contains(t, rr.Body.String(), `class="sparkline"`)
}

func TestIngestAndAnalyze(t *testing.T) {
	srv, db := newTestServer(t)

	payload := `[
		{"allureUuid": "a-1", "name": "checkout", "status": "failed",
		 "statusDetails": {"message": "GET /api/cart returned 404 Not Found"},
		 "time": {"start": 1760860800000, "stop": 1760860801000}},
		{"name": "search", "status": "PASSED"},
		null
	]`
	rr := do(t, srv, http.MethodPost, "/api/v1/results", payload)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Inserted, 2)
	failed := resp.Inserted[0]
	assert.NotEmpty(t, failed.ID)
	assert.Equal(t, "a-1", failed.ReportID)
	assert.Equal(t, records.StatusPassed, resp.Inserted[1].Status)

	stored, err := db.GetRecord(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkout", stored.Name)

	rr = do(t, srv, http.MethodGet, "/api/v1/results/"+failed.ID+"/analysis", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var analysis struct {
		Category   string `json:"category"`
		Confidence int    `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &analysis))
	assert.Equal(t, "Code Bug", analysis.Category)
	assert.Equal(t, 90, analysis.Confidence)

	rr = do(t, srv, http.MethodGet, "/api/v1/results/"+resp.Inserted[1].ID+"/analysis", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/v1/results/missing/analysis", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIngest_SingleObjectAndBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/v1/results", `{"name": "one", "status": "skipped"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodPost, "/api/v1/results", `{"name": `)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPost, "/api/v1/results", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetResult(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)

	rr := do(t, srv, http.MethodGet, "/api/v1/results/f1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"reportId":"allure-f1"`)

	rr = do(t, srv, http.MethodGet, "/api/v1/results/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListResults(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)
	rr := do(t, srv, http.MethodGet, "/api/v1/results", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var recs []records.TestRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	assert.Len(t, recs, 2)
}

func TestClassifyAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/v1/classify", `{"message": "Request timed out after 30s"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var result struct {
		Category           string   `json:"category"`
		Confidence         int      `json:"confidence"`
		RecommendedActions []string `json:"recommended_actions"`
		AnalysisModel      string   `json:"analysis_model"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "Infrastructure", result.Category)
	assert.Equal(t, 85, result.Confidence)
	assert.NotEmpty(t, result.RecommendedActions)
	assert.Equal(t, "rule-based-v1", result.AnalysisModel)

	rr = do(t, srv, http.MethodPost, "/api/v1/classify", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFailureAnalysisAPI(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)
	rr := do(t, srv, http.MethodGet, "/api/v1/failure-analysis?window=365", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		TotalFailures int `json:"total_failures"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalFailures)
}

func TestCharts(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)

	for _, path := range []string{"/charts/trend", "/charts/pass-rate", "/charts/suites"} {
		rr := do(t, srv, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rr.Body.String(), "echarts")
	}
}

func TestTestMetricsAPI(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)

	rr := do(t, srv, http.MethodGet, "/api/v1/tests/h-login/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		TestName      string   `json:"test_name"`
		TotalRuns     int      `json:"total_runs"`
		PassRate      int      `json:"pass_rate"`
		AvgDurationMs int64    `json:"avg_duration_ms"`
		RecentTrend   []string `json:"recent_trend"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "login ok", body.TestName)
	assert.Equal(t, 1, body.TotalRuns)
	assert.Equal(t, 100, body.PassRate)
	assert.Equal(t, int64(2000), body.AvgDurationMs)
	assert.Equal(t, []string{"passed"}, body.RecentTrend)

	rr = do(t, srv, http.MethodGet, "/api/v1/tests/unknown/metrics", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSuiteAPI(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords()...)

	for _, name := range []string{"Login", "e2e%5CLogin"} {
		rr := do(t, srv, http.MethodGet, "/api/v1/suites/"+name, "")
		require.Equal(t, http.StatusOK, rr.Code, name)
		var body struct {
			Name  string `json:"name"`
			Stats struct {
				TotalTests int `json:"total_tests"`
				PassRate   int `json:"pass_rate"`
			} `json:"stats"`
			Trend []struct {
				Date string `json:"date"`
			} `json:"trend"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "Login", body.Name)
		assert.Equal(t, 2, body.Stats.TotalTests, "records older than the window are not loaded")
		assert.Equal(t, 50, body.Stats.PassRate)
		assert.Len(t, body.Trend, 3)
	}

	rr := do(t, srv, http.MethodGet, "/api/v1/suites/Nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, srv, http.MethodGet, "/api/v1/suites/Login?window=0", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
