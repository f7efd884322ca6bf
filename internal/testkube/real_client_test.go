package testkube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if h, ok := routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRealClient_GetExecutions(t *testing.T) {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/test-workflow-executions": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "passed", r.URL.Query().Get("status"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{
					"id":       "123",
					"name":     "exec-1",
					"workflow": map[string]string{"name": "workflow-1"},
					"result": map[string]any{
						"status":     "passed",
						"startedAt":  started,
						"finishedAt": started.Add(time.Minute),
					},
				}},
			})
		},
	})

	client, err := NewRealClient(context.Background(), Config{BaseURL: ts.URL, Token: "secret"})
	require.NoError(t, err)
	assert.Equal(t, DefaultNamespace, client.Namespace())

	executions, err := client.GetExecutions(context.Background(), ListOptions{Status: "passed"})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "123", executions[0].ID)
	assert.Equal(t, "workflow-1", executions[0].WorkflowName)
	assert.Equal(t, time.Minute, executions[0].Duration)
	assert.True(t, executions[0].Finished())
}

func TestRealClient_WorkflowExecutions(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/test-workflows/frontend-e2e/executions": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "20", r.URL.Query().Get("pageSize"))
			_, _ = w.Write([]byte(`{"results": [{"id": "a", "result": {"status": "running"}}]}`))
		},
	})

	client, err := NewRealClient(context.Background(), Config{BaseURL: ts.URL})
	require.NoError(t, err)

	executions, err := client.GetExecutions(context.Background(), ListOptions{Workflow: "frontend-e2e", PageSize: 20})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.False(t, executions[0].Finished())
	assert.Zero(t, executions[0].Duration)
}

func TestRealClient_Artifacts(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/test-workflow-executions/123/artifacts": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"name": "allure-results.zip", "size": 10}, {"name": "abc-result.json", "size": 2}]`))
		},
		"/v1/test-workflow-executions/123/artifacts/abc-result.json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
	})

	client, err := NewRealClient(context.Background(), Config{BaseURL: ts.URL})
	require.NoError(t, err)

	artifacts, err := client.GetArtifacts(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.True(t, artifacts[0].IsResultArchive())
	assert.True(t, artifacts[1].IsResultFile())

	data, err := client.DownloadArtifact(context.Background(), "123", "abc-result.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = client.DownloadArtifact(context.Background(), "123", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRealClient_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/test-workflow-executions": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})

	client, err := NewRealClient(context.Background(), Config{BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = client.GetExecutions(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}

func TestRealClient_Unhealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := NewRealClient(context.Background(), Config{BaseURL: ts.URL})
	assert.Error(t, err)
}

func TestArtifactKinds(t *testing.T) {
	tests := []struct {
		path    string
		archive bool
		result  bool
	}{
		{"allure-results.zip", true, false},
		{"reports/Allure-Results-e2e.zip", true, false},
		{"playwright-report.zip", false, false},
		{"allure-results/0a1b-result.json", false, true},
		{"0a1b-container.json", false, false},
	}

	for _, tt := range tests {
		a := Artifact{Path: tt.path}
		assert.Equal(t, tt.archive, a.IsResultArchive(), tt.path)
		assert.Equal(t, tt.result, a.IsResultFile(), tt.path)
	}
}

func TestMockClient(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := NewMockClient(now, 10)
	ctx := context.Background()

	all, err := c.GetExecutions(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 10)

	failed, err := c.GetExecutions(ctx, ListOptions{Status: "failed"})
	require.NoError(t, err)
	assert.Len(t, failed, 2, "exec-0 and exec-7")

	page, err := c.GetExecutions(ctx, ListOptions{Page: 2, PageSize: 4})
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, "exec-4", page[0].ID)

	artifacts, err := c.GetArtifacts(ctx, "exec-0")
	require.NoError(t, err)
	var resultPath string
	for _, a := range artifacts {
		if a.IsResultFile() {
			resultPath = a.Path
		}
	}
	require.NotEmpty(t, resultPath)

	data, err := c.DownloadArtifact(ctx, "exec-0", resultPath)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "failed", result["status"])
	assert.Contains(t, result, "statusDetails")
	assert.NotEmpty(t, result["historyId"])

	_, err = c.GetArtifacts(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
