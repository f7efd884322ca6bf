package testkube

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

var mockWorkflows = []struct {
	name  string
	suite string
}{
	{name: "frontend-e2e", suite: `e2e\Checkout`},
	{name: "backend-integration", suite: "api/Orders"},
	{name: "auth-smoke", suite: "Login"},
}

var mockFailures = []string{
	"Timeout 30000ms exceeded waiting for selector #pay",
	"AssertionError: expected 200 to equal 500",
	"GET /api/orders/42 returned 404 Not Found",
	"permission denied for relation orders",
}

// MockClient serves generated executions, each with one Allure result file
// artifact. Used for local development without a cluster.
type MockClient struct {
	executions []Execution
	results    map[string][]byte
}

var _ Client = (*MockClient)(nil)

// NewMockClient generates count executions, one per hour back from now.
func NewMockClient(now time.Time, count int) *MockClient {
	c := &MockClient{results: map[string][]byte{}}
	c.generateMockData(now, count)
	return c
}

func (c *MockClient) generateMockData(now time.Time, count int) {
	for i := 0; i < count; i++ {
		wf := mockWorkflows[i%len(mockWorkflows)]
		status := "passed"
		if i%7 == 0 {
			status = "failed"
		}

		start := now.Add(time.Duration(-i) * time.Hour)
		exec := Execution{
			ID:           fmt.Sprintf("exec-%d", i),
			Name:         fmt.Sprintf("%s-%d", wf.name, i),
			WorkflowName: wf.name,
			Status:       status,
			StartTime:    start,
			EndTime:      start.Add(2 * time.Minute),
			Duration:     2 * time.Minute,
		}
		c.executions = append(c.executions, exec)

		result := map[string]any{
			"uuid":      fmt.Sprintf("%s-result", exec.ID),
			"historyId": wf.name,
			"name":      exec.Name,
			"fullName":  fmt.Sprintf("%s#%s", wf.name, exec.Name),
			"status":    status,
			"start":     start.UnixMilli(),
			"stop":      exec.EndTime.UnixMilli(),
			"labels": []map[string]string{
				{"name": "suite", "value": wf.suite},
			},
		}
		if status == "failed" {
			result["statusDetails"] = map[string]string{
				"message": mockFailures[(i/7)%len(mockFailures)],
				"trace":   fmt.Sprintf("at %s (spec.ts:%d)", wf.name, 10+i),
			}
		}
		data, _ := json.Marshal(result)
		c.results[exec.ID] = data
	}
}

func (c *MockClient) GetExecutions(ctx context.Context, opts ListOptions) ([]Execution, error) {
	var result []Execution
	for _, e := range c.executions {
		if opts.Workflow != "" && e.WorkflowName != opts.Workflow {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		result = append(result, e)
	}

	if opts.PageSize <= 0 {
		return result, nil
	}

	// Pagination (naive)
	start := (opts.Page - 1) * opts.PageSize
	if start < 0 {
		start = 0
	}
	if start >= len(result) {
		return []Execution{}, nil
	}
	end := start + opts.PageSize
	if end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (c *MockClient) GetArtifacts(ctx context.Context, executionID string) ([]Artifact, error) {
	data, ok := c.results[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	name := executionID + "-result.json"
	return []Artifact{
		{Name: "playwright-report.zip", Size: 1024 * 1024, Path: "playwright-report.zip"},
		{Name: name, Size: int64(len(data)), Path: name},
	}, nil
}

func (c *MockClient) DownloadArtifact(ctx context.Context, executionID, path string) ([]byte, error) {
	if path == executionID+"-result.json" {
		if data, ok := c.results[executionID]; ok {
			return data, nil
		}
	}
	return nil, fmt.Errorf("artifact %s/%s: %w", executionID, path, ErrNotFound)
}
