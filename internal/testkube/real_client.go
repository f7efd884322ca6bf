package testkube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "http://testkube-api-server:8088"
	DefaultNamespace = "testkube"
)

// maxArtifactSize bounds a single artifact download.
const maxArtifactSize = 256 << 20

type Config struct {
	BaseURL   string
	Token     string
	Namespace string
	Timeout   time.Duration
}

type RealClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
	namespace  string
}

var _ Client = (*RealClient)(nil)

// NewRealClient creates a client that connects to the actual Testkube API
// server and checks that it is healthy.
func NewRealClient(ctx context.Context, cfg Config) (*RealClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := &RealClient{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		namespace: cfg.Namespace,
		token:     cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}

	if err := client.healthCheck(ctx); err != nil {
		return nil, fmt.Errorf("testkube API health check failed: %w", err)
	}

	return client, nil
}

func (c *RealClient) Namespace() string {
	return c.namespace
}

func (c *RealClient) healthCheck(ctx context.Context) error {
	resp, err := c.get(ctx, fmt.Sprintf("%s/health", c.baseURL))
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy (status: %d)", resp.StatusCode)
	}

	return nil
}

func (c *RealClient) get(ctx context.Context, apiURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	return c.httpClient.Do(req)
}

// getOK performs a GET and maps non-200 answers to errors. The caller
// closes the body.
func (c *RealClient) getOK(ctx context.Context, apiURL string) (*http.Response, error) {
	resp, err := c.get(ctx, apiURL)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", apiURL, ErrNotFound)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *RealClient) GetExecutions(ctx context.Context, opts ListOptions) ([]Execution, error) {
	params := url.Values{}
	if opts.PageSize > 0 {
		params.Set("pageSize", fmt.Sprintf("%d", opts.PageSize))
	}
	if opts.Page > 0 {
		params.Set("page", fmt.Sprintf("%d", opts.Page))
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}

	apiURL := fmt.Sprintf("%s/v1/test-workflow-executions?%s", c.baseURL, params.Encode())
	if opts.Workflow != "" {
		apiURL = fmt.Sprintf("%s/v1/test-workflows/%s/executions?%s", c.baseURL, url.PathEscape(opts.Workflow), params.Encode())
	}

	resp, err := c.getOK(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Results []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Workflow struct {
				Name string `json:"name"`
			} `json:"workflow"`
			Result struct {
				Status     string    `json:"status"`
				QueuedAt   time.Time `json:"queuedAt"`
				StartedAt  time.Time `json:"startedAt"`
				FinishedAt time.Time `json:"finishedAt"`
			} `json:"result"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	executions := make([]Execution, 0, len(apiResponse.Results))
	for _, item := range apiResponse.Results {
		exec := Execution{
			ID:           item.ID,
			Name:         item.Name,
			WorkflowName: item.Workflow.Name,
			Status:       item.Result.Status,
			StartTime:    item.Result.StartedAt,
			EndTime:      item.Result.FinishedAt,
		}
		if exec.StartTime.IsZero() {
			exec.StartTime = item.Result.QueuedAt
		}
		if !exec.EndTime.IsZero() && !exec.StartTime.IsZero() {
			exec.Duration = exec.EndTime.Sub(exec.StartTime)
		}

		executions = append(executions, exec)
	}

	return executions, nil
}

func (c *RealClient) GetArtifacts(ctx context.Context, executionID string) ([]Artifact, error) {
	apiURL := fmt.Sprintf("%s/v1/test-workflow-executions/%s/artifacts", c.baseURL, url.PathEscape(executionID))
	resp, err := c.getOK(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResponse []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	artifacts := make([]Artifact, 0, len(apiResponse))
	for _, item := range apiResponse {
		artifacts = append(artifacts, Artifact{
			Name: item.Name,
			Size: item.Size,
			Path: item.Name,
		})
	}

	return artifacts, nil
}

func (c *RealClient) DownloadArtifact(ctx context.Context, executionID, path string) ([]byte, error) {
	apiURL := fmt.Sprintf("%s/v1/test-workflow-executions/%s/artifacts/%s",
		c.baseURL, url.PathEscape(executionID), url.PathEscape(path))

	resp, err := c.getOK(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxArtifactSize {
		return nil, fmt.Errorf("artifact %s exceeds %d bytes", path, maxArtifactSize)
	}

	return data, nil
}
