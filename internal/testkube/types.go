package testkube

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

type Execution struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	WorkflowName string        `json:"workflowName"`
	Status       string        `json:"status"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// Finished reports whether the execution reached a terminal state.
func (e Execution) Finished() bool {
	switch e.Status {
	case "passed", "failed", "aborted", "canceled", "timeout":
		return true
	}
	return false
}

type Artifact struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// IsResultArchive reports whether the artifact is a zipped Allure results
// directory.
func (a Artifact) IsResultArchive() bool {
	base := strings.ToLower(path.Base(a.Path))
	return strings.HasPrefix(base, "allure-results") && strings.HasSuffix(base, ".zip")
}

// IsResultFile reports whether the artifact is a single Allure result file.
func (a Artifact) IsResultFile() bool {
	return strings.HasSuffix(path.Base(a.Path), "-result.json")
}

type ListOptions struct {
	Workflow string
	Status   string
	Page     int
	PageSize int
}

// Client is the subset of the Testkube API the importer needs.
type Client interface {
	GetExecutions(ctx context.Context, opts ListOptions) ([]Execution, error)
	GetArtifacts(ctx context.Context, executionID string) ([]Artifact, error)
	DownloadArtifact(ctx context.Context, executionID, path string) ([]byte, error)
}
