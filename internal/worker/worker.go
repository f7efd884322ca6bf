package worker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/testkube/quality-dashboard/internal/allure"
	"github.com/testkube/quality-dashboard/internal/artifacts"
	"github.com/testkube/quality-dashboard/internal/database"
	"github.com/testkube/quality-dashboard/internal/records"
	"github.com/testkube/quality-dashboard/internal/testkube"
)

const DefaultInterval = time.Minute

// executionPageSize is how many recent executions one poll looks at.
const executionPageSize = 20

// recordNamespace seeds storage IDs for imported records so that
// re-importing the same source upserts instead of duplicating.
var recordNamespace = uuid.MustParse("8c6f3c57-2f4e-4d5a-9b0e-6a51c2d7e1f4")

type Options struct {
	// ResultsDir is scanned for Allure result files. Empty disables it.
	ResultsDir string
	// API is polled for finished executions. Nil disables it.
	API testkube.Client
	// Artifacts unpacks zipped result directories. Nil skips archives.
	Artifacts *artifacts.Manager
	Interval  time.Duration
	Logger    *logrus.Entry
}

// Worker periodically imports Allure results into the database.
type Worker struct {
	db        database.Database
	api       testkube.Client
	artifacts *artifacts.Manager
	dir       string
	interval  time.Duration
	log       *logrus.Entry

	mu             sync.Mutex
	seenFiles      map[string]time.Time
	seenExecutions map[string]bool
}

func NewWorker(db database.Database, opts Options) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	// Sources are keyed by absolute path, the same as the import command.
	if abs, err := filepath.Abs(opts.ResultsDir); err == nil && opts.ResultsDir != "" {
		opts.ResultsDir = abs
	}
	return &Worker{
		db:             db,
		api:            opts.API,
		artifacts:      opts.Artifacts,
		dir:            opts.ResultsDir,
		interval:       opts.Interval,
		log:            opts.Logger.WithField("component", "worker"),
		seenFiles:      map[string]time.Time{},
		seenExecutions: map[string]bool{},
	}
}

// Start imports once immediately and then on every tick until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.WithField("interval", w.interval).Info("Starting result import worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Stopping worker")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce imports everything new from the configured sources and returns
// how many records were stored. Failures are logged, never returned.
func (w *Worker) RunOnce(ctx context.Context) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	imported := 0
	if w.dir != "" {
		imported += w.importDir(ctx)
	}
	if w.api != nil {
		imported += w.importExecutions(ctx)
	}
	if imported > 0 {
		w.log.WithField("records", imported).Info("Imported test results")
	}
	return imported
}

func (w *Worker) importDir(ctx context.Context) int {
	files, err := allure.ResultFiles(w.dir)
	if err != nil {
		w.log.WithError(err).WithField("dir", w.dir).Warn("Failed to scan results directory")
		return 0
	}

	imported := 0
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			w.log.WithError(err).WithField("file", file).Warn("Failed to stat result file")
			continue
		}
		if seen, ok := w.seenFiles[file]; ok && seen.Equal(info.ModTime()) {
			continue
		}

		recs, err := allure.LoadFile(file)
		if err != nil {
			w.log.WithError(err).WithField("file", file).Warn("Failed to load result file")
		} else {
			n, err := w.store(ctx, "file:"+file, recs)
			if err != nil {
				w.log.WithError(err).WithField("file", file).Warn("Failed to store results")
				continue
			}
			imported += n
		}
		w.seenFiles[file] = info.ModTime()
	}
	return imported
}

func (w *Worker) importExecutions(ctx context.Context) int {
	executions, err := w.api.GetExecutions(ctx, testkube.ListOptions{PageSize: executionPageSize})
	if err != nil {
		w.log.WithError(err).Warn("Failed to fetch executions")
		return 0
	}

	imported := 0
	for _, exec := range executions {
		if !exec.Finished() || w.seenExecutions[exec.ID] {
			continue
		}
		n, err := w.importExecution(ctx, exec)
		imported += n
		if err != nil {
			w.log.WithError(err).WithField("execution", exec.ID).Warn("Failed to import execution results")
			continue
		}
		w.seenExecutions[exec.ID] = true
	}
	return imported
}

func (w *Worker) importExecution(ctx context.Context, exec testkube.Execution) (int, error) {
	log := w.log.WithFields(logrus.Fields{"execution": exec.ID, "workflow": exec.WorkflowName})
	log.Debug("Processing execution")

	list, err := w.api.GetArtifacts(ctx, exec.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to get artifacts: %w", err)
	}

	imported := 0
	for _, artifact := range list {
		var recs []records.TestRecord
		switch {
		case artifact.IsResultFile():
			data, err := w.api.DownloadArtifact(ctx, exec.ID, artifact.Path)
			if err != nil {
				return imported, fmt.Errorf("failed to download %s: %w", artifact.Path, err)
			}
			if recs, err = allure.Parse(data); err != nil {
				log.WithError(err).WithField("artifact", artifact.Path).Warn("Skipping unreadable result file")
				continue
			}
		case artifact.IsResultArchive() && w.artifacts != nil:
			if recs, err = w.loadArchive(ctx, exec.ID, artifact); err != nil {
				return imported, err
			}
		default:
			continue
		}

		n, err := w.store(ctx, "execution:"+exec.ID+"/"+artifact.Path, recs)
		imported += n
		if err != nil {
			return imported, err
		}
	}
	return imported, nil
}

func (w *Worker) loadArchive(ctx context.Context, executionID string, artifact testkube.Artifact) ([]records.TestRecord, error) {
	key := executionID + "-" + strings.TrimSuffix(path.Base(artifact.Path), ".zip")
	dir, err := w.artifacts.Cached(key)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		data, err := w.api.DownloadArtifact(ctx, executionID, artifact.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", artifact.Path, err)
		}
		if dir, err = w.artifacts.Extract(key, data); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", artifact.Path, err)
		}
	}

	recs, err := allure.LoadDir(dir)
	if err != nil {
		// Partial archives still yield the files that parsed.
		w.log.WithError(err).WithField("artifact", artifact.Path).Warn("Some result files could not be read")
	}
	return recs, nil
}

// AssignSourceIDs gives every record without a storage ID one derived from
// the source it was read from and its position there. The report ID is
// not used.
func AssignSourceIDs(source string, recs []records.TestRecord) {
	for i := range recs {
		if recs[i].ID == "" {
			recs[i] = recs[i].WithID(uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s#%d", source, i))).String())
		}
	}
}

func (w *Worker) store(ctx context.Context, source string, recs []records.TestRecord) (int, error) {
	AssignSourceIDs(source, recs)
	stored, err := w.db.InsertRecords(ctx, recs)
	return len(stored), err
}
