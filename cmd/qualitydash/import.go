package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/testkube/quality-dashboard/internal/allure"
	"github.com/testkube/quality-dashboard/internal/database"
	"github.com/testkube/quality-dashboard/internal/records"
	"github.com/testkube/quality-dashboard/internal/worker"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>...",
		Short: "Import Allure results into the record store.",
		Long: `Import Allure result files, results directories or zipped results
directories. Importing the same path again updates the stored records.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDatabase(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			total := 0
			for _, path := range args {
				n, err := a.importPath(ctx, db, path)
				total += n
				if err != nil {
					return err
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records\n", total)
			return err
		},
	}
}

// importPath stores the results found at path. Inside a directory every
// result file is its own source, so adding files does not move the ids of
// records already imported.
func (a *app) importPath(ctx context.Context, db database.Database, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		recs, err := a.loadResults(path)
		if err != nil && len(recs) == 0 {
			return 0, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if err != nil {
			a.log.WithError(err).WithField("path", path).Warn("Some result files could not be read")
		}
		return a.store(ctx, db, path, recs)
	}

	files, err := allure.ResultFiles(path)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, file := range files {
		recs, err := allure.LoadFile(file)
		if err != nil {
			a.log.WithError(err).WithField("file", file).Warn("Skipping unreadable result file")
			continue
		}
		n, err := a.store(ctx, db, file, recs)
		imported += n
		if err != nil {
			return imported, err
		}
	}
	return imported, nil
}

func (a *app) store(ctx context.Context, db database.Database, path string, recs []records.TestRecord) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	worker.AssignSourceIDs("file:"+abs, recs)
	stored, err := db.InsertRecords(ctx, recs)
	if err != nil {
		return len(stored), fmt.Errorf("failed to store results from %s: %w", path, err)
	}
	a.log.WithFields(logrus.Fields{"path": path, "records": len(stored)}).Debug("Imported results")
	return len(stored), nil
}
