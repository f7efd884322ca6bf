package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/testkube/quality-dashboard/internal/allure"
	"github.com/testkube/quality-dashboard/internal/artifacts"
	"github.com/testkube/quality-dashboard/internal/config"
	"github.com/testkube/quality-dashboard/internal/database"
	"github.com/testkube/quality-dashboard/internal/records"
)

// app carries the state shared by all subcommands once the configuration
// has been resolved.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "qualitydash",
		Short:         "Test quality dashboard for Allure results.",
		Long:          `qualitydash aggregates Allure test results into pass rates, daily trends and heuristic failure diagnoses.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to config file")
	flags.Int("window-days", 30, "Number of days in the trend window")
	flags.String("timezone", "UTC", "Time zone used to assign results to calendar days")
	flags.String("db-driver", config.DriverMemory, "Record store: memory or postgres or mysql or sqlite")
	flags.String("db-dsn", "", "Data source name for the record store")
	flags.String("log-level", "info", "Log level")
	flags.String("log-format", "text", "Log format: text or json")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newSummaryCmd(a))
	root.AddCommand(newClassifyCmd(a))

	return root
}

// setup binds the flags of the running command and resolves the config.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.NewLogger()
	return nil
}

func (a *app) openDatabase(ctx context.Context) (database.Database, error) {
	if a.cfg.DBDriver == config.DriverMemory {
		return database.NewMockDatabase(), nil
	}
	return database.NewSQLDatabase(ctx, a.cfg.DBDriver, a.cfg.DBDSN)
}

// reference is now, in the configured location.
func (a *app) reference() time.Time {
	return time.Now().In(a.cfg.Location)
}

// loadResults reads Allure results from a directory, a single result file
// or a zip archive of a results directory.
func (a *app) loadResults(path string) ([]records.TestRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return allure.LoadDir(path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return allure.LoadFile(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "qualitydash-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	dir, err := artifacts.NewManager(tmp, 0).Extract("archive", data)
	if err != nil {
		return nil, err
	}
	return allure.LoadDir(dir)
}
