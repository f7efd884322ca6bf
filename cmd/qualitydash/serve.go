package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/testkube/quality-dashboard/internal/artifacts"
	"github.com/testkube/quality-dashboard/internal/server"
	"github.com/testkube/quality-dashboard/internal/testkube"
	"github.com/testkube/quality-dashboard/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and import results in the background.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mock, _ := cmd.Flags().GetBool("mock-testkube")
			return a.serve(cmd.Context(), mock)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "Listen address")
	flags.String("results-dir", "", "Directory watched for Allure result files")
	flags.String("testkube-url", "", "Testkube API server polled for finished executions")
	flags.String("testkube-token", "", "Bearer token for the Testkube API")
	flags.String("testkube-namespace", testkube.DefaultNamespace, "Testkube namespace")
	flags.Duration("poll-interval", time.Minute, "Interval between imports")
	flags.String("cache-dir", "", "Directory for extracted result archives")
	flags.Bool("mock-testkube", false, "Import from generated executions instead of a Testkube API")

	return cmd
}

func (a *app) serve(ctx context.Context, mockTestkube bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := a.openDatabase(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var api testkube.Client
	switch {
	case mockTestkube:
		a.log.Info("Using mock Testkube API client")
		api = testkube.NewMockClient(time.Now(), 48)
	case a.cfg.TestkubeURL != "":
		a.log.WithField("url", a.cfg.TestkubeURL).Info("Connecting to Testkube API")
		client, err := testkube.NewRealClient(ctx, testkube.Config{
			BaseURL:   a.cfg.TestkubeURL,
			Token:     a.cfg.TestkubeToken,
			Namespace: a.cfg.TestkubeNamespace,
		})
		if err != nil {
			return fmt.Errorf("failed to create Testkube API client: %w", err)
		}
		a.log.WithField("namespace", client.Namespace()).Info("Connected to Testkube API")
		api = client
	}

	entry := logrus.NewEntry(a.log)
	if api != nil || a.cfg.ResultsDir != "" {
		w := worker.NewWorker(db, worker.Options{
			ResultsDir: a.cfg.ResultsDir,
			API:        api,
			Artifacts:  artifacts.NewManager(a.cfg.CacheDir, a.cfg.CacheTTL),
			Interval:   a.cfg.PollInterval,
			Logger:     entry,
		})
		go w.Start(ctx)
	}

	srv := server.NewServer(db, server.Options{
		WindowDays: a.cfg.WindowDays,
		Location:   a.cfg.Location,
		Logger:     entry,
	})
	httpServer := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			a.log.WithField("signal", sig).Info("Shutting down")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	a.log.WithFields(logrus.Fields{
		"addr":   a.cfg.Addr,
		"window": a.cfg.WindowDays,
		"db":     a.cfg.DBDriver,
	}).Info("Starting test quality dashboard")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}
