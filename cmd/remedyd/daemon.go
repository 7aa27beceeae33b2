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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/analysis"
	"github.com/fyrsmithlabs/remedyd/internal/approval"
	"github.com/fyrsmithlabs/remedyd/internal/collector"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/decision"
	"github.com/fyrsmithlabs/remedyd/internal/executor"
	"github.com/fyrsmithlabs/remedyd/internal/learning"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/orchestrator"
	"github.com/fyrsmithlabs/remedyd/internal/project"
	"github.com/fyrsmithlabs/remedyd/internal/server"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		// An implementation mid-transaction finishes its
		// commit-or-rollback before the loop honors this.
		cancel()
	}()

	return run(ctx)
}

// run wires the pipeline and blocks until the context is canceled.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn(ctx, "tracing unavailable, continuing without it", zap.Error(err))
		tel = nil
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	metrics := telemetry.NewMetrics()

	store, err := learning.Open(cfg.Learning.Path, logger)
	if err != nil {
		return fmt.Errorf("open learning store: %w", err)
	}
	defer store.Close() //nolint:errcheck // close error is logged by the store

	// Target project adapters. All observation paths are read-only; only
	// the executor's version control writes.
	runner := &project.ExecBuildRunner{Root: cfg.Project.Root, Command: cfg.Project.BuildCommand}
	vcs := &project.FSVersionControl{
		Root:        cfg.Project.Root,
		BackupDir:   cfg.Project.BackupDir,
		BaselineDir: cfg.Project.BaselineDir,
	}

	collectors := []collector.Collector{
		&collector.BuildDiagnostics{Runner: runner},
		&collector.RuntimeLog{Source: &project.FileLogSource{Path: cfg.Project.LogPath}},
		&collector.PerformanceSample{Source: &project.FileSampleSource{Path: cfg.Project.SamplePath}},
		&collector.BehavioralMetric{Source: &project.FileMetricSource{Path: cfg.Project.MetricPath}},
		&collector.ResourceIntegrity{Graph: &project.ManifestResourceGraph{
			Root:         cfg.Project.Root,
			ManifestPath: cfg.Project.ResourceManifest,
		}},
	}
	gatherer := collector.NewRunner(collectors, cfg.Collectors.Timeout.Duration(), logger)

	analyzer := analysis.NewEngine(cfg.Policy.ConfidenceFloor, logger)

	fixTable, err := decision.LoadFixTable(cfg.Policy.FixTableFile)
	if err != nil {
		return fmt.Errorf("load fix table: %w", err)
	}
	decider := decision.NewEngine(fixTable, cfg.Policy, store, logger)

	approvals := approval.NewService(cfg.Orchestrator.ApprovalTimeout.Duration(), logger)

	sink := &orchestrator.MeteredSink{Sink: store, Metrics: metrics}
	validator := &executor.BuildValidator{Runner: runner}
	exec := executor.New(vcs, validator, executor.NewLockTable(), sink, logger, cfg.Orchestrator.Concurrency)

	loop := orchestrator.New(
		cfg.Orchestrator,
		"",
		gatherer,
		analyzer,
		decider,
		approvals,
		exec,
		metrics,
		tel.Tracer("remedyd/orchestrator"),
		logger,
	)

	srv, err := server.NewServer(loop, approvals, metrics, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("init operator api: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("start remediation run: %w", err)
	}
	logger.Info(ctx, "remedyd started",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.Int("max_iterations", cfg.Orchestrator.MaxIterations))

	select {
	case err := <-serverErr:
		loop.Stop()
		return fmt.Errorf("operator api: %w", err)
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "operator api shutdown failed", zap.Error(err))
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}
