package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"segue/internal/ingest"
	"segue/internal/logging"
	"segue/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the analysis daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runID := time.Now().UTC().Format("20060102T150405Z")
			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("segue-%s.log", runID))
			logger, err := ctx.newLogger("stdout", logPath)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := ctx.openManifestStore()
			if err != nil {
				return err
			}
			defer store.Close()
			jobStore, err := ctx.openJobStore()
			if err != nil {
				return err
			}
			defer jobStore.Close()
			repo, err := ctx.openRepository(signalCtx, logger)
			if err != nil {
				return err
			}

			// Reclaim work orphaned by an unclean shutdown before accepting new
			// jobs.
			if reset, err := store.ResetStuckProcessing(signalCtx); err != nil {
				return fmt.Errorf("reset stuck manifests: %w", err)
			} else if reset > 0 {
				logger.Warn("reset stuck manifests", logging.Int64("count", reset))
			}
			if reset, err := jobStore.ResetStuckProcessing(signalCtx); err != nil {
				return fmt.Errorf("reset stuck jobs: %w", err)
			} else if reset > 0 {
				logger.Warn("reset stuck jobs", logging.Int64("count", reset))
			}

			queue, err := ctx.newQueue(jobStore, logger)
			if err != nil {
				return err
			}
			extractor, err := ctx.newExtractor(logger)
			if err != nil {
				return err
			}
			analyzer := worker.NewAnalyzer(store, repo, extractor, logger)
			if err := analyzer.Register(queue); err != nil {
				return err
			}

			if err := queue.Start(signalCtx); err != nil {
				return err
			}
			logger.Info("daemon started",
				logging.Int("workers", cfg.Workflow.Workers),
				logging.String("job_type", ingest.JobTypeAnalyzeTrack),
			)

			<-signalCtx.Done()
			logger.Info("shutting down")
			queue.Stop()
			return nil
		},
	}
}
