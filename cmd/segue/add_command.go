package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"segue/internal/ingest"
	"segue/internal/logging"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var artist, title string

	cmd := &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Queue an audio file for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			logger, err := ctx.newLogger("stderr")
			if err != nil {
				return err
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
			queue, err := ctx.newQueue(jobStore, logging.NewNop())
			if err != nil {
				return err
			}

			ingestor := ingest.New(cfg, store, queue, logger)
			result, err := ingestor.Ingest(cmd.Context(), ingest.Upload{
				Data:   data,
				Artist: artist,
				Title:  title,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Track %s queued for analysis (job %s)\n", result.Manifest.ID, result.JobID)
			fmt.Fprintf(out, "Poll with: segue queue list\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&artist, "artist", "", "Artist metadata")
	cmd.Flags().StringVar(&title, "title", "", "Title metadata")
	return cmd
}
