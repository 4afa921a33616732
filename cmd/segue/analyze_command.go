package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"segue/internal/logging"
)

// analyze runs the extractor synchronously against one file, bypassing the
// queue. Useful for checking what the pipeline makes of a track before adding
// it to the library.
func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Analyze a file synchronously and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			extractor, err := ctx.newExtractor(logging.NewNop())
			if err != nil {
				return err
			}

			summary, set, err := extractor.Extract(cmd.Context(), data)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Tempo", fmt.Sprintf("%.1f BPM", summary.TempoBPM)},
				{"Key", summary.KeyToken},
				{"Energy", fmt.Sprintf("%.1f / 10", summary.Energy)},
				{"Duration", fmt.Sprintf("%.1f s", summary.DurationSeconds)},
				{"Bars", fmt.Sprintf("%d", summary.Bars)},
				{"Phrases", fmt.Sprintf("%d", summary.Phrases)},
				{"Envelope", fmt.Sprintf("%d windows", len(set.Waveform))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{textCol("Field"), numericCol("Value")}, rows))
			return nil
		},
	}
}
