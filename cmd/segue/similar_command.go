package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"segue/internal/similarity"
)

func newSimilarCommand(ctx *commandContext) *cobra.Command {
	var (
		scopeFlag string
		limit     int
		position  float64
	)

	cmd := &cobra.Command{
		Use:   "similar <track-id>",
		Short: "Find library segments similar to a segment of a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var scope similarity.Scope
			switch scopeFlag {
			case "bar":
				scope = similarity.ScopeBar
			case "phrase":
				scope = similarity.ScopePhrase
			default:
				return fmt.Errorf("unknown scope %q (want bar or phrase)", scopeFlag)
			}

			logger, err := ctx.newLogger("stderr")
			if err != nil {
				return err
			}
			lib, store, err := ctx.openLibrary(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			set, summary, err := lib.Features(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			vectors := set.PhraseVectors
			if scope == similarity.ScopeBar {
				vectors = set.BarVectors
			}
			if len(vectors) == 0 {
				return fmt.Errorf("track %s has no %s vectors", args[0], scopeFlag)
			}
			index := len(vectors) / 2
			if position > 0 && summary.DurationSeconds > 0 {
				index = int(position / summary.DurationSeconds * float64(len(vectors)))
				if index >= len(vectors) {
					index = len(vectors) - 1
				}
			}

			engine := similarity.NewEngine(lib, logger)
			matches, err := engine.NearestNeighbors(cmd.Context(), vectors[index], limit, scope)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(matches))
			for _, match := range matches {
				rows = append(rows, []string{
					match.TrackID,
					fmt.Sprintf("%.1f s", match.Position),
					fmt.Sprintf("%.3f", match.Score),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{textCol("Track"), numericCol("Position"), numericCol("Similarity")},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "phrase", "Vector level to search: bar or phrase")
	cmd.Flags().IntVarP(&limit, "limit", "k", 10, "Number of matches to return")
	cmd.Flags().Float64Var(&position, "position", 0, "Query position in seconds (default: track midpoint)")
	return cmd
}
