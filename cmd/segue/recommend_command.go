package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"segue/internal/scoring"
)

func newRecommendCommand(ctx *commandContext) *cobra.Command {
	var (
		limit    int
		minScore float64
		segments bool
	)

	cmd := &cobra.Command{
		Use:   "recommend <track-id>",
		Short: "Recommend follow-up tracks from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.newLogger("stderr")
			if err != nil {
				return err
			}
			lib, store, err := ctx.openLibrary(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			recommender := scoring.NewRecommender(lib, logger)
			recs, err := recommender.Recommend(cmd.Context(), args[0], scoring.Options{
				Limit:           limit,
				MinScore:        minScore,
				IncludeSegments: segments,
			})
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No compatible tracks found.")
				return nil
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				transition := "none"
				if rec.BestTransition != nil {
					transition = fmt.Sprintf("%.0fs -> %.0fs (%.2f)",
						rec.BestTransition.FromPosition,
						rec.BestTransition.ToPosition,
						rec.BestTransition.Similarity)
				}
				rows = append(rows, []string{
					rec.TrackID,
					fmt.Sprintf("%.3f", rec.Score),
					fmt.Sprintf("%.2f", rec.Scores.Harmonic),
					fmt.Sprintf("%.2f", rec.Scores.Tempo),
					fmt.Sprintf("%.2f", rec.Scores.Energy),
					fmt.Sprintf("%.2f", rec.Scores.Texture),
					fmt.Sprintf("%.2f", rec.Scores.Phrase),
					transition,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]tableColumn{
					textCol("Track"),
					numericCol("Score"),
					numericCol("Harmonic"),
					numericCol("Tempo"),
					numericCol("Energy"),
					numericCol("Texture"),
					numericCol("Phrase"),
					textCol("Transition"),
				},
				rows,
			))

			if segments {
				for _, rec := range recs {
					for _, seg := range rec.Segments {
						fmt.Fprintf(out, "  %s: similar segment at %.1fs (%.3f)\n", rec.TrackID, seg.Position, seg.Score)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "k", 5, "Number of recommendations")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum combined score (default 0.4)")
	cmd.Flags().BoolVar(&segments, "segments", false, "Include similar segment positions")
	return cmd
}
