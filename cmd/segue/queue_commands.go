package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"segue/internal/manifest"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the analysis queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openManifestStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var statuses []manifest.Status
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				status, ok := manifest.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q", trimmed)
				}
				statuses = append(statuses, status)
			}

			manifests, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(manifests))
			for _, m := range manifests {
				rows = append(rows, []string{
					m.ID,
					string(m.Status),
					trackLabel(m),
					summaryLabel(m),
					strconv.Itoa(m.RetryCount),
					m.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]tableColumn{
					textCol("ID"),
					textCol("Status"),
					textCol("Track"),
					textCol("Analysis"),
					numericCol("Retries"),
					textCol("Updated"),
				},
				rows,
			))

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d total: %d queued, %d processing, %d ready, %d errored\n",
				stats.Total(), stats.Queued, stats.Processing, stats.Ready, stats.Errored)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show manifests with this status")
	return cmd
}

func trackLabel(m *manifest.Manifest) string {
	switch {
	case m.Artist != "" && m.Title != "":
		return m.Artist + " - " + m.Title
	case m.Title != "":
		return m.Title
	default:
		return "(untitled)"
	}
}

func summaryLabel(m *manifest.Manifest) string {
	if m.Status == manifest.StatusError {
		return m.ErrorReason
	}
	if m.Summary == nil {
		return ""
	}
	return fmt.Sprintf("%.0f BPM %s energy %.1f", m.Summary.TempoBPM, m.Summary.KeyToken, m.Summary.Energy)
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [track-id ...]",
		Short: "Requeue errored tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
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

			requeued, err := retryErrored(cmd.Context(), cfg, store, jobStore, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d track(s)\n", requeued)
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var errorsOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove manifests from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openManifestStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var statuses []manifest.Status
			if errorsOnly {
				statuses = append(statuses, manifest.StatusError)
			}
			removed, err := store.Clear(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d manifest(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Only clear errored manifests")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check manifest database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openManifestStore()
			if err != nil {
				return err
			}
			defer store.Close()

			health := store.Health(cmd.Context())
			rows := [][]string{
				{"Database", health.DBPath},
				{"Exists", strconv.FormatBool(health.DatabaseExists)},
				{"Readable", strconv.FormatBool(health.DatabaseReadable)},
				{"Schema version", health.SchemaVersion},
				{"Integrity check", strconv.FormatBool(health.IntegrityCheck)},
				{"Total tracks", strconv.Itoa(health.TotalTracks)},
			}
			if health.Error != "" {
				rows = append(rows, []string{"Error", health.Error})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{textCol("Check"), textCol("Value")}, rows))
			if health.Error != "" {
				return fmt.Errorf("database unhealthy: %s", health.Error)
			}
			return nil
		},
	}
}
