package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/morezero/service-mirror/pkg/db"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query and prune the status journal",
	}

	var level string
	var limit int
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List journaled status events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := db.NewRepository(pool)
			rows, err := repo.ListStatusEvents(ctx, db.ListStatusEventsParams{Level: level, Limit: limit})
			if err != nil {
				return err
			}
			counts, err := repo.CountStatusEvents(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"counts": counts, "events": rows})
		},
	}
	statusCmd.Flags().StringVar(&level, "level", "", "Only events of this level (error, warn, info)")
	statusCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")

	var name string
	var lifecycleLimit int
	lifecycleCmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "List journaled registrations and releases, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rows, err := db.NewRepository(pool).ListLifecycle(ctx, db.ListLifecycleParams{Name: name, Limit: lifecycleLimit})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"lifecycle": rows})
		},
	}
	lifecycleCmd.Flags().StringVar(&name, "name", "", "Only this service")
	lifecycleCmd.Flags().IntVar(&lifecycleLimit, "limit", 50, "Maximum number of rows")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete status events older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewRepository(pool).PruneStatusEvents(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d status events.\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")

	cmd.AddCommand(statusCmd, lifecycleCmd, pruneCmd)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
