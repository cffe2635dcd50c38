package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/storage"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the contents of the stored dataset",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	cmd.Flags().Bool("runs", false, "also list recorded crawl jobs")

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Load()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Database\t%s\n", cfg.DBPath)
	fmt.Fprintf(w, "Entities\t%d\n", len(snap.Entities))
	fmt.Fprintf(w, "Relations\t%d\n", len(snap.Relations))
	fmt.Fprintf(w, "Triples\t%d\n", snap.Len())
	fmt.Fprintf(w, "Train/valid/test\t%d/%d/%d\n", len(snap.Train), len(snap.Valid), len(snap.Test))
	fmt.Fprintf(w, "Explored\t%d\n", len(snap.Explored))
	fmt.Fprintf(w, "Pending\t%d\n", len(snap.Frontier))

	if showRuns, _ := cmd.Flags().GetBool("runs"); showRuns {
		runs, err := store.Runs()
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "JOB\tSTARTED\tDURATION\tEXPLORED\tFAILED\tTRIPLES\tREASON")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.JobID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
				r.EntitiesExplored,
				r.EntitiesFailed,
				r.TriplesRecorded,
				r.TerminationReason,
			)
		}
	}

	return w.Flush()
}
