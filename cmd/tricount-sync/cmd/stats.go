package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/db"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display sync statistics",
	Long: `Display statistics about past sync runs.

Shows:
- Total number of runs and aborted runs
- Total imported, skipped and errored records
- The last run and its errored records

Example:
  tricount-sync stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := cmd.Context()

	dbPath := newPathResolver(cfg).GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)

	conn, err := db.Open(ctx, dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	err = printStats(ctx, cmd.OutOrStdout(), db.NewRunHistory(conn))
	exitOnError(err, "failed to get statistics")
}

func printStats(ctx context.Context, out io.Writer, history *db.RunHistory) error {
	stats, err := history.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== Sync Statistics ===")
	fmt.Fprintf(out, "Total runs:      %d (%d aborted)\n", stats.TotalRuns, stats.TotalAborted)
	fmt.Fprintf(out, "Total imported:  %d\n", stats.TotalImported)
	fmt.Fprintf(out, "Total skipped:   %d\n", stats.TotalSkipped)
	fmt.Fprintf(out, "Total errored:   %d\n", stats.TotalErrored)

	last := stats.LastRun
	if last == nil {
		fmt.Fprintf(out, "Last run:        (never)\n\n")
		return nil
	}

	fmt.Fprintf(out, "Last run:        %s (%s)\n", last.FinishedAt.Local().Format(time.DateTime), last.FinishedAt.Sub(last.StartedAt).Round(time.Millisecond))
	if last.RegistryTitle != "" {
		fmt.Fprintf(out, "  Registry:      %s\n", last.RegistryTitle)
	}
	if last.AbortMessage != "" {
		fmt.Fprintf(out, "  Aborted:       %s\n", last.AbortMessage)
	} else {
		fmt.Fprintf(out, "  Firefly III:   %d imported, %d skipped, %d errors\n", last.Imported, last.Skipped, last.Errored)
		fmt.Fprintf(out, "  Pruned:        %d\n", last.Pruned)
	}
	if last.ReconcilePartial {
		fmt.Fprintf(out, "  Reconcile:     partial after %d pages\n", last.ReconcilePages)
	}
	if last.DryRun {
		fmt.Fprintf(out, "  Dry run\n")
	}

	outcomes, err := history.GetOutcomes(ctx, last.ID)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Outcome == db.OutcomeErrored {
			fmt.Fprintf(out, "  Error: %s (%s): %s\n", o.ExternalID, o.Description, o.Reason)
		}
	}
	fmt.Fprintln(out)

	return nil
}
