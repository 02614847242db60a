package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
)

var prune bool

// ledgerCmd represents the ledger command.
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the dedup ledger",
	Long: `Display the size and date span of the dedup ledger.

With --prune, entries older than the retention window (SYNC_DAYS_RANGE)
are removed and the ledger is saved.

Example:
  tricount-sync ledger
  tricount-sync ledger --prune`,
	Run: runLedger,
}

func init() {
	ledgerCmd.Flags().BoolVar(&prune, "prune", false, "Remove entries outside the retention window")
}

func runLedger(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if err := cfg.Validate([]string{"sync", "daysRange"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	led := ledger.New(newPathResolver(cfg).GetLedgerPath(), slog.Default())
	err := inspectLedger(cmd.OutOrStdout(), led, cfg.Sync.DaysRange, ledger.Today(), prune)
	exitOnError(err, "failed to update ledger")
}

func inspectLedger(out io.Writer, led *ledger.Ledger, window ledger.RetentionWindow, today civil.Date, prune bool) error {
	if err := led.Load(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Ledger: %s\n", led.Path())
	fmt.Fprintf(out, "Entries: %d\n", led.Len())
	if oldest, newest, ok := led.Span(); ok {
		fmt.Fprintf(out, "Span: %s to %s\n", oldest, newest)
	}

	if !prune {
		return nil
	}

	removed := led.Prune(window, today)
	if err := led.Save(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Pruned %d entries before %s (%d left)\n", removed, window.Start(today), led.Len())
	return nil
}
