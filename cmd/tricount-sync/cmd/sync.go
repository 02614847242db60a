package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/category"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/config"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/converter"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/db"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/export"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/importer"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/metrics"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

var (
	tricountKey     string
	fireflyHost     string
	fireflyToken    string
	daysRange       int
	noExport        bool
	dryRun          bool
	contentIdentity bool
)

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import a Tricount registry into Firefly III",
	Long: `Import the expenses of a Tricount registry into Firefly III.

This command:
1. Checks Firefly III is reachable and resolves the source account
2. Fetches and parses the Tricount registry
3. Exports the registry to CSV
4. Reconciles the dedup ledger with Firefly III
5. Submits every entry not yet imported
6. Records run history in SQLite

Example:
  tricount-sync sync --tricount-key tXXXX
  tricount-sync sync --days-range 90 --no-export
  tricount-sync sync --dry-run`,
	Run: runSync,
}

func init() {
	// Flags
	syncCmd.Flags().StringVar(&tricountKey, "tricount-key", "", "Tricount registry key (overrides TRICOUNT_KEY)")
	syncCmd.Flags().StringVar(&fireflyHost, "firefly-host", "", "Firefly III URL (overrides FIREFLY_HOST)")
	syncCmd.Flags().StringVar(&fireflyToken, "firefly-token", "", "Firefly III personal access token (overrides FIREFLY_TOKEN)")
	syncCmd.Flags().IntVar(&daysRange, "days-range", 0, "Days to look back and keep in the ledger (overrides SYNC_DAYS_RANGE)")
	syncCmd.Flags().BoolVar(&noExport, "no-export", false, "Skip the CSV export")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Dry run mode (nothing is submitted or saved)")
	syncCmd.Flags().BoolVar(&contentIdentity, "content-identity", false, "Fingerprint entries without a Tricount id")
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	applySyncFlags(cmd, cfg)

	// Validate required fields
	if err := cfg.Validate(
		[]string{"tricount", "key"},
		[]string{"tricount", "apiUrl"},
		[]string{"firefly", "host"},
		[]string{"firefly", "token"},
		[]string{"sync", "daysRange"},
	); err != nil {
		exitOnError(err, "invalid configuration")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	slog.Info("Starting sync", "days_range", int(cfg.Sync.DaysRange), "dry_run", dryRun)

	job := newSyncJob(cfg, syncOptions{DryRun: dryRun, NoExport: noExport}, cmd.OutOrStdout(), slog.Default())
	exitOnError(job.run(ctx), "sync aborted")
}

// applySyncFlags overrides configuration with explicitly set flags.
func applySyncFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("tricount-key") {
		cfg.Tricount.Key = tricountKey
	}
	if flags.Changed("firefly-host") {
		cfg.Firefly.Host = fireflyHost
	}
	if flags.Changed("firefly-token") {
		cfg.Firefly.Token = fireflyToken
	}
	if flags.Changed("days-range") {
		cfg.Sync.DaysRange = ledger.RetentionWindow(daysRange)
	}
	if flags.Changed("content-identity") {
		cfg.Sync.ContentIdentity = contentIdentity
	}
}

// syncOptions are the per-invocation switches of a sync.
type syncOptions struct {
	DryRun   bool
	NoExport bool
	Now      func() time.Time // Default: time.Now
	KeyBits  int              // Tricount installation key size. Default: 2048
}

// syncJob is one sync invocation: it owns the clients, the ledger, and the
// run record.
type syncJob struct {
	cfg    *config.Config
	opts   syncOptions
	out    io.Writer
	logger *slog.Logger
	paths  *pathutil.PathResolver
}

func newSyncJob(cfg *config.Config, opts syncOptions, out io.Writer, logger *slog.Logger) *syncJob {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &syncJob{
		cfg:    cfg,
		opts:   opts,
		out:    out,
		logger: logger,
		paths:  newPathResolver(cfg),
	}
}

func (j *syncJob) today() civil.Date {
	return civil.DateOf(j.opts.Now())
}

// run executes the sync and records its history and metrics, including for
// aborted runs. Only configuration-class failures are returned.
func (j *syncJob) run(ctx context.Context) error {
	run := db.Run{StartedAt: j.opts.Now(), DryRun: j.opts.DryRun}
	recorder := metrics.NewRecorder()

	report, err := j.sync(ctx, &run, recorder)
	run.FinishedAt = j.opts.Now()
	if err != nil {
		run.AbortMessage = err.Error()
	}

	j.recordHistory(ctx, run, report)
	j.writeMetrics(recorder, run)

	if err != nil {
		return err
	}

	fmt.Fprintf(j.out, "Firefly III: %d imported, %d skipped, %d errors\n", report.Imported, report.Skipped, report.Errored)
	return nil
}

func (j *syncJob) sync(ctx context.Context, run *db.Run, recorder *metrics.Recorder) (importer.Report, error) {
	ff := firefly.NewClient(firefly.ClientConfig{
		Host:    j.cfg.Firefly.Host,
		Token:   j.cfg.Firefly.Token,
		Timeout: 30 * time.Second,
	})

	about, err := ff.About(ctx)
	if err != nil {
		return importer.Report{}, fmt.Errorf("failed to connect to Firefly III at %s: %w", j.cfg.Firefly.Host, err)
	}
	j.logger.Info("Connected to Firefly III", "version", about.Version, "api_version", about.APIVersion)

	account, err := ff.DefaultAccount(ctx, j.cfg.Firefly.AccountID)
	if err != nil {
		return importer.Report{}, fmt.Errorf("failed to resolve default account: %w", err)
	}
	j.logger.Info("Using source account", "id", account.ID, "name", account.Name)

	title, entries, err := j.fetchRegistry(ctx)
	if err != nil {
		return importer.Report{}, err
	}
	run.RegistryTitle = title
	fmt.Fprintf(j.out, "Registry %q: %d entries\n", title, len(entries))

	if !j.opts.NoExport {
		j.exportRegistry(title, entries)
	}

	mapper, err := converter.NewMapper(j.cfg.Sync.CategoryMapping)
	if err != nil {
		return importer.Report{}, fmt.Errorf("failed to load category mapping: %w", err)
	}
	records := converter.NewConverter(mapper, "", j.today).ConvertEntries(entries)

	led := ledger.New(j.paths.GetLedgerPath(), j.logger)
	if err := led.Load(); err != nil {
		j.logger.Warn("Failed to load ledger", "error", err)
	}

	result := led.Reconcile(ctx, ff, ledger.ReconcileOptions{
		Window: j.cfg.Sync.DaysRange,
		Today:  j.today(),
	})
	run.ReconcilePages = result.Pages
	run.ReconcilePartial = result.Partial || result.Capped
	recorder.ObserveReconcile(result)
	if result.Err != nil {
		fmt.Fprintf(j.out, "Warning: reconciliation incomplete (%v); Firefly III will reject any duplicates\n", result.Err)
	}

	resolver := category.NewResolver(ff, j.logger)
	engine := importer.New(ff, led, resolver, importer.Options{
		SourceAccountID: account.ID,
		RetentionWindow: j.cfg.Sync.DaysRange,
		Today:           j.today,
		ContentIdentity: j.cfg.Sync.ContentIdentity,
		DryRun:          j.opts.DryRun,
		Logger:          j.logger,
	})

	report, err := engine.Run(ctx, records)
	if err != nil {
		return report, fmt.Errorf("import refused: %w", err)
	}

	run.Imported = report.Imported
	run.Skipped = report.Skipped
	run.Errored = report.Errored
	run.Pruned = report.Pruned
	recorder.ObserveReport(report)
	recorder.SetLedgerSize(led.Len())
	recorder.SetCategoriesResolved(resolver.Cached())

	for _, res := range report.Results {
		if res.Outcome == importer.Errored {
			fmt.Fprintf(j.out, "Error: %s (%s): %s\n", res.ID, res.Description, res.Reason)
		}
	}

	return report, nil
}

func (j *syncJob) fetchRegistry(ctx context.Context) (string, []tricount.Entry, error) {
	client := tricount.NewClient(tricount.ClientConfig{
		BaseURL: j.cfg.Tricount.APIURL,
		Timeout: 30 * time.Second,
		KeyBits: j.opts.KeyBits,
	})

	j.logger.Info("Authenticating with Tricount")
	if err := client.Authenticate(ctx); err != nil {
		return "", nil, fmt.Errorf("failed to authenticate with Tricount: %w", err)
	}

	resp, raw, err := client.FetchRegistry(ctx, j.cfg.Tricount.Key)
	if err != nil {
		return "", nil, err
	}
	j.dumpRaw(raw)

	title, entries, err := tricount.ParseRegistry(resp)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	for _, entry := range entries {
		if entry.Err != nil {
			j.logger.Warn("Malformed registry entry", "uuid", entry.UUID, "error", entry.Err)
		}
	}
	j.logger.Info("Fetched registry", "title", title, "entries", len(entries))
	return title, entries, nil
}

// dumpRaw writes the raw registry response for inspection. Best effort.
func (j *syncJob) dumpRaw(raw []byte) {
	path := j.paths.GetRawDumpPath()
	if err := j.paths.EnsureParentDir(path); err != nil {
		j.logger.Warn("Failed to write raw response", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		j.logger.Warn("Failed to write raw response", "path", path, "error", err)
		return
	}
	j.logger.Debug("Wrote raw response", "path", path)
}

func (j *syncJob) exportRegistry(title string, entries []tricount.Entry) {
	repo := export.NewFileSystemRepository(j.paths)
	path, err := repo.WriteRegistry(title, entries)
	if err != nil {
		j.logger.Error("Failed to export registry", "title", title, "error", err)
		return
	}
	j.logger.Info("Exported registry", "path", path)
}

func (j *syncJob) recordHistory(ctx context.Context, run db.Run, report importer.Report) {
	// Recording must survive a cancelled run.
	ctx = context.WithoutCancel(ctx)

	conn, err := db.Open(ctx, j.paths.GetDatabasePath())
	if err != nil {
		j.logger.Error("Failed to open run history", "error", err)
		return
	}
	defer conn.Close()

	outcomes := make([]db.Outcome, 0, len(report.Results))
	for _, res := range report.Results {
		outcomes = append(outcomes, db.Outcome{
			ExternalID:  res.ID,
			Description: res.Description,
			Outcome:     string(res.Outcome),
			Reason:      res.Reason,
		})
	}

	history := db.NewRunHistory(conn)
	runID, err := history.RecordRun(ctx, run, outcomes)
	if err != nil {
		j.logger.Error("Failed to record run history", "error", err)
		return
	}
	if run.RegistryTitle != "" {
		if err := history.SetMetadata(ctx, "last_registry_title", run.RegistryTitle); err != nil {
			j.logger.Warn("Failed to record registry title", "error", err)
		}
	}
	j.logger.Debug("Recorded run", "id", runID)
}

func (j *syncJob) writeMetrics(recorder *metrics.Recorder, run db.Run) {
	if j.cfg.Sync.MetricsFile == "" {
		return
	}
	recorder.Finish(run.StartedAt, run.FinishedAt)
	if err := recorder.WriteTextfile(j.cfg.Sync.MetricsFile); err != nil {
		j.logger.Error("Failed to write metrics", "path", j.cfg.Sync.MetricsFile, "error", err)
	}
}
