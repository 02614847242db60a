package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/identity"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
)

// ErrNotReconciled is returned when the ledger was never reconciled against
// the destination.
var ErrNotReconciled = errors.New("ledger has not been reconciled")

// Reasons attached to non-imported results.
const (
	ReasonMissingID = "missing identifier"
	ReasonInLedger  = "already imported"
	ReasonDuplicate = "rejected as duplicate"
	ReasonNegative  = "negative amount"
	ReasonMalformed = "malformed entry"
	ReasonCancelled = "cancelled"
	ReasonDryRun    = "dry run"
)

// Destination stores transactions.
type Destination interface {
	StoreTransaction(ctx context.Context, req firefly.StoreTransactionRequest) (*firefly.TransactionGroup, error)
}

// CategoryResolver maps a category name to a destination id.
type CategoryResolver interface {
	Resolve(ctx context.Context, name string) (*firefly.Category, error)
}

// Options configures an Engine.
type Options struct {
	SourceAccountID string
	Tags            []string               // Default: ["imported", ledger.ProvenanceTag]
	RetentionWindow ledger.RetentionWindow // Default: ledger.DefaultRetentionWindow
	Today           func() civil.Date      // Default: civil.DateOf(time.Now())
	ContentIdentity bool                   // fingerprint records without an id
	DryRun          bool                   // never submit or save
	Logger          *slog.Logger
}

// Engine is the state of one import run.
type Engine struct {
	dest   Destination
	ledger *ledger.Ledger
	cats   CategoryResolver
	opts   Options
	logger *slog.Logger
}

// New creates an Engine. The ledger must be loaded and reconciled before Run.
func New(dest Destination, led *ledger.Ledger, cats CategoryResolver, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Tags) == 0 {
		opts.Tags = []string{"imported", ledger.ProvenanceTag}
	}
	if opts.RetentionWindow == 0 {
		opts.RetentionWindow = ledger.DefaultRetentionWindow
	}
	if opts.Today == nil {
		opts.Today = ledger.Today
	}
	return &Engine{
		dest:   dest,
		ledger: led,
		cats:   cats,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Run processes records in order. Every record ends in exactly one outcome.
// Per-record failures are reported in the Report, never returned.
func (e *Engine) Run(ctx context.Context, records []Record) (Report, error) {
	if !e.ledger.Reconciled() {
		return Report{}, ErrNotReconciled
	}
	if err := e.opts.RetentionWindow.Validate(); err != nil {
		return Report{}, err
	}

	var report Report
	for i, rec := range records {
		if ctx.Err() != nil {
			for _, rest := range records[i:] {
				report.add(Result{ID: rest.ID, Description: rest.Description, Outcome: Errored, Reason: ReasonCancelled})
			}
			e.logger.Warn("Import cancelled", "remaining", len(records)-i, "error", ctx.Err())
			break
		}
		report.add(e.process(ctx, rec))
	}

	if e.opts.DryRun {
		return report, nil
	}

	e.save()
	today := e.opts.Today()
	report.Pruned = e.ledger.Prune(e.opts.RetentionWindow, today)
	if report.Pruned > 0 {
		e.logger.Info("Pruned ledger", "removed", report.Pruned, "before", e.opts.RetentionWindow.Start(today))
	}
	e.save()

	return report, nil
}

func (e *Engine) process(ctx context.Context, rec Record) Result {
	id := strings.TrimSpace(rec.ID)
	if e.opts.ContentIdentity {
		id = identity.Resolve(id, rec.fallback())
	}
	res := Result{ID: id, Description: rec.Description}

	if id == "" {
		e.logger.Warn("Skipping record without identifier", "description", rec.Description, "date", rec.OccurredOn)
		res.Outcome, res.Reason = Skipped, ReasonMissingID
		return res
	}

	if rec.Malformed != "" {
		e.logger.Error("Rejecting malformed entry", "id", id, "error", rec.Malformed)
		res.Outcome, res.Reason = Errored, ReasonMalformed+": "+rec.Malformed
		return res
	}

	if e.ledger.Contains(id) {
		e.logger.Debug("Already imported", "id", id)
		res.Outcome, res.Reason = Skipped, ReasonInLedger
		return res
	}

	if rec.Amount.IsNegative() {
		e.logger.Error("Rejecting negative amount", "id", id, "amount", rec.Amount)
		res.Outcome, res.Reason = Errored, ReasonNegative
		return res
	}

	if e.opts.DryRun {
		e.logger.Info("Would import", "id", id, "description", rec.Description, "amount", rec.Amount)
		res.Outcome, res.Reason = Skipped, ReasonDryRun
		return res
	}

	date := rec.OccurredOn
	if !date.IsValid() {
		date = e.opts.Today()
	}

	split := firefly.TransactionSplit{
		Type:         firefly.TypeWithdrawal,
		Date:         date.String(),
		Amount:       rec.Amount.String(),
		CurrencyCode: rec.CurrencyCode,
		Description:  NormalizeDescription(rec.Description),
		SourceID:     e.opts.SourceAccountID,
		ExternalID:   id,
		Tags:         e.opts.Tags,
		Notes:        rec.Notes(),
	}
	if split.CurrencyCode == "" {
		split.CurrencyCode = DefaultCurrency
	}

	cat, err := e.cats.Resolve(ctx, rec.Category)
	if err != nil {
		e.logger.Warn("Category lookup failed, importing without category", "id", id, "category", rec.Category, "error", err)
	} else if cat != nil {
		split.CategoryName = cat.Name
	}

	_, err = e.dest.StoreTransaction(ctx, firefly.StoreTransactionRequest{
		ErrorIfDuplicateHash: true,
		Transactions:         []firefly.TransactionSplit{split},
	})
	return e.classify(res, date, err)
}

func (e *Engine) classify(res Result, date civil.Date, err error) Result {
	if err == nil {
		e.ledger.Record(res.ID, date)
		e.logger.Info("Imported transaction", "id", res.ID, "description", res.Description)
		res.Outcome = Imported
		return res
	}

	switch match := firefly.ClassifyDuplicate(err); match {
	case firefly.DuplicateByField, firefly.DuplicateByMessage:
		if match == firefly.DuplicateByMessage {
			e.logger.Warn("Duplicate recognised from error message only", "id", res.ID, "error", err)
		}
		e.ledger.Record(res.ID, date)
		e.logger.Info("Destination already has transaction", "id", res.ID)
		res.Outcome, res.Reason = Skipped, ReasonDuplicate
		return res
	}

	if firefly.IsValidation(err) {
		e.logger.Error("Destination rejected transaction", "id", res.ID, "error", err)
		res.Outcome, res.Reason = Errored, validationReason(err)
		return res
	}

	e.logger.Error("Failed to submit transaction", "id", res.ID, "error", err)
	res.Outcome, res.Reason = Errored, err.Error()
	return res
}

func (e *Engine) save() {
	if err := e.ledger.Save(); err != nil {
		e.logger.Error("Failed to save ledger", "path", e.ledger.Path(), "error", err)
	}
}

// validationReason flattens the field errors of a 422 into one line.
func validationReason(err error) string {
	apiErr, ok := firefly.AsAPIError(err)
	if !ok {
		return err.Error()
	}
	reason := apiErr.Message
	for field, messages := range apiErr.Errors {
		for _, msg := range messages {
			reason += fmt.Sprintf("; %s: %s", field, msg)
		}
	}
	return reason
}
