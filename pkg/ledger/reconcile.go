package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly"
)

const (
	// ProvenanceTag marks transactions created by this sync.
	ProvenanceTag = "tricount"

	// DefaultMaxPages caps reconciliation against a destination that never
	// reports its last page.
	DefaultMaxPages = 1000
)

// TransactionLister fetches one page of destination transactions.
type TransactionLister interface {
	ListTransactions(ctx context.Context, start, end civil.Date, page int) (*firefly.TransactionPage, error)
}

// ReconcileOptions bounds a reconciliation scan.
type ReconcileOptions struct {
	Window   RetentionWindow
	Today    civil.Date
	Tag      string // Default: ProvenanceTag
	MaxPages int    // Default: DefaultMaxPages
}

// ReconcileResult summarises a reconciliation scan.
type ReconcileResult struct {
	Start   civil.Date
	End     civil.Date
	Pages   int
	Matched int // tagged splits seen
	Added   int // ids not previously in the ledger
	Capped  bool
	Partial bool
	Err     error
}

// Reconcile merges every sync-tagged transaction Firefly holds inside the
// window into the ledger. Pages are read strictly in order until an empty
// page, the last page, or the page cap. A fetch error stops the scan early
// and keeps what was merged so far.
func (l *Ledger) Reconcile(ctx context.Context, lister TransactionLister, opts ReconcileOptions) ReconcileResult {
	if opts.Tag == "" {
		opts.Tag = ProvenanceTag
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}

	result := ReconcileResult{Start: opts.Window.Start(opts.Today), End: opts.Today}
	l.logger.Info("Reconciling ledger with Firefly III",
		"start", result.Start.String(),
		"end", result.End.String(),
	)

	for page := 1; ; page++ {
		if page > opts.MaxPages {
			result.Capped = true
			l.logger.Warn("Reconciliation stopped at page cap", "max_pages", opts.MaxPages)
			break
		}

		resp, err := lister.ListTransactions(ctx, result.Start, result.End, page)
		if err != nil {
			result.Partial = true
			result.Err = fmt.Errorf("reconcile page %d: %w", page, err)
			l.logger.Error("Reconciliation aborted, continuing with partial ledger",
				"page", page,
				"error", err,
			)
			break
		}
		result.Pages++

		if len(resp.Groups) == 0 {
			break
		}
		l.mergePage(resp, opts.Tag, &result)

		if resp.Pagination.LastPage() {
			break
		}
	}

	l.reconciled = true
	l.logger.Info("Reconciled ledger",
		"pages", result.Pages,
		"matched", result.Matched,
		"added", result.Added,
		"entries", len(l.entries),
		"partial", result.Partial,
	)
	return result
}

func (l *Ledger) mergePage(page *firefly.TransactionPage, tag string, result *ReconcileResult) {
	for _, group := range page.Groups {
		for _, split := range group.Splits {
			if split.ExternalID == "" || !split.HasTag(tag) {
				continue
			}
			date, err := split.SplitDate()
			if err != nil {
				l.logger.Warn("Skipping transaction with invalid date",
					"group_id", group.ID,
					"external_id", split.ExternalID,
					"date", split.Date,
				)
				continue
			}
			result.Matched++
			if !l.Contains(split.ExternalID) {
				result.Added++
			}
			l.entries[split.ExternalID] = date
		}
	}
}
