package importer

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/category"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly/fireflytest"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/identity"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

var today = civil.Date{Year: 2024, Month: 1, Day: 20}

type harness struct {
	srv       *fireflytest.Server
	client    *firefly.Client
	ledger    *ledger.Ledger
	accountID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := fireflytest.New(t)
	accountID := srv.AddAccount("Checking", "asset")
	client := firefly.NewClient(firefly.ClientConfig{Host: srv.URL, Token: srv.Token})

	return &harness{
		srv:       srv,
		client:    client,
		ledger:    ledger.New(filepath.Join(t.TempDir(), "hashes.json"), nil),
		accountID: accountID,
	}
}

// engine loads and reconciles the ledger, then builds an engine over it,
// mirroring the start of a run.
func (h *harness) engine(t *testing.T, opts Options) *Engine {
	t.Helper()

	require.NoError(t, h.ledger.Load())
	result := h.ledger.Reconcile(context.Background(), h.client, ledger.ReconcileOptions{Window: 30, Today: today})
	require.NoError(t, result.Err)

	opts.SourceAccountID = h.accountID
	opts.RetentionWindow = 30
	opts.Today = func() civil.Date { return today }
	return New(h.client, h.ledger, category.NewResolver(h.client, nil), opts)
}

// reload simulates a later run reading the ledger file from disk.
func (h *harness) reload() {
	h.ledger = ledger.New(h.ledger.Path(), nil)
}

func dinner() Record {
	return Record{
		ID:              "abc",
		PaidBy:          "Alice",
		Amount:          decimal.RequireFromString("12.50"),
		CurrencyCode:    "EUR",
		Description:     "Dinner",
		OccurredOn:      civil.Date{Year: 2024, Month: 1, Day: 10},
		InvolvedParties: []string{"Alice", "Bob"},
		RawCategory:     "🍔Food",
		Category:        tricount.CleanCategory("🍔Food"),
	}
}

func TestRunImportsNewRecord(t *testing.T) {
	h := newHarness(t)

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Errored)
	require.Len(t, report.Results, 1)
	assert.Equal(t, Imported, report.Results[0].Outcome)

	assert.True(t, h.ledger.Contains("abc"))
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 10}, h.ledger.Entries()["abc"])

	require.Len(t, h.srv.Categories(), 1)
	assert.Equal(t, "Food", h.srv.Categories()[0].Name)

	splits := h.srv.Transactions()
	require.Len(t, splits, 1)
	split := splits[0]
	assert.Equal(t, firefly.TypeWithdrawal, split.Type)
	assert.Equal(t, "abc", split.ExternalID)
	assert.Equal(t, "dinner", split.Description)
	assert.Equal(t, "EUR", split.CurrencyCode)
	assert.Equal(t, h.accountID, split.SourceID)
	assert.Equal(t, "Food", split.CategoryName)
	assert.Equal(t, "Paid by: Alice\nInvolved: Alice, Bob", split.Notes)
	assert.ElementsMatch(t, []string{"imported", "tricount"}, split.Tags)
	assert.True(t, decimal.RequireFromString(split.Amount).Equal(decimal.RequireFromString("12.50")))

	// Persisted on disk.
	h.reload()
	require.NoError(t, h.ledger.Load())
	assert.True(t, h.ledger.Contains("abc"))
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	records := []Record{dinner(), {
		ID:          "def",
		PaidBy:      "Bob",
		Amount:      decimal.RequireFromString("30"),
		Description: "Taxi",
		OccurredOn:  civil.Date{Year: 2024, Month: 1, Day: 12},
	}}

	first, err := h.engine(t, Options{}).Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)
	require.Equal(t, 2, h.srv.StoreCalls())

	h.reload()
	second, err := h.engine(t, Options{}).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Errored)
	assert.Equal(t, 2, h.srv.StoreCalls(), "no POST for records already in the ledger")
	for _, res := range second.Results {
		assert.Equal(t, ReasonInLedger, res.Reason)
	}
}

func TestRunReconcilesLostLedger(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	// Ledger file lost: reconciliation restores it from Firefly.
	h.ledger = ledger.New(filepath.Join(t.TempDir(), "hashes.json"), nil)
	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, h.srv.StoreCalls())
}

func TestRunAbsorbsDuplicateRejection(t *testing.T) {
	tests := []struct {
		name        string
		messageOnly bool
	}{
		{"field error", false},
		{"message only", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.srv.DuplicateMessageOnly = tt.messageOnly
			// Imported outside the reconcile window, so only Firefly knows it.
			h.srv.AddTransaction(firefly.TransactionSplit{
				Type:        firefly.TypeWithdrawal,
				Date:        "2023-01-01",
				Amount:      "12.50",
				Description: "dinner",
				ExternalID:  "abc",
				Tags:        []string{"imported", "tricount"},
			})

			report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
			require.NoError(t, err)

			assert.Equal(t, 0, report.Imported)
			assert.Equal(t, 1, report.Skipped)
			assert.Equal(t, ReasonDuplicate, report.Results[0].Reason)
			assert.True(t, h.ledger.Contains("abc"))
		})
	}
}

func TestRunValidationError(t *testing.T) {
	h := newHarness(t)
	h.srv.FailStore("abc", http.StatusUnprocessableEntity, "The amount field is invalid.",
		map[string][]string{"transactions.0.amount": {"The amount field is invalid."}})

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errored)
	assert.Contains(t, report.Results[0].Reason, "The amount field is invalid.")
	assert.Contains(t, report.Results[0].Reason, "transactions.0.amount")
	assert.False(t, h.ledger.Contains("abc"))
}

func TestRunTransportErrorContinues(t *testing.T) {
	h := newHarness(t)
	h.srv.FailStore("abc", http.StatusInternalServerError, "Server Error", nil)

	second := dinner()
	second.ID = "ghi"

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner(), second})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 1, report.Imported)
	assert.False(t, h.ledger.Contains("abc"))
	assert.True(t, h.ledger.Contains("ghi"))
}

func TestRunSkipsMissingID(t *testing.T) {
	h := newHarness(t)
	rec := dinner()
	rec.ID = ""

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, ReasonMissingID, report.Results[0].Reason)
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, 0, h.srv.StoreCalls())
}

func TestRunContentIdentity(t *testing.T) {
	h := newHarness(t)
	rec := dinner()
	rec.ID = ""

	report, err := h.engine(t, Options{ContentIdentity: true}).Run(context.Background(), []Record{rec})
	require.NoError(t, err)

	want := identity.Fingerprint(identity.Fallback{
		Date:        rec.OccurredOn,
		Description: rec.Description,
		Amount:      rec.Amount,
		Category:    rec.Category,
	})
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, want, report.Results[0].ID)
	assert.True(t, h.ledger.Contains(want))
	assert.Equal(t, want, h.srv.Transactions()[0].ExternalID)
}

func TestRunNegativeAmount(t *testing.T) {
	h := newHarness(t)
	rec := dinner()
	rec.Amount = decimal.RequireFromString("-5")

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, ReasonNegative, report.Results[0].Reason)
	assert.Equal(t, 0, h.srv.StoreCalls())
}

func TestRunRejectedCategory(t *testing.T) {
	h := newHarness(t)
	h.srv.RejectCategory("Food")
	second := dinner()
	second.ID = "ghi"

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner(), second})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, h.srv.CategoryCreates(), "rejected name is not retried")
	for _, split := range h.srv.Transactions() {
		assert.Empty(t, split.CategoryName)
	}
}

func TestRunRefusesUnreconciledLedger(t *testing.T) {
	h := newHarness(t)
	engine := New(h.client, h.ledger, category.NewResolver(h.client, nil), Options{})

	report, err := engine.Run(context.Background(), []Record{dinner()})
	assert.ErrorIs(t, err, ErrNotReconciled)
	assert.Equal(t, 0, report.Total())
	assert.Equal(t, 0, h.srv.StoreCalls())
}

func TestRunPrunesAfterImport(t *testing.T) {
	h := newHarness(t)
	h.ledger.Record("old", civil.Date{Year: 2023, Month: 6, Day: 1})
	require.NoError(t, h.ledger.Save())

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pruned)
	h.reload()
	require.NoError(t, h.ledger.Load())
	assert.False(t, h.ledger.Contains("old"))
	assert.True(t, h.ledger.Contains("abc"))
}

func TestRunDryRun(t *testing.T) {
	h := newHarness(t)

	report, err := h.engine(t, Options{DryRun: true}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, ReasonDryRun, report.Results[0].Reason)
	assert.Equal(t, 0, h.srv.StoreCalls())
	assert.Equal(t, 0, h.srv.CategoryCreates())
	assert.False(t, h.ledger.Contains("abc"))
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t)
	engine := h.engine(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.Run(ctx, []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, ReasonCancelled, report.Results[0].Reason)
	assert.Equal(t, 0, h.srv.StoreCalls())
}

type failingDestination struct{}

func (failingDestination) StoreTransaction(context.Context, firefly.StoreTransactionRequest) (*firefly.TransactionGroup, error) {
	return nil, errors.New("connection refused")
}

func TestRunUnexpectedError(t *testing.T) {
	h := newHarness(t)
	engine := h.engine(t, Options{})
	engine.dest = failingDestination{}

	report, err := engine.Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, "connection refused", report.Results[0].Reason)
}

func TestRecordNotes(t *testing.T) {
	assert.Equal(t, "Paid by: Alice", Record{PaidBy: "Alice"}.Notes())
	assert.Equal(t, "Paid by: Alice\nInvolved: Bob", Record{PaidBy: "Alice", InvolvedParties: []string{"Bob"}}.Notes())
}

func TestNormalizeDescription(t *testing.T) {
	assert.Equal(t, "dinner", NormalizeDescription("  Dinner "))
	assert.Equal(t, DefaultDescription, NormalizeDescription("   "))
}

func TestRunMalformedRecordDoesNotStopRun(t *testing.T) {
	h := newHarness(t)
	bad := Record{ID: "bad", Description: "bus", Malformed: `invalid amount "": can't convert  to decimal`}

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{bad, dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 2, report.Total())
	assert.Equal(t, Errored, report.Results[0].Outcome)
	assert.Contains(t, report.Results[0].Reason, ReasonMalformed)
	assert.Contains(t, report.Results[0].Reason, "invalid amount")
	assert.Equal(t, Imported, report.Results[1].Outcome)

	assert.False(t, h.ledger.Contains("bad"))
	assert.Equal(t, 1, h.srv.StoreCalls())
}

func TestRunSkipsBlankID(t *testing.T) {
	h := newHarness(t)
	rec := dinner()
	rec.ID = "   "

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, ReasonMissingID, report.Results[0].Reason)
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, 0, h.srv.StoreCalls())
}

func TestRunUsesDestinationCategorySpelling(t *testing.T) {
	h := newHarness(t)
	h.srv.AddCategory("food")

	report, err := h.engine(t, Options{}).Run(context.Background(), []Record{dinner()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 0, h.srv.CategoryCreates())
	require.Len(t, h.srv.Transactions(), 1)
	assert.Equal(t, "food", h.srv.Transactions()[0].CategoryName)
}
