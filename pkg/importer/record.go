// Package importer submits source transactions to Firefly III exactly once.
package importer

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/identity"
)

const (
	// DefaultDescription replaces an empty description.
	DefaultDescription = "unlabelled transaction"
	// DefaultCurrency is used when a record carries no currency.
	DefaultCurrency = "EUR"
)

// Record is one financial movement to be imported.
type Record struct {
	ID              string
	PaidBy          string
	Amount          decimal.Decimal
	CurrencyCode    string
	Description     string
	OccurredOn      civil.Date
	InvolvedParties []string
	RawCategory     string
	Category        string
	Malformed       string // why the source entry could not be parsed; reported as errored
}

// NormalizeDescription lower-cases and trims a description.
func NormalizeDescription(desc string) string {
	desc = strings.ToLower(strings.TrimSpace(desc))
	if desc == "" {
		return DefaultDescription
	}
	return desc
}

// Notes renders the payer and involved parties for the notes field.
func (r Record) Notes() string {
	notes := "Paid by: " + r.PaidBy
	if len(r.InvolvedParties) > 0 {
		notes += "\nInvolved: " + strings.Join(r.InvolvedParties, ", ")
	}
	return notes
}

func (r Record) fallback() identity.Fallback {
	return identity.Fallback{
		Date:        r.OccurredOn,
		Description: r.Description,
		Amount:      r.Amount,
		Category:    r.Category,
	}
}

// Outcome is the terminal state of one record.
type Outcome string

const (
	Imported Outcome = "imported"
	Skipped  Outcome = "skipped"
	Errored  Outcome = "errored"
)

// Result is the outcome for one record.
type Result struct {
	ID          string
	Description string
	Outcome     Outcome
	Reason      string
}

// Report tallies one run.
type Report struct {
	Imported int
	Skipped  int
	Errored  int
	Pruned   int
	Results  []Result
}

func (r *Report) add(res Result) {
	switch res.Outcome {
	case Imported:
		r.Imported++
	case Skipped:
		r.Skipped++
	case Errored:
		r.Errored++
	}
	r.Results = append(r.Results, res)
}

// Total returns the number of records processed.
func (r Report) Total() int {
	return r.Imported + r.Skipped + r.Errored
}
