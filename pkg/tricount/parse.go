package tricount

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// timestampLayout is the layout of RegistryEntry.Date.
const timestampLayout = "2006-01-02 15:04:05.000000"

// ParseRegistry extracts the registry title and its entries.
// An entry whose amounts cannot be parsed is kept with Err set, so callers
// can report it without losing the rest of the registry.
func ParseRegistry(resp *RegistryResponse) (string, []Entry, error) {
	registry := findRegistry(resp)
	if registry == nil {
		return "", nil, fmt.Errorf("response contains no registry")
	}

	entries := make([]Entry, 0, len(registry.AllRegistryEntry))
	for _, item := range registry.AllRegistryEntry {
		entries = append(entries, parseEntry(item.RegistryEntry))
	}
	return registry.Title, entries, nil
}

func findRegistry(resp *RegistryResponse) *Registry {
	if resp == nil {
		return nil
	}
	for _, item := range resp.Response {
		if item.Registry != nil {
			return item.Registry
		}
	}
	return nil
}

func parseEntry(raw RegistryEntry) Entry {
	rawCategory := raw.Category
	if raw.CategoryCustom != nil {
		rawCategory = *raw.CategoryCustom
	}

	entry := Entry{
		UUID:        raw.UUID,
		Type:        raw.TypeTransaction,
		PaidBy:      raw.MembershipOwned.DisplayName(),
		Currency:    raw.Amount.Currency,
		Description: raw.Description,
		When:        raw.Date,
		Date:        parseDate(raw.Date),
		RawCategory: rawCategory,
		Category:    CleanCategory(rawCategory),
	}

	amount, err := decimal.NewFromString(raw.Amount.Value)
	if err != nil {
		entry.Err = fmt.Errorf("invalid amount %q: %w", raw.Amount.Value, err)
		return entry
	}
	entry.Total = amount.Neg()

	shares := make(map[string]decimal.Decimal, len(raw.Allocations))
	for _, alloc := range raw.Allocations {
		share, err := decimal.NewFromString(alloc.Amount.Value)
		if err != nil {
			entry.Err = fmt.Errorf("invalid allocation amount %q: %w", alloc.Amount.Value, err)
			return entry
		}
		shares[alloc.Membership.DisplayName()] = share.Abs()
	}
	entry.Shares = shares
	return entry
}

// parseDate returns the calendar date of a registry timestamp, or the zero
// date when it is not parseable.
func parseDate(value string) civil.Date {
	if t, err := time.Parse(timestampLayout, value); err == nil {
		return civil.DateOf(t)
	}
	if len(value) >= 10 {
		if d, err := civil.ParseDate(value[:10]); err == nil {
			return d
		}
	}
	return civil.Date{}
}
