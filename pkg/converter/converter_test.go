package converter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/importer"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

const mappingYAML = `
default_currency: CHF
categories:
  - tricount: Food
    firefly: Groceries
  - tricount: Transport
    firefly: ""
`

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "category-mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewMapper(t *testing.T) {
	mapper, err := NewMapper(writeMapping(t, mappingYAML))
	require.NoError(t, err)

	assert.Equal(t, "CHF", mapper.DefaultCurrency())
	assert.Equal(t, "Groceries", mapper.FireflyCategory("Food"))
	assert.Equal(t, "Groceries", mapper.FireflyCategory("food"))
	assert.Equal(t, "", mapper.FireflyCategory("Transport"))
	assert.Equal(t, "Rent", mapper.FireflyCategory("Rent"))
	assert.True(t, mapper.HasMapping("FOOD"))
	assert.False(t, mapper.HasMapping("Rent"))
	assert.Len(t, mapper.GetAllMappings(), 2)
}

func TestNewMapperMissingFile(t *testing.T) {
	mapper, err := NewMapper(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Food", mapper.FireflyCategory("Food"))

	mapper, err = NewMapper("")
	require.NoError(t, err)
	assert.Empty(t, mapper.GetAllMappings())
}

func TestNewMapperInvalid(t *testing.T) {
	_, err := NewMapper(writeMapping(t, "categories: [oops"))
	assert.Error(t, err)

	_, err = NewMapper(writeMapping(t, "categories:\n  - firefly: Groceries\n"))
	assert.Error(t, err)
}

func TestConvertEntry(t *testing.T) {
	mapper, err := NewMapper(writeMapping(t, mappingYAML))
	require.NoError(t, err)
	today := civil.Date{Year: 2024, Month: 3, Day: 1}
	conv := NewConverter(mapper, "", func() civil.Date { return today })

	entry := tricount.Entry{
		UUID:        "abc",
		PaidBy:      "Alice",
		Total:       decimal.RequireFromString("-12.50"),
		Currency:    "EUR",
		Description: "  Dinner at Luigi's ",
		Date:        civil.Date{Year: 2024, Month: 1, Day: 10},
		Shares: map[string]decimal.Decimal{
			"Bob":   decimal.RequireFromString("6.25"),
			"Alice": decimal.RequireFromString("6.25"),
			"Carol": decimal.Zero,
		},
		RawCategory: "🍔Food",
		Category:    "Food",
	}

	rec := conv.ConvertEntry(entry)
	assert.Equal(t, "abc", rec.ID)
	assert.Equal(t, "Alice", rec.PaidBy)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, "EUR", rec.CurrencyCode)
	assert.Equal(t, "dinner at luigi's", rec.Description)
	assert.Equal(t, entry.Date, rec.OccurredOn)
	assert.Equal(t, []string{"Alice", "Bob"}, rec.InvolvedParties)
	assert.Equal(t, "🍔Food", rec.RawCategory)
	assert.Equal(t, "Groceries", rec.Category)
}

func TestConvertEntryDefaults(t *testing.T) {
	today := civil.Date{Year: 2024, Month: 3, Day: 1}

	t.Run("mapping currency", func(t *testing.T) {
		mapper, err := NewMapper(writeMapping(t, mappingYAML))
		require.NoError(t, err)
		rec := NewConverter(mapper, "", func() civil.Date { return today }).ConvertEntry(tricount.Entry{UUID: "x"})

		assert.Equal(t, "CHF", rec.CurrencyCode)
		assert.Equal(t, importer.DefaultDescription, rec.Description)
		assert.Equal(t, today, rec.OccurredOn)
		assert.Empty(t, rec.InvolvedParties)
	})

	t.Run("no mapping", func(t *testing.T) {
		rec := NewConverter(nil, "", func() civil.Date { return today }).ConvertEntry(tricount.Entry{UUID: "x", Category: "Rent"})
		assert.Equal(t, importer.DefaultCurrency, rec.CurrencyCode)
		assert.Equal(t, "Rent", rec.Category)
	})
}

func TestConvertEntries(t *testing.T) {
	conv := NewConverter(nil, "EUR", nil)
	records := conv.ConvertEntries([]tricount.Entry{{UUID: "a"}, {UUID: "b"}})
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
}

func TestConvertEntryMalformed(t *testing.T) {
	conv := NewConverter(nil, "EUR", nil)
	records := conv.ConvertEntries([]tricount.Entry{
		{UUID: "a", Total: decimal.RequireFromString("5")},
		{UUID: "b", Description: "Bus", Err: errors.New(`invalid amount "": can't convert  to decimal`)},
	})
	require.Len(t, records, 2)
	assert.Empty(t, records[0].Malformed)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "bus", records[1].Description)
	assert.Contains(t, records[1].Malformed, "invalid amount")
}
