package converter

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/importer"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

// Converter converts Tricount entries to import records.
type Converter struct {
	mapper   *Mapper
	currency string
	today    func() civil.Date
}

// NewConverter creates a new Converter.
// currency is used for entries without one; it falls back to the mapping
// file's default_currency, then importer.DefaultCurrency.
func NewConverter(mapper *Mapper, currency string, today func() civil.Date) *Converter {
	if mapper == nil {
		mapper = newMapper(MappingConfig{})
	}
	if currency == "" {
		currency = mapper.DefaultCurrency()
	}
	if currency == "" {
		currency = importer.DefaultCurrency
	}
	if today == nil {
		today = func() civil.Date { return civil.DateOf(time.Now()) }
	}
	return &Converter{
		mapper:   mapper,
		currency: currency,
		today:    today,
	}
}

// ConvertEntry converts one registry entry.
func (c *Converter) ConvertEntry(entry tricount.Entry) importer.Record {
	date := entry.Date
	if !date.IsValid() {
		date = c.today()
	}

	currency := entry.Currency
	if currency == "" {
		currency = c.currency
	}

	record := importer.Record{
		ID:              entry.UUID,
		PaidBy:          entry.PaidBy,
		Amount:          entry.Total.Abs(),
		CurrencyCode:    currency,
		Description:     importer.NormalizeDescription(entry.Description),
		OccurredOn:      date,
		InvolvedParties: entry.Involved(),
		RawCategory:     entry.RawCategory,
		Category:        c.mapper.FireflyCategory(entry.Category),
	}
	if entry.Err != nil {
		record.Malformed = entry.Err.Error()
	}
	return record
}

// ConvertEntries converts a registry in order.
func (c *Converter) ConvertEntries(entries []tricount.Entry) []importer.Record {
	records := make([]importer.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, c.ConvertEntry(entry))
	}
	return records
}
