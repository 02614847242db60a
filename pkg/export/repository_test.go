package export

import (
	"os"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

func sampleEntries() []tricount.Entry {
	return []tricount.Entry{
		{
			UUID:        "abc",
			PaidBy:      "Alice",
			Total:       decimal.RequireFromString("12.50"),
			Currency:    "EUR",
			Description: "Dinner, with wine",
			When:        "2024-01-10 19:30:00.000000",
			Date:        civil.Date{Year: 2024, Month: 1, Day: 10},
			Shares: map[string]decimal.Decimal{
				"Bob":   decimal.RequireFromString("6.25"),
				"Alice": decimal.RequireFromString("6.25"),
			},
			RawCategory: "🍔Food",
			Category:    "Food",
		},
		{
			UUID:     "def",
			PaidBy:   "Bob",
			Total:    decimal.RequireFromString("30"),
			Currency: "EUR",
		},
	}
}

func TestWriteRegistry(t *testing.T) {
	resolver := pathutil.New(pathutil.Config{DataDir: t.TempDir()})
	repo := NewFileSystemRepository(resolver)

	assert.False(t, repo.RegistryExists("Lisbon trip"))

	path, err := repo.WriteRegistry("Lisbon trip", sampleEntries())
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.True(t, repo.RegistryExists("Lisbon trip"))

	rows, err := repo.ReadRegistry("Lisbon trip")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"abc", "Alice", "12.5", "EUR", "Dinner, with wine", "2024-01-10 19:30:00.000000", "Alice, Bob", "Food"}, rows[0])
	assert.Equal(t, []string{"def", "Bob", "30", "EUR", "", "", "", ""}, rows[1])
}

func TestWriteRegistryReplaces(t *testing.T) {
	resolver := pathutil.New(pathutil.Config{DataDir: t.TempDir()})
	repo := NewFileSystemRepository(resolver)

	_, err := repo.WriteRegistry("Trip", sampleEntries())
	require.NoError(t, err)
	path, err := repo.WriteRegistry("Trip", sampleEntries()[:1])
	require.NoError(t, err)

	rows, err := repo.ReadRegistry("Trip")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	dir, err := os.ReadDir(resolver.GetExportDir())
	require.NoError(t, err)
	assert.Len(t, dir, 1, "no temp files left behind: %s", path)
}

func TestWriteRegistryInvalidTitle(t *testing.T) {
	repo := NewFileSystemRepository(pathutil.New(pathutil.Config{DataDir: t.TempDir()}))

	_, err := repo.WriteRegistry("", sampleEntries())
	assert.Error(t, err)
	assert.False(t, repo.RegistryExists(""))
}
