package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	p := New(Config{DataDir: "/data"})

	assert.Equal(t, "/data", p.GetDataDir())
	assert.Equal(t, filepath.Join("/data", "hashes.json"), p.GetLedgerPath())
	assert.Equal(t, filepath.Join("/data", ".sync", "sync.db"), p.GetDatabasePath())
	assert.Equal(t, filepath.Join("/data", "exports"), p.GetExportDir())
	assert.Equal(t, filepath.Join("/data", "response_data.json"), p.GetRawDumpPath())

	assert.Equal(t, ".", New(Config{}).GetDataDir())
}

func TestNewOverrides(t *testing.T) {
	p := New(Config{
		DataDir:      "/data",
		LedgerPath:   "/state/ledger.json",
		DatabasePath: "/state/history.db",
		ExportDir:    "/exports",
	})

	assert.Equal(t, "/state/ledger.json", p.GetLedgerPath())
	assert.Equal(t, "/state/history.db", p.GetDatabasePath())
	assert.Equal(t, "/exports", p.GetExportDir())
}

func TestGetExportPath(t *testing.T) {
	p := New(Config{DataDir: "/data"})

	tests := []struct {
		title   string
		want    string
		wantErr bool
	}{
		{title: "Lisbon trip", want: filepath.Join("/data", "exports", "Transactions Lisbon trip.csv")},
		{title: "Flat 3/B", want: filepath.Join("/data", "exports", "Transactions Flat 3_B.csv")},
		{title: "  ", wantErr: true},
		{title: "..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, err := p.GetExportPath(tt.title)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureParentDir(t *testing.T) {
	root := t.TempDir()
	p := New(Config{DataDir: root})

	file := filepath.Join(root, "a", "b", "c.json")
	require.NoError(t, p.EnsureParentDir(file))
	assert.True(t, p.FileExists(filepath.Join(root, "a", "b")))
	assert.False(t, p.FileExists(file))

	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	assert.True(t, p.FileExists(file))
}
