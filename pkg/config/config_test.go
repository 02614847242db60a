package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

var configKeys = []string{
	"TRICOUNT_KEY", "TRICOUNT_API_URL", "FIREFLY_HOST", "FIREFLY_TOKEN", "FIREFLY_ACCOUNT_ID",
	"SYNC_DAYS_RANGE", "SYNC_DATA_DIR", "SYNC_LEDGER_PATH", "SYNC_DB_PATH", "SYNC_EXPORT_DIR",
	"SYNC_METRICS_FILE", "SYNC_CATEGORY_MAPPING", "SYNC_CONTENT_IDENTITY", "DEBUG",
}

// clearEnv unsets every key for the test; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeEnvFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, tricount.DefaultBaseURL, cfg.Tricount.APIURL)
	assert.Equal(t, ledger.DefaultRetentionWindow, cfg.Sync.DaysRange)
	assert.Equal(t, ".", cfg.Sync.DataDir)
	assert.Equal(t, "config/category-mapping.yaml", cfg.Sync.CategoryMapping)
	assert.False(t, cfg.Sync.ContentIdentity)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeEnvFile(t, `TRICOUNT_KEY=tABC
FIREFLY_HOST=https://firefly.example.com/
FIREFLY_TOKEN=secret
FIREFLY_ACCOUNT_ID=7
SYNC_DAYS_RANGE=30
SYNC_DATA_DIR=/var/lib/tricount
SYNC_CONTENT_IDENTITY=true
DEBUG=1
`))
	require.NoError(t, err)

	assert.Equal(t, "tABC", cfg.Tricount.Key)
	assert.Equal(t, "https://firefly.example.com", cfg.Firefly.Host)
	assert.Equal(t, "secret", cfg.Firefly.Token)
	assert.Equal(t, "7", cfg.Firefly.AccountID)
	assert.Equal(t, ledger.RetentionWindow(30), cfg.Sync.DaysRange)
	assert.Equal(t, "/var/lib/tricount", cfg.Sync.DataDir)
	assert.True(t, cfg.Sync.ContentIdentity)
	assert.True(t, cfg.Debug)
}

func TestLoadInvalidDaysRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYNC_DAYS_RANGE", "two years")

	_, err := Load(writeEnvFile(t, ""))
	assert.Error(t, err)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Tricount: TricountConfig{Key: "tABC"},
		Firefly:  FireflyConfig{Host: "http://localhost"},
		Sync:     SyncConfig{DaysRange: 0},
	}

	err := cfg.Validate(
		[]string{"tricount", "key"},
		[]string{"firefly", "host"},
		[]string{"firefly", "token"},
		[]string{"sync", "daysRange"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firefly.token")
	assert.Contains(t, err.Error(), "sync.daysRange")
	assert.NotContains(t, err.Error(), "tricount.key")

	cfg.Firefly.Token = "secret"
	cfg.Sync.DaysRange = 30
	assert.NoError(t, cfg.Validate([]string{"firefly", "token"}, []string{"sync", "daysRange"}))
}
