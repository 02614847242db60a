// Package config provides configuration management for tricount-sync.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

// Config represents the application configuration.
type Config struct {
	Tricount TricountConfig
	Firefly  FireflyConfig
	Sync     SyncConfig
	Debug    bool
}

// TricountConfig represents Tricount API configuration.
type TricountConfig struct {
	Key    string
	APIURL string
}

// FireflyConfig represents Firefly III API configuration.
type FireflyConfig struct {
	Host      string
	Token     string
	AccountID string
}

// SyncConfig represents local state and behaviour of a sync run.
type SyncConfig struct {
	DaysRange       ledger.RetentionWindow
	DataDir         string
	LedgerPath      string
	DBPath          string
	ExportDir       string
	MetricsFile     string
	CategoryMapping string
	ContentIdentity bool
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	// Load .env file
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	days, err := parseIntEnv("SYNC_DAYS_RANGE", int(ledger.DefaultRetentionWindow))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_DAYS_RANGE: %w", err)
	}

	config := &Config{
		Tricount: TricountConfig{
			Key:    os.Getenv("TRICOUNT_KEY"),
			APIURL: getEnvOrDefault("TRICOUNT_API_URL", tricount.DefaultBaseURL),
		},
		Firefly: FireflyConfig{
			Host:      strings.TrimSuffix(os.Getenv("FIREFLY_HOST"), "/"),
			Token:     os.Getenv("FIREFLY_TOKEN"),
			AccountID: os.Getenv("FIREFLY_ACCOUNT_ID"),
		},
		Sync: SyncConfig{
			DaysRange:       ledger.RetentionWindow(days),
			DataDir:         getEnvOrDefault("SYNC_DATA_DIR", "."),
			LedgerPath:      os.Getenv("SYNC_LEDGER_PATH"),
			DBPath:          os.Getenv("SYNC_DB_PATH"),
			ExportDir:       os.Getenv("SYNC_EXPORT_DIR"),
			MetricsFile:     os.Getenv("SYNC_METRICS_FILE"),
			CategoryMapping: getEnvOrDefault("SYNC_CATEGORY_MAPPING", "config/category-mapping.yaml"),
			ContentIdentity: parseBoolEnv("SYNC_CONTENT_IDENTITY"),
		},
		Debug: parseBoolEnv("DEBUG"),
	}

	return config, nil
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "tricount":
			switch path[1] {
			case "key":
				value = c.Tricount.Key
			case "apiUrl":
				value = c.Tricount.APIURL
			}
		case "firefly":
			switch path[1] {
			case "host":
				value = c.Firefly.Host
			case "token":
				value = c.Firefly.Token
			case "accountId":
				value = c.Firefly.AccountID
			}
		case "sync":
			switch path[1] {
			case "dataDir":
				value = c.Sync.DataDir
			case "daysRange":
				if c.Sync.DaysRange.Validate() == nil {
					value = "set"
				}
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseBoolEnv reports whether key is set to a true value.
func parseBoolEnv(key string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && parsed
}
