// Package pathutil provides centralized path management for sync state files and directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PathResolver manages paths for the ledger, database, exports, and raw dumps.
type PathResolver struct {
	dataDir      string
	ledgerPath   string
	databasePath string
	exportDir    string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// DataDir is the root directory for all sync state (e.g., ~/.local/share/tricount-sync)
	DataDir string
	// LedgerPath is the path to the JSON dedup ledger
	LedgerPath string
	// DatabasePath is the path to the SQLite database file for run history
	DatabasePath string
	// ExportDir is the directory for registry CSV exports
	ExportDir string
}

// New creates a new PathResolver with the given configuration.
// If LedgerPath is empty, it defaults to {DataDir}/hashes.json
// If DatabasePath is empty, it defaults to {DataDir}/.sync/sync.db
// If ExportDir is empty, it defaults to {DataDir}/exports
func New(config Config) *PathResolver {
	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}

	ledgerPath := config.LedgerPath
	if ledgerPath == "" {
		ledgerPath = filepath.Join(dataDir, "hashes.json")
	}

	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, ".sync", "sync.db")
	}

	exportDir := config.ExportDir
	if exportDir == "" {
		exportDir = filepath.Join(dataDir, "exports")
	}

	return &PathResolver{
		dataDir:      dataDir,
		ledgerPath:   ledgerPath,
		databasePath: dbPath,
		exportDir:    exportDir,
	}
}

// GetDataDir returns the data directory.
func (p *PathResolver) GetDataDir() string {
	return p.dataDir
}

// GetLedgerPath returns the dedup ledger file path.
func (p *PathResolver) GetLedgerPath() string {
	return p.ledgerPath
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetExportDir returns the export directory.
func (p *PathResolver) GetExportDir() string {
	return p.exportDir
}

// GetRawDumpPath returns the path of the raw Tricount response dump.
func (p *PathResolver) GetRawDumpPath() string {
	return filepath.Join(p.dataDir, "response_data.json")
}

var unsafeFileChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)

// GetExportPath returns the CSV export path for a registry title.
// Example: exports/Transactions Lisbon trip.csv
func (p *PathResolver) GetExportPath(title string) (string, error) {
	name := strings.TrimSpace(unsafeFileChars.ReplaceAllString(title, "_"))
	if name == "" || strings.Trim(name, ".") == "" {
		return "", fmt.Errorf("invalid registry title for file name: %q", title)
	}
	return filepath.Join(p.exportDir, fmt.Sprintf("Transactions %s.csv", name)), nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
