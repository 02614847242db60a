// Package export writes parsed Tricount registries to CSV files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

// Header is the column layout of an export file.
var Header = []string{"UUID", "Who Paid", "Total", "Currency", "Description", "When", "Involved", "Category"}

// Repository defines the interface for registry export operations.
type Repository interface {
	// WriteRegistry replaces the export for title and returns its path
	WriteRegistry(title string, entries []tricount.Entry) (string, error)

	// ReadRegistry reads the rows of an export, header excluded
	ReadRegistry(title string) ([][]string, error)

	// RegistryExists checks if an export exists for title
	RegistryExists(title string) bool
}

// FileSystemRepository is a file system implementation of Repository.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
}

// NewFileSystemRepository creates a new FileSystemRepository.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
	}
}

// WriteRegistry writes all entries to "Transactions <title>.csv".
// The file is replaced atomically.
func (r *FileSystemRepository) WriteRegistry(title string, entries []tricount.Entry) (string, error) {
	filePath, err := r.pathResolver.GetExportPath(title)
	if err != nil {
		return "", fmt.Errorf("failed to get export path: %w", err)
	}

	if err := r.pathResolver.EnsureParentDir(filePath); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, entry := range entries {
		if err := w.Write(row(entry)); err != nil {
			return "", fmt.Errorf("failed to write entry %s: %w", entry.UUID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to encode CSV: %w", err)
	}

	if err := writeFileAtomic(filePath, buf.Bytes()); err != nil {
		return "", err
	}

	return filePath, nil
}

// ReadRegistry reads the rows of an export file.
func (r *FileSystemRepository) ReadRegistry(title string) ([][]string, error) {
	filePath, err := r.pathResolver.GetExportPath(title)
	if err != nil {
		return nil, fmt.Errorf("failed to get export path: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil
}

// RegistryExists checks if an export exists for title.
func (r *FileSystemRepository) RegistryExists(title string) bool {
	filePath, err := r.pathResolver.GetExportPath(title)
	if err != nil {
		return false
	}
	return r.pathResolver.FileExists(filePath)
}

func row(e tricount.Entry) []string {
	return []string{
		e.UUID,
		e.PaidBy,
		e.Total.String(),
		e.Currency,
		e.Description,
		e.When,
		strings.Join(e.Involved(), ", "),
		e.Category,
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
