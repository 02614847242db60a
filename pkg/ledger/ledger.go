// Package ledger keeps the persisted record of transactions already accepted
// by Firefly III, so re-running a sync never submits the same id twice.
//
// The file is a JSON object mapping transaction id to the date the
// transaction occurred (YYYY-MM-DD). It is only ever a cache of what Firefly
// holds: losing it means some transactions are re-submitted and rejected by
// Firefly's own duplicate detection, never that data is lost or doubled.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
)

// RetentionWindow is the number of days looked back when reconciling against
// Firefly, and the number of days an entry survives before pruning.
type RetentionWindow int

// DefaultRetentionWindow is two years.
const DefaultRetentionWindow RetentionWindow = 730

// Validate checks the window is usable.
func (w RetentionWindow) Validate() error {
	if w <= 0 {
		return fmt.Errorf("retention window must be positive, got %d days", int(w))
	}
	return nil
}

// Start returns the first day inside the window ending today.
func (w RetentionWindow) Start(today civil.Date) civil.Date {
	return today.AddDays(-int(w))
}

// Today returns the current local date.
func Today() civil.Date {
	return civil.DateOf(time.Now())
}

// Ledger maps transaction ids to the date they occurred.
// It is owned by a single import run and is not safe for concurrent use.
type Ledger struct {
	path       string
	logger     *slog.Logger
	entries    map[string]civil.Date
	reconciled bool
}

// New creates an empty ledger persisted at path.
func New(path string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		path:    path,
		logger:  logger,
		entries: make(map[string]civil.Date),
	}
}

// Path returns the file the ledger is persisted to.
func (l *Ledger) Path() string {
	return l.path
}

// Load replaces the in-memory entries with the persisted ones.
// A missing or unreadable file leaves the ledger empty; both are logged and
// never returned as errors because the ledger can be rebuilt by Reconcile.
func (l *Ledger) Load() error {
	l.entries = make(map[string]civil.Date)

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Info("No ledger file, starting empty", "path", l.path)
		return nil
	}
	if err != nil {
		l.logger.Warn("Failed to read ledger, starting empty", "path", l.path, "error", err)
		return nil
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		l.logger.Warn("Failed to parse ledger, starting empty", "path", l.path, "error", err)
		return nil
	}

	for id, value := range raw {
		date, err := civil.ParseDate(value)
		if err != nil {
			l.logger.Warn("Dropping ledger entry with invalid date", "id", id, "date", value)
			continue
		}
		l.entries[id] = date
	}

	l.logger.Info("Loaded ledger", "path", l.path, "entries", len(l.entries))
	return nil
}

// Save writes the full ledger, replacing the previous file atomically.
func (l *Ledger) Save() error {
	raw := make(map[string]string, len(l.entries))
	for id, date := range l.entries {
		raw[id] = date.String()
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := writeFileAtomic(l.path, data); err != nil {
		return err
	}

	l.logger.Debug("Saved ledger", "path", l.path, "entries", len(l.entries))
	return nil
}

// Contains reports whether id has already been accepted by Firefly.
func (l *Ledger) Contains(id string) bool {
	_, ok := l.entries[id]
	return ok
}

// Record marks id as accepted on date.
func (l *Ledger) Record(id string, date civil.Date) {
	l.entries[id] = date
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entries.
func (l *Ledger) Entries() map[string]civil.Date {
	out := make(map[string]civil.Date, len(l.entries))
	for id, date := range l.entries {
		out[id] = date
	}
	return out
}

// Span returns the oldest and newest entry dates. ok is false when empty.
func (l *Ledger) Span() (oldest, newest civil.Date, ok bool) {
	for _, date := range l.entries {
		if !ok || date.Before(oldest) {
			oldest = date
		}
		if !ok || date.After(newest) {
			newest = date
		}
		ok = true
	}
	return oldest, newest, ok
}

// Prune removes entries dated strictly before the start of window and
// returns how many were removed.
func (l *Ledger) Prune(window RetentionWindow, today civil.Date) int {
	cutoff := window.Start(today)
	before := len(l.entries)

	for id, date := range l.entries {
		if date.Before(cutoff) {
			delete(l.entries, id)
		}
	}

	removed := before - len(l.entries)
	l.logger.Info("Pruned ledger",
		"before", before,
		"kept", len(l.entries),
		"removed", removed,
		"days", int(window),
	)
	return removed
}

// Reconciled reports whether Reconcile has run against Firefly.
func (l *Ledger) Reconciled() bool {
	return l.reconciled
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
