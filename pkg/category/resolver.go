// Package category maps category names to Firefly III category ids for the
// duration of one import run.
package category

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly"
)

// maxHintDistance is the largest edit distance reported as a possible typo
// when a new category is created.
const maxHintDistance = 2

// Directory looks up and creates categories on the destination.
type Directory interface {
	ListCategories(ctx context.Context) ([]firefly.Category, error)
	CreateCategory(ctx context.Context, name string) (firefly.Category, error)
}

// Resolver caches categories by case-folded name.
// A nil cached category means the destination refused the name for this run.
type Resolver struct {
	dir    Directory
	logger *slog.Logger
	cache  map[string]*firefly.Category
}

// NewResolver creates a Resolver with an empty cache.
func NewResolver(dir Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*firefly.Category),
	}
}

// Resolve returns the destination category for name, creating it when it
// does not exist. The returned category carries the destination's spelling.
// A nil category with a nil error means "no category".
// Transport failures are returned and not cached.
func (r *Resolver) Resolve(ctx context.Context, name string) (*firefly.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	key := strings.ToLower(name)
	if cat, ok := r.cache[key]; ok {
		return cat, nil
	}

	existing, err := r.dir.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			cat := c
			r.cache[key] = &cat
			return &cat, nil
		}
	}

	attrs := []any{"name", name}
	if closest, dist, ok := closestName(name, existing); ok {
		attrs = append(attrs, "closest_existing", closest, "distance", dist)
	}
	r.logger.Info("Creating category", attrs...)

	created, err := r.dir.CreateCategory(ctx, name)
	if firefly.IsValidation(err) {
		r.logger.Warn("Category rejected by Firefly III, importing without it", "name", name, "error", err)
		r.cache[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create category %q: %w", name, err)
	}

	r.cache[key] = &created
	return &created, nil
}

// Cached returns the number of names resolved so far, including refusals.
func (r *Resolver) Cached() int {
	return len(r.cache)
}

// closestName finds the existing category nearest to name within
// maxHintDistance edits.
func closestName(name string, existing []firefly.Category) (string, int, bool) {
	best, bestDist := "", maxHintDistance+1
	lower := strings.ToLower(name)
	for _, c := range existing {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(c.Name))
		if d < bestDist {
			best, bestDist = c.Name, d
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestDist, true
}
