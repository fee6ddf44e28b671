package scan

import (
	"context"
	"sort"
	"strings"

	"github.com/webguard-sec/webguard/internal/scanner"
)

// Filter narrows a result search. Zero values match everything.
type Filter struct {
	// URLContains matches a substring of the scanned URL, ignoring ASCII case.
	URLContains string
	// OwnerID restricts results to one user.
	OwnerID int64
	// Severity keeps only results with at least one issue of this severity.
	Severity scanner.Severity
	// Limit caps the number of results; 0 means no limit.
	Limit int
}

// Matches applies the filter to a single result. Repositories that cannot
// express the filter in a query use it directly.
func (f Filter) Matches(r *Result) bool {
	if f.URLContains != "" && !strings.Contains(foldASCII(r.URL()), foldASCII(f.URLContains)) {
		return false
	}
	if f.OwnerID != 0 && r.OwnerID() != f.OwnerID {
		return false
	}
	if f.Severity != "" && r.CountBySeverity(f.Severity) == 0 {
		return false
	}
	return true
}

// foldASCII lower-cases A-Z only, matching SQLite's LIKE so every back-end
// returns the same search results.
func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// SortNewestFirst orders results by creation time, then id, descending.
func SortNewestFirst(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreatedAt().Equal(b.CreatedAt()) {
			return a.CreatedAt().After(b.CreatedAt())
		}
		return a.ID() > b.ID()
	})
}

// Repository defines the interface for scan result persistence.
// Every list is ordered newest first.
type Repository interface {
	// Save stores a new result and its issues, assigning ids
	Save(ctx context.Context, result *Result) error

	// FindByID retrieves a result with its issues
	FindByID(ctx context.Context, id int64) (*Result, error)

	// FindRecent retrieves the latest results; limit <= 0 returns all
	FindRecent(ctx context.Context, limit int) ([]*Result, error)

	// FindByOwner retrieves every result owned by a user
	FindByOwner(ctx context.Context, ownerID int64) ([]*Result, error)

	// FindByURL retrieves every result for an exact URL
	FindByURL(ctx context.Context, url string) ([]*Result, error)

	// Search retrieves results matching filter
	Search(ctx context.Context, filter Filter) ([]*Result, error)

	// Delete removes a result and its issues
	Delete(ctx context.Context, id int64) error
}
