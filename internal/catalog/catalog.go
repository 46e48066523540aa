// Package catalog filters and orders tool lists for browsing.
package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/toollender/toollender/internal/domain"
)

// Sort orders.
const (
	SortNone   = ""
	SortName   = "name"
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Filter selects tools for display.
type Filter struct {
	// Association limits tools to one category. Empty or "All" keeps every tool.
	Association string
	// Query matches name or description, case-insensitively.
	Query string
	// HideOnHold drops tools their owner put on hold.
	HideOnHold bool
	// Sort is one of the Sort constants. SortNone keeps the input order.
	Sort string
}

// ValidSort reports whether s is a known sort order.
func ValidSort(s string) bool {
	switch s {
	case SortNone, SortName, SortNewest, SortOldest:
		return true
	}
	return false
}

// Browse returns the tools matching f. The input is not modified and, apart
// from Sort, the input order is kept.
func Browse(tools []domain.Tool, f Filter) []domain.Tool {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.Tool, 0, len(tools))
	for _, t := range tools {
		if !domain.IsAll(f.Association) && t.Category != f.Association {
			continue
		}
		if f.HideOnHold && t.IsOnHold {
			continue
		}
		if query != "" && !matches(t, query) {
			continue
		}
		out = append(out, t)
	}

	switch f.Sort {
	case SortName:
		slices.SortStableFunc(out, func(a, b domain.Tool) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	case SortNewest:
		slices.SortStableFunc(out, func(a, b domain.Tool) int { return compareCreated(a, b, true) })
	case SortOldest:
		slices.SortStableFunc(out, func(a, b domain.Tool) int { return compareCreated(a, b, false) })
	}
	return out
}

func matches(t domain.Tool, query string) bool {
	return strings.Contains(strings.ToLower(t.Name), query) ||
		strings.Contains(strings.ToLower(t.Description), query)
}

// compareCreated orders by creation time. Tools without one sort last either
// way.
func compareCreated(a, b domain.Tool, newestFirst bool) int {
	switch {
	case a.CreatedAt == nil && b.CreatedAt == nil:
		return 0
	case a.CreatedAt == nil:
		return 1
	case b.CreatedAt == nil:
		return -1
	}
	c := a.CreatedAt.Compare(*b.CreatedAt)
	if newestFirst {
		return -c
	}
	return c
}
