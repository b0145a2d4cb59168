package domain

import (
	"fmt"
	"strings"
)

// Category is one of the independently configurable statistic types
type Category string

const (
	CategoryShiny Category = "shiny" // primary-trait: shiny flag
	CategoryHundo Category = "hundo" // secondary-trait: all attributes at maximum
	CategoryIV    Category = "iv"    // threshold-filtered: quality score >= threshold
)

// DefaultThreshold is used for threshold-filtered runs without a configured value
const DefaultThreshold = 100.0

// Categories lists every category in reporting order
var Categories = []Category{CategoryShiny, CategoryHundo, CategoryIV}

// ParseCategory parses a category name (case-insensitive)
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category: %q", s)
	}
	return c, nil
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryShiny, CategoryHundo, CategoryIV:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (c Category) String() string {
	return string(c)
}

// Selector is the per-category predicate used by Aggregate
type Selector struct {
	Category  Category
	Threshold float64 // Only used by CategoryIV
}

// Match reports whether the observation counts towards the primary metric
func (s Selector) Match(o *RawObservation) bool {
	switch s.Category {
	case CategoryShiny:
		return o.Shiny
	case CategoryHundo:
		return o.IsPerfect()
	case CategoryIV:
		// Incomplete rows are excluded regardless of threshold
		return o.IsComplete() && o.QualityScore() >= s.Threshold
	}
	return false
}
