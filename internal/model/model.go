// Package model defines the domain types used across the application.
package model

import "time"

// Search represents a user-defined recurring search against the listings site.
type Search struct {
	ID           int64
	Name         string
	URL          string
	EveryMinutes int
	Enabled      bool
	Deleted      bool
	CreatedAt    time.Time
}

// FoundItem records one listing observed for one search. At most one row
// exists per (SearchID, ListingID) pair; the store enforces this.
type FoundItem struct {
	ID        int64
	SearchID  int64
	ListingID string
	// Title is empty when the item was recorded during a search's first
	// run, where detail pages are not fetched.
	Title     string
	CreatedAt time.Time
}

// FilterKind defines the type of notification filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// Filter represents a notification filter attached to a search. Filters
// match against fetched listing titles and only suppress notifications;
// they never affect which listings are recorded as seen.
type Filter struct {
	ID        int64
	SearchID  int64
	Kind      FilterKind
	Value     string
	CreatedAt time.Time
}
