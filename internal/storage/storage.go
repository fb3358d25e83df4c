// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"github.com/blakev/ksl-april/internal/model"
)

// ErrDuplicate is returned by RecordFound when the (search, listing) pair
// has already been recorded. Callers treat it as "not new": the first
// writer wins and later observers skip notification.
var ErrDuplicate = errors.New("found item already recorded")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSearch(ctx context.Context, s *model.Search) error
	GetSearch(ctx context.Context, id int64) (*model.Search, error)
	// ListSearches returns all searches that are not soft-deleted,
	// including disabled ones.
	ListSearches(ctx context.Context) ([]model.Search, error)
	UpdateSearch(ctx context.Context, s *model.Search) error
	UndeleteAll(ctx context.Context) error

	HasFound(ctx context.Context, searchID int64, listingID string) (bool, error)
	RecordFound(ctx context.Context, item *model.FoundItem) error
	CountFound(ctx context.Context, searchID int64) (int, error)
	LastFound(ctx context.Context, searchID int64) (*model.FoundItem, error)
	ListFound(ctx context.Context, searchID int64, limit int) ([]model.FoundItem, error)

	CreateFilter(ctx context.Context, f *model.Filter) error
	ListFilters(ctx context.Context, searchID int64) ([]model.Filter, error)
	GetFilter(ctx context.Context, id int64) (*model.Filter, error)
	DeleteFilter(ctx context.Context, id int64) error

	Close() error
}
