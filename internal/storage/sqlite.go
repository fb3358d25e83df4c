package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/blakev/ksl-april/internal/model"
	"github.com/blakev/ksl-april/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSearch inserts a new search and populates its ID and CreatedAt.
func (s *SQLite) CreateSearch(ctx context.Context, search *model.Search) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (name, url, every_minutes, enabled, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		search.Name, search.URL, search.EveryMinutes,
		boolToInt(search.Enabled), boolToInt(search.Deleted), now,
	)
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	search.ID = id
	search.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSearch returns a single search by its ID, deleted or not.
func (s *SQLite) GetSearch(ctx context.Context, id int64) (*model.Search, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, every_minutes, enabled, deleted, created_at
		 FROM searches WHERE id = ?`, id,
	)
	search, err := scanSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return search, err
}

// ListSearches returns all non-deleted searches ordered by ID.
func (s *SQLite) ListSearches(ctx context.Context) ([]model.Search, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, every_minutes, enabled, deleted, created_at
		 FROM searches WHERE deleted = 0 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var searches []model.Search
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *search)
	}
	return searches, rows.Err()
}

// UpdateSearch persists changes to an existing search.
func (s *SQLite) UpdateSearch(ctx context.Context, search *model.Search) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE searches SET name = ?, url = ?, every_minutes = ?, enabled = ?, deleted = ?
		 WHERE id = ?`,
		search.Name, search.URL, search.EveryMinutes,
		boolToInt(search.Enabled), boolToInt(search.Deleted), search.ID,
	)
	if err != nil {
		return fmt.Errorf("update search: %w", err)
	}
	return nil
}

// UndeleteAll clears the deleted flag on every search.
func (s *SQLite) UndeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE searches SET deleted = 0 WHERE deleted = 1`)
	if err != nil {
		return fmt.Errorf("undelete searches: %w", err)
	}
	return nil
}

// HasFound checks whether a listing has already been recorded for a search.
func (s *SQLite) HasFound(ctx context.Context, searchID int64, listingID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM found_items WHERE search_id = ? AND listing_id = ?`,
		searchID, listingID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check found: %w", err)
	}
	return count > 0, nil
}

// RecordFound inserts a found item, populating its ID and CreatedAt.
// The unique index on (search_id, listing_id) makes concurrent duplicate
// writes safe: the insert is an INSERT OR IGNORE and a zero-row result
// surfaces as ErrDuplicate so the losing writer knows it did not win.
func (s *SQLite) RecordFound(ctx context.Context, item *model.FoundItem) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO found_items (search_id, listing_id, title, created_at)
		 VALUES (?, ?, ?, ?)`,
		item.SearchID, item.ListingID, item.Title, now,
	)
	if err != nil {
		return fmt.Errorf("insert found item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// CountFound returns the number of listings recorded for a search.
func (s *SQLite) CountFound(ctx context.Context, searchID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM found_items WHERE search_id = ?`, searchID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count found: %w", err)
	}
	return count, nil
}

// LastFound returns the most recently recorded listing for a search, or
// ErrNotFound when the search has no recorded listings.
func (s *SQLite) LastFound(ctx context.Context, searchID int64) (*model.FoundItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, search_id, listing_id, title, created_at
		 FROM found_items WHERE search_id = ? ORDER BY id DESC LIMIT 1`, searchID,
	)
	item, err := scanFoundItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// ListFound returns up to limit recorded listings for a search, newest first.
func (s *SQLite) ListFound(ctx context.Context, searchID int64, limit int) ([]model.FoundItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, search_id, listing_id, title, created_at
		 FROM found_items WHERE search_id = ? ORDER BY id DESC LIMIT ?`,
		searchID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query found items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.FoundItem
	for rows.Next() {
		item, err := scanFoundItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CreateFilter inserts a new filter and populates its ID and CreatedAt.
func (s *SQLite) CreateFilter(ctx context.Context, f *model.Filter) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO filters (search_id, kind, value, created_at) VALUES (?, ?, ?, ?)`,
		f.SearchID, string(f.Kind), f.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListFilters returns all filters for the given search.
func (s *SQLite) ListFilters(ctx context.Context, searchID int64) ([]model.Filter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, search_id, kind, value, created_at FROM filters WHERE search_id = ? ORDER BY id`,
		searchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filters []model.Filter
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// GetFilter returns a single filter by its ID.
func (s *SQLite) GetFilter(ctx context.Context, id int64) (*model.Filter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, search_id, kind, value, created_at FROM filters WHERE id = ?`, id,
	)
	f, err := scanFilter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFilter removes a filter by its ID.
func (s *SQLite) DeleteFilter(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSearch(row scannable) (*model.Search, error) {
	var s model.Search
	var enabled, deleted int
	var created sql.NullString
	err := row.Scan(&s.ID, &s.Name, &s.URL, &s.EveryMinutes, &enabled, &deleted, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan search: %w", err)
	}
	s.Enabled = enabled == 1
	s.Deleted = deleted == 1
	if created.Valid {
		s.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &s, nil
}

func scanFoundItem(row scannable) (*model.FoundItem, error) {
	var item model.FoundItem
	var created sql.NullString
	err := row.Scan(&item.ID, &item.SearchID, &item.ListingID, &item.Title, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan found item: %w", err)
	}
	if created.Valid {
		item.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &item, nil
}

func scanFilter(row scannable) (model.Filter, error) {
	var f model.Filter
	var kindStr, createdStr string
	err := row.Scan(&f.ID, &f.SearchID, &kindStr, &f.Value, &createdStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, err
		}
		return f, fmt.Errorf("scan filter: %w", err)
	}
	f.Kind = model.FilterKind(kindStr)
	f.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return f, nil
}
