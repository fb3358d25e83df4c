package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/blakev/ksl-april/internal/model"
)

var ignoreSearchTS = cmpopts.IgnoreFields(model.Search{}, "CreatedAt")
var ignoreItemTS = cmpopts.IgnoreFields(model.FoundItem{}, "CreatedAt")
var ignoreFilterTS = cmpopts.IgnoreFields(model.Filter{}, "CreatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name   string
		search model.Search
	}{
		{
			name: "basic search",
			search: model.Search{
				Name:         "Outbacks under 10k",
				URL:          "https://cars.example.com/search?make=Subaru",
				EveryMinutes: 5,
				Enabled:      true,
			},
		},
		{
			name: "disabled search with custom interval",
			search: model.Search{
				Name:         "Trucks",
				URL:          "https://cars.example.com/search?body=truck",
				EveryMinutes: 30,
				Enabled:      false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := tt.search
			if err := s.CreateSearch(ctx, &search); err != nil {
				t.Fatalf("create: %v", err)
			}
			if search.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetSearch(ctx, search.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			want := tt.search
			want.ID = search.ID
			if diff := cmp.Diff(want, *got, ignoreSearchTS); diff != "" {
				t.Errorf("GetSearch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetSearchNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	_, err := s.GetSearch(ctx, 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSearchesExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	searches := []model.Search{
		{Name: "A", URL: "https://a.com", EveryMinutes: 5, Enabled: true},
		{Name: "B", URL: "https://b.com", EveryMinutes: 15, Enabled: false},
		{Name: "C", URL: "https://c.com", EveryMinutes: 5, Enabled: true, Deleted: true},
	}
	for i := range searches {
		if err := s.CreateSearch(ctx, &searches[i]); err != nil {
			t.Fatalf("create search %d: %v", i, err)
		}
	}

	got, err := s.ListSearches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	// Disabled searches are listed; deleted ones are not.
	want := []model.Search{
		{ID: searches[0].ID, Name: "A", URL: "https://a.com", EveryMinutes: 5, Enabled: true},
		{ID: searches[1].ID, Name: "B", URL: "https://b.com", EveryMinutes: 15, Enabled: false},
	}
	if diff := cmp.Diff(want, got, ignoreSearchTS); diff != "" {
		t.Errorf("ListSearches mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	search := model.Search{Name: "Old", URL: "https://old.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &search); err != nil {
		t.Fatalf("create: %v", err)
	}

	search.Name = "New"
	search.EveryMinutes = 60
	search.Enabled = false
	search.Deleted = true

	if err := s.UpdateSearch(ctx, &search); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSearch(ctx, search.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := model.Search{
		ID: search.ID, Name: "New", URL: "https://old.com",
		EveryMinutes: 60, Enabled: false, Deleted: true,
	}
	if diff := cmp.Diff(want, *got, ignoreSearchTS); diff != "" {
		t.Errorf("UpdateSearch mismatch (-want +got):\n%s", diff)
	}
}

func TestUndeleteAll(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	searches := []model.Search{
		{Name: "A", URL: "https://a.com", EveryMinutes: 5, Deleted: true},
		{Name: "B", URL: "https://b.com", EveryMinutes: 5, Deleted: true},
		{Name: "C", URL: "https://c.com", EveryMinutes: 5},
	}
	for i := range searches {
		if err := s.CreateSearch(ctx, &searches[i]); err != nil {
			t.Fatalf("create search %d: %v", i, err)
		}
	}

	if err := s.UndeleteAll(ctx); err != nil {
		t.Fatalf("undelete all: %v", err)
	}

	got, err := s.ListSearches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 searches after undelete, got %d", len(got))
	}
}

func TestRecordFoundAndHasFound(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	search := model.Search{Name: "S", URL: "https://s.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	item := model.FoundItem{SearchID: search.ID, ListingID: "6512345", Title: "2014 Subaru Outback"}
	if err := s.RecordFound(ctx, &item); err != nil {
		t.Fatalf("record: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	seen, err := s.HasFound(ctx, search.ID, "6512345")
	if err != nil {
		t.Fatalf("has found: %v", err)
	}
	if !seen {
		t.Error("expected listing to be recorded")
	}

	seen, err = s.HasFound(ctx, search.ID, "9999999")
	if err != nil {
		t.Fatalf("has found: %v", err)
	}
	if seen {
		t.Error("unrecorded listing reported as found")
	}
}

func TestRecordFoundDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	search := model.Search{Name: "S", URL: "https://s.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	first := model.FoundItem{SearchID: search.ID, ListingID: "111", Title: "first"}
	if err := s.RecordFound(ctx, &first); err != nil {
		t.Fatalf("record first: %v", err)
	}

	dup := model.FoundItem{SearchID: search.ID, ListingID: "111", Title: "second"}
	if err := s.RecordFound(ctx, &dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// First writer wins: the original title survives.
	got, err := s.LastFound(ctx, search.ID)
	if err != nil {
		t.Fatalf("last found: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("expected first writer's title, got %q", got.Title)
	}

	// Same listing ID under a different search is a distinct pair.
	other := model.Search{Name: "T", URL: "https://t.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &other); err != nil {
		t.Fatalf("create search: %v", err)
	}
	item := model.FoundItem{SearchID: other.ID, ListingID: "111"}
	if err := s.RecordFound(ctx, &item); err != nil {
		t.Fatalf("record for other search: %v", err)
	}
}

func TestRecordFoundConcurrentSamePair(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	search := model.Search{Name: "S", URL: "https://s.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := model.FoundItem{SearchID: search.ID, ListingID: "777"}
			errs[i] = s.RecordFound(ctx, &item)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDuplicate):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if conflicts != writers-1 {
		t.Errorf("expected %d conflicts, got %d", writers-1, conflicts)
	}

	count, err := s.CountFound(ctx, search.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one row, got %d", count)
	}
}

func TestCountAndLastAndListFound(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	search := model.Search{Name: "S", URL: "https://s.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	if _, err := s.LastFound(ctx, search.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty search, got %v", err)
	}

	ids := []string{"1", "2", "3"}
	for _, id := range ids {
		item := model.FoundItem{SearchID: search.ID, ListingID: id, Title: "car " + id}
		if err := s.RecordFound(ctx, &item); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	count, err := s.CountFound(ctx, search.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	last, err := s.LastFound(ctx, search.ID)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.ListingID != "3" {
		t.Errorf("expected newest listing 3, got %s", last.ListingID)
	}

	items, err := s.ListFound(ctx, search.ID, 2)
	if err != nil {
		t.Fatalf("list found: %v", err)
	}
	want := []model.FoundItem{
		{ID: items[0].ID, SearchID: search.ID, ListingID: "3", Title: "car 3"},
		{ID: items[1].ID, SearchID: search.ID, ListingID: "2", Title: "car 2"},
	}
	if diff := cmp.Diff(want, items, ignoreItemTS); diff != "" {
		t.Errorf("ListFound mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	search := model.Search{Name: "S", URL: "https://s.com", EveryMinutes: 5, Enabled: true}
	if err := s.CreateSearch(ctx, &search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	filters := []model.Filter{
		{SearchID: search.ID, Kind: model.FilterInclude, Value: "outback"},
		{SearchID: search.ID, Kind: model.FilterExcludeRe, Value: "salvage|rebuilt"},
	}
	for i := range filters {
		if err := s.CreateFilter(ctx, &filters[i]); err != nil {
			t.Fatalf("create filter %d: %v", i, err)
		}
		if filters[i].ID == 0 {
			t.Fatal("expected non-zero filter ID")
		}
	}

	got, err := s.ListFilters(ctx, search.ID)
	if err != nil {
		t.Fatalf("list filters: %v", err)
	}
	if diff := cmp.Diff(filters, got, ignoreFilterTS); diff != "" {
		t.Errorf("ListFilters mismatch (-want +got):\n%s", diff)
	}

	single, err := s.GetFilter(ctx, filters[0].ID)
	if err != nil {
		t.Fatalf("get filter: %v", err)
	}
	if diff := cmp.Diff(filters[0], *single, ignoreFilterTS); diff != "" {
		t.Errorf("GetFilter mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteFilter(ctx, filters[0].ID); err != nil {
		t.Fatalf("delete filter: %v", err)
	}
	if _, err := s.GetFilter(ctx, filters[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
