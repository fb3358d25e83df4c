package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blakev/ksl-april/internal/model"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		filters []model.Filter
		want    bool
	}{
		{
			name:    "no filters passes everything",
			title:   "2014 Subaru Outback",
			filters: nil,
			want:    true,
		},
		{
			name:  "include word matches",
			title: "2014 Subaru Outback Limited",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "subaru"},
			},
			want: true,
		},
		{
			name:  "include word no match",
			title: "2012 Honda Civic",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "subaru"},
			},
			want: false,
		},
		{
			name:  "include is case insensitive",
			title: "2018 SUBARU WRX STI",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "Subaru"},
			},
			want: true,
		},
		{
			name:  "exclude word blocks match",
			title: "2009 Subaru Legacy salvage title",
			filters: []model.Filter{
				{Kind: model.FilterExclude, Value: "salvage"},
			},
			want: false,
		},
		{
			name:  "exclude word does not block non-match",
			title: "2016 Subaru Forester clean title",
			filters: []model.Filter{
				{Kind: model.FilterExclude, Value: "salvage"},
			},
			want: true,
		},
		{
			name:  "include + exclude: include matches, exclude does not",
			title: "2016 Subaru Forester",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "subaru"},
				{Kind: model.FilterExclude, Value: "salvage"},
			},
			want: true,
		},
		{
			name:  "include + exclude: both match, exclude wins",
			title: "2016 Subaru Forester salvage",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "subaru"},
				{Kind: model.FilterExclude, Value: "salvage"},
			},
			want: false,
		},
		{
			name:  "multiple includes OR logic: one matches",
			title: "2015 Toyota Tacoma TRD",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "subaru"},
				{Kind: model.FilterInclude, Value: "tacoma"},
			},
			want: true,
		},
		{
			name:  "multiple includes OR logic: none match",
			title: "2012 Honda Civic",
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "subaru"},
				{Kind: model.FilterInclude, Value: "tacoma"},
			},
			want: false,
		},
		{
			name:  "regex include matches",
			title: "2019 Subaru WRX STI Limited",
			filters: []model.Filter{
				{Kind: model.FilterIncludeRe, Value: `wrx|sti`},
			},
			want: true,
		},
		{
			name:  "regex exclude blocks",
			title: "2008 Outback - rebuilt branded title",
			filters: []model.Filter{
				{Kind: model.FilterExcludeRe, Value: `(rebuilt|salvage).*title`},
			},
			want: false,
		},
		{
			name:  "invalid regex in filter is skipped (no match)",
			title: "anything",
			filters: []model.Filter{
				{Kind: model.FilterIncludeRe, Value: "[invalid"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.title, tt.filters)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "valid simple", pattern: "outback", wantErr: false},
		{name: "valid alternation", pattern: "wrx|sti|forester", wantErr: false},
		{name: "valid group", pattern: `(?i)20(1[5-9]|2\d)`, wantErr: false},
		{name: "invalid unclosed bracket", pattern: "[invalid", wantErr: true},
		{name: "invalid bad repetition", pattern: "*bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			gotErr := err != nil
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
