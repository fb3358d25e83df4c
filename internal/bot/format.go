package bot

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/blakev/ksl-april/internal/config"
	"github.com/blakev/ksl-april/internal/model"
	"github.com/blakev/ksl-april/internal/scheduler"
)

const (
	statusEnabled  = "enabled"
	statusDisabled = "disabled"
)

// FormatSearchList formats enabled and disabled searches for display.
func FormatSearchList(searches []model.Search, foundCounts map[int64]int) string {
	if len(searches) == 0 {
		return "You have no searches yet. Use /add <name> | <url> to create one."
	}

	var enabled, disabled []model.Search
	for _, s := range searches {
		if s.Enabled {
			enabled = append(enabled, s)
		} else {
			disabled = append(disabled, s)
		}
	}

	var b strings.Builder
	b.WriteString("Your searches:\n")
	for _, s := range enabled {
		writeSearchLine(&b, s, foundCounts[s.ID], statusEnabled)
	}
	if len(disabled) > 0 {
		b.WriteString("\nDisabled:\n")
		for _, s := range disabled {
			writeSearchLine(&b, s, foundCounts[s.ID], statusDisabled)
		}
	}
	return b.String()
}

func writeSearchLine(b *strings.Builder, s model.Search, found int, status string) {
	fmt.Fprintf(b, "\n#%d %s  (every %d min) [%s]\n   %d listing(s) found\n",
		s.ID, s.Name, s.EveryMinutes, status, found)
}

// FormatSearchInfo formats detailed information about a single search.
func FormatSearchInfo(s *model.Search, found int, last *model.FoundItem, cfg *config.Config) string {
	var b strings.Builder
	status := statusEnabled
	if !s.Enabled {
		status = statusDisabled
	}
	fmt.Fprintf(&b, "#%d %s [%s]\n", s.ID, s.Name, status)
	fmt.Fprintf(&b, "URL: %s\n", s.URL)
	fmt.Fprintf(&b, "Interval: every %d min\n", s.EveryMinutes)
	fmt.Fprintf(&b, "Found: %d listing(s)\n", found)
	if last != nil {
		fmt.Fprintf(&b, "Last found: %s (%s)\n",
			lastTitle(last), last.CreatedAt.Format("2006-01-02 15:04 UTC"))
	}
	if preview := PreviewParams(s.URL, cfg); len(preview) > 0 {
		b.WriteString("\nQuery:\n")
		for _, p := range preview {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	return b.String()
}

func lastTitle(item *model.FoundItem) string {
	if item.Title == "" {
		return item.ListingID
	}
	return item.Title
}

// FormatFoundList formats recorded listings for a search, newest first.
func FormatFoundList(s *model.Search, items []model.FoundItem, cfg *config.Config) string {
	if len(items) == 0 {
		return fmt.Sprintf("No listings recorded yet for #%d \"%s\".", s.ID, s.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Listings for #%d \"%s\":\n", s.ID, s.Name)
	for _, item := range items {
		fmt.Fprintf(&b, "\n%s\n%s\n%s\n",
			lastTitle(&item),
			cfg.ListingURL(item.ListingID),
			item.CreatedAt.Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

// FormatStatus formats the scheduler snapshot.
func FormatStatus(statuses []scheduler.Status) string {
	if len(statuses) == 0 {
		return "No searches are scheduled."
	}
	var b strings.Builder
	b.WriteString("Schedules:\n")
	for _, st := range statuses {
		state := "next run " + FormatNextRun(st.NextRun)
		if st.Running {
			state = "running"
		}
		fmt.Fprintf(&b, "\n#%d %s — %s\n", st.SearchID, st.Name, state)
		if st.Degraded {
			fmt.Fprintf(&b, "   DEGRADED: %s\n", st.LastErr)
		} else if st.LastErr != "" {
			fmt.Fprintf(&b, "   last error: %s\n", st.LastErr)
		}
	}
	return b.String()
}

// FormatFilterList formats the notification filters of a search.
func FormatFilterList(s *model.Search, filters []model.Filter) string {
	if len(filters) == 0 {
		return fmt.Sprintf("No filters for #%d \"%s\".\nUse /include, /exclude, /include_re, /exclude_re to add filters.", s.ID, s.Name)
	}

	var include, exclude []model.Filter
	for _, f := range filters {
		switch f.Kind {
		case model.FilterInclude, model.FilterIncludeRe:
			include = append(include, f)
		case model.FilterExclude, model.FilterExcludeRe:
			exclude = append(exclude, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filters for #%d \"%s\":\n", s.ID, s.Name)
	writeFilterGroup(&b, "Include", include)
	writeFilterGroup(&b, "Exclude", exclude)
	return b.String()
}

func writeFilterGroup(b *strings.Builder, label string, filters []model.Filter) {
	if len(filters) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", label)
	for _, f := range filters {
		kind := "word"
		if f.Kind == model.FilterIncludeRe || f.Kind == model.FilterExcludeRe {
			kind = "regex"
		}
		fmt.Fprintf(b, "  F%d: %s (%s)\n", f.ID, f.Value, kind)
	}
}

// PreviewParams summarizes a search URL's query string as sorted "key=value"
// pairs, hiding the configured skip keys. Used by /info so long search URLs
// stay readable.
func PreviewParams(rawURL string, cfg *config.Config) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	var out []string
	for key, values := range u.Query() {
		key = strings.ToLower(key)
		if cfg.IsSkipKey(key) {
			continue
		}
		out = append(out, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
	}
	sort.Strings(out)
	return out
}

// FormatNextRun renders a relative description of a scheduled run time.
func FormatNextRun(next time.Time) string {
	d := time.Until(next).Round(time.Second)
	if d <= 0 {
		return "now"
	}
	return "in " + d.String()
}
