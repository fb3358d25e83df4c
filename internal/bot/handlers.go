package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/blakev/ksl-april/internal/filter"
	"github.com/blakev/ksl-april/internal/model"
	"github.com/blakev/ksl-april/internal/storage"
)

const foundListLimit = 20

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the listings watcher!

Create recurring searches against the listings site and get a message the
moment something new shows up.

Quick start:
1. /add <name> | <url> — watch a search URL (every 5 min by default)
2. /list — show your searches
3. /exclude <id> <word> — mute listings whose title matches

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Search management:
/add <name> | <url> [| <min>] — add a search (interval 1-60 min)
/list — show all searches
/info <id> — search details
/found <id> — listings recorded for a search
/remove <id> — delete a search (soft)
/undelete — restore all deleted searches
/interval <id> <min> — set poll interval (1-60)
/pause <id> — keep polling, stop notifying
/resume <id> — resume notifications
/check <id> — poll now
/status — scheduler status per search

Filter management:
/filters <id> — show filters for a search
/include <id> <word> — only notify titles containing word
/exclude <id> <word> — never notify titles containing word
/include_re <id> <regex> — include by regex
/exclude_re <id> <regex> — exclude by regex
/rmfilter <filter_id> — remove a filter

Filters affect notifications only; every listing is still recorded.`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	existing, err := b.store.ListSearches(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	for _, s := range existing {
		if s.Name == parsed.Name {
			b.reply(chatID, fmt.Sprintf("%q is already the name of a search.", parsed.Name))
			return
		}
	}

	s := &model.Search{
		Name:         parsed.Name,
		URL:          parsed.URL,
		EveryMinutes: parsed.EveryMinutes,
		Enabled:      true,
	}
	if err := b.store.CreateSearch(ctx, s); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save search: %v", err))
		return
	}

	// First run starts immediately and establishes the baseline without
	// notifying on listings that already exist.
	b.sched.Add(*s)
	b.log.Info("created search", "search_id", s.ID, "name", s.Name)

	b.reply(chatID, fmt.Sprintf("Search added!\n#%d %s (every %d min)\nURL: %s\nPolling has started; existing listings are being recorded as the baseline.",
		s.ID, s.Name, s.EveryMinutes, s.URL))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	searches, err := b.store.ListSearches(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	counts := make(map[int64]int)
	for _, s := range searches {
		if n, err := b.store.CountFound(ctx, s.ID); err == nil {
			counts[s.ID] = n
		}
	}

	b.reply(chatID, FormatSearchList(searches, counts))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	count, _ := b.store.CountFound(ctx, s.ID)
	last, err := b.store.LastFound(ctx, s.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSearchInfo(s, count, last, b.cfg))
}

func (b *Bot) handleFound(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /found <id>")
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	items, err := b.store.ListFound(ctx, s.ID, foundListLimit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFoundList(s, items, b.cfg))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	s.Enabled = false
	s.Deleted = true
	if err := b.store.UpdateSearch(ctx, s); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting search: %v", err))
		return
	}
	b.log.Info("deleted search", "search_id", s.ID, "name", s.Name)
	b.reply(chatID, fmt.Sprintf("Search #%d \"%s\" deleted. Its schedule will stop after the current cycle.", s.ID, s.Name))
}

func (b *Bot) handleUndelete(ctx context.Context, chatID int64) {
	if err := b.store.UndeleteAll(ctx); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	// Deleted searches lost their schedules; put restored ones back.
	searches, err := b.store.ListSearches(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	for _, s := range searches {
		b.sched.Add(s)
	}

	b.log.Info("undeleted all searches")
	b.reply(chatID, "Restored all deleted searches.")
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	s.EveryMinutes = mins
	if err := b.store.UpdateSearch(ctx, s); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Search #%d interval set to %d min (takes effect after the next run).", s.ID, mins))
}

func (b *Bot) handlePause(ctx context.Context, chatID int64, args string) {
	b.setEnabled(ctx, chatID, args, false)
}

func (b *Bot) handleResume(ctx context.Context, chatID int64, args string) {
	b.setEnabled(ctx, chatID, args, true)
}

func (b *Bot) setEnabled(ctx context.Context, chatID int64, args string, enabled bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /pause <id> or /resume <id>")
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	s.Enabled = enabled
	if err := b.store.UpdateSearch(ctx, s); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	if enabled {
		b.reply(chatID, fmt.Sprintf("Search #%d \"%s\" resumed: notifications are back on.", s.ID, s.Name))
	} else {
		b.reply(chatID, fmt.Sprintf("Search #%d \"%s\" paused: polling continues, notifications are muted.", s.ID, s.Name))
	}
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	if b.sched.TriggerNow(s.ID) {
		b.reply(chatID, fmt.Sprintf("Polling #%d \"%s\" now.", s.ID, s.Name))
	} else {
		b.reply(chatID, fmt.Sprintf("#%d \"%s\" is already being polled.", s.ID, s.Name))
	}
}

func (b *Bot) handleStatus(chatID int64) {
	b.reply(chatID, FormatStatus(b.sched.Snapshot()))
}

func (b *Bot) handleFilters(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /filters <id>")
		return
	}

	s := b.getSearch(ctx, chatID, id)
	if s == nil {
		return
	}

	filters, _ := b.store.ListFilters(ctx, s.ID)
	b.reply(chatID, FormatFilterList(s, filters))
}

func (b *Bot) handleAddFilter(ctx context.Context, chatID int64, args string, kind string) {
	parsed, err := ParseFilterCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	s := b.getSearch(ctx, chatID, parsed.SearchID)
	if s == nil {
		return
	}

	fk := model.FilterKind(kind)
	if fk == model.FilterIncludeRe || fk == model.FilterExcludeRe {
		if err := filter.ValidateRegex(parsed.Value); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	f := &model.Filter{
		SearchID: parsed.SearchID,
		Kind:     fk,
		Value:    parsed.Value,
	}
	if err := b.store.CreateFilter(ctx, f); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Filter F%d added to #%d \"%s\": %s %s",
		f.ID, s.ID, s.Name, kind, parsed.Value))
}

func (b *Bot) handleRmFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmfilter <filter_id>")
		return
	}

	f, err := b.store.GetFilter(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Filter F%d not found.", id))
		return
	}

	if err := b.store.DeleteFilter(ctx, f.ID); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter F%d removed from #%d.", f.ID, f.SearchID))
}

// getSearch fetches a non-deleted search, replying with an error message on
// failure. Returns nil when the caller should stop.
func (b *Bot) getSearch(ctx context.Context, chatID, id int64) *model.Search {
	s, err := b.store.GetSearch(ctx, id)
	if err != nil || s.Deleted {
		b.reply(chatID, fmt.Sprintf("Search #%d not found.", id))
		return nil
	}
	return s
}
