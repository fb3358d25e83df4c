// Package poller executes single poll runs: render a search's page,
// extract listing identifiers, diff them against the seen set, notify for
// genuinely new listings, and record them.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blakev/ksl-april/internal/config"
	"github.com/blakev/ksl-april/internal/filter"
	"github.com/blakev/ksl-april/internal/model"
	"github.com/blakev/ksl-april/internal/storage"
)

// FoundTemplate is the notification message format:
// "<SearchName> found: <ListingTitle> (<ListingURL>)".
const FoundTemplate = "%s found: %s (%s)"

// ErrSearchGone signals that the search no longer exists or has been
// soft-deleted. The scheduler drops the search's schedule on this error
// instead of re-arming it.
var ErrSearchGone = errors.New("search deleted or missing")

// Run phases, carried in logs and wrapped errors.
const (
	phaseInit       = "init"
	phaseRendering  = "rendering"
	phaseExtracting = "extracting"
	phaseDiffing    = "diffing"
	phaseNotifying  = "notifying"
	phasePersisting = "persisting"
)

// Session is one exclusive rendered-page session owned by a single run.
type Session interface {
	Navigate(ctx context.Context, url string) error
	AwaitReady(ctx context.Context, timeout time.Duration) error
	AwaitListings(ctx context.Context, timeout, interval time.Duration) ([]string, error)
	ScrollToBottom(ctx context.Context)
	FetchTitle(ctx context.Context, url string) (string, error)
	Close()
}

// Renderer opens rendered-page sessions.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Notifier dispatches a human-readable message for a new listing.
type Notifier interface {
	Notify(text string) error
}

// Result is the outcome of one completed (or partially completed) run.
type Result struct {
	Search    *model.Search
	Extracted int
	New       int
	Notified  int
}

// Poller runs poll tasks against a shared store and render client.
type Poller struct {
	store    storage.Storage
	renderer Renderer
	notifier Notifier
	cfg      *config.Config
	log      *slog.Logger

	settleDelay     time.Duration
	readyTimeout    time.Duration
	listingTimeout  time.Duration
	listingInterval time.Duration
}

// New creates a Poller with production wait timings.
func New(store storage.Storage, renderer Renderer, notifier Notifier, cfg *config.Config, log *slog.Logger) *Poller {
	return &Poller{
		store:           store,
		renderer:        renderer,
		notifier:        notifier,
		cfg:             cfg,
		log:             log,
		settleDelay:     6 * time.Second,
		readyTimeout:    15 * time.Second,
		listingTimeout:  20 * time.Second,
		listingInterval: time.Second,
	}
}

// SetTimings overrides the wait timings (useful for testing).
func (p *Poller) SetTimings(settle, ready, listing, listingPoll time.Duration) {
	p.settleDelay = settle
	p.readyTimeout = ready
	p.listingTimeout = listing
	p.listingInterval = listingPoll
}

// RunOnce executes one poll for the given search. The search's current
// snapshot is re-fetched first so flag changes since scheduling take
// effect. On a first run all extracted listings are recorded as baseline
// without notifications. Errors are returned for the caller to log; they
// never abort other searches, and the caller re-arms the schedule whether
// or not an error occurred.
func (p *Poller) RunOnce(ctx context.Context, searchID int64, first bool) (*Result, error) {
	search, err := p.store.GetSearch(ctx, searchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSearchGone
		}
		return nil, fmt.Errorf("%s: %w", phaseInit, err)
	}
	if search.Deleted {
		return nil, ErrSearchGone
	}

	res := &Result{Search: search}

	if search.URL == "" {
		return res, fmt.Errorf("%s: search %d %q has no URL", phaseInit, search.ID, search.Name)
	}

	p.log.Info("poll start",
		"search_id", search.ID, "name", search.Name, "first", first)

	sess, err := p.renderer.Open(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: %w", phaseRendering, err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, search.URL); err != nil {
		return res, fmt.Errorf("%s: %w", phaseRendering, err)
	}
	if err := sess.AwaitReady(ctx, p.readyTimeout); err != nil {
		return res, fmt.Errorf("%s: %w", phaseRendering, err)
	}

	// Listing content keeps loading after readyState reports complete.
	if err := sleepCtx(ctx, p.settleDelay); err != nil {
		return res, fmt.Errorf("%s: %w", phaseRendering, err)
	}
	sess.ScrollToBottom(ctx)

	ids, err := sess.AwaitListings(ctx, p.listingTimeout, p.listingInterval)
	if err != nil {
		return res, fmt.Errorf("%s: %w", phaseExtracting, err)
	}
	res.Extracted = len(ids)
	p.log.Info("listings extracted", "search_id", search.ID, "count", len(ids))

	var filters []model.Filter
	if !first {
		filters, err = p.store.ListFilters(ctx, search.ID)
		if err != nil {
			return res, fmt.Errorf("%s: %w", phaseDiffing, err)
		}
	}

	for _, listingID := range ids {
		exists, err := p.store.HasFound(ctx, search.ID, listingID)
		if err != nil {
			return res, fmt.Errorf("%s: %w", phaseDiffing, err)
		}
		if exists {
			continue
		}

		item := &model.FoundItem{SearchID: search.ID, ListingID: listingID}

		if first {
			// Baseline run: record without fetching detail pages or
			// alerting on listings that predate the watcher.
			if err := p.record(ctx, res, item); err != nil {
				return res, err
			}
			continue
		}

		listingURL := p.cfg.ListingURL(listingID)
		title, err := sess.FetchTitle(ctx, listingURL)
		if err != nil {
			return res, fmt.Errorf("%s: %w", phaseNotifying, err)
		}
		item.Title = title

		p.log.Info("new listing",
			"search_id", search.ID, "listing_id", listingID, "title", title)

		// Re-read the flags right before notifying; /pause or /remove may
		// have landed while this run was rendering. The listing is still
		// recorded either way.
		cur, err := p.store.GetSearch(ctx, search.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return res, ErrSearchGone
			}
			return res, fmt.Errorf("%s: %w", phaseNotifying, err)
		}

		if cur.Enabled && !cur.Deleted && filter.Match(title, filters) {
			msg := fmt.Sprintf(FoundTemplate, search.Name, title, listingURL)
			if err := p.notifier.Notify(msg); err != nil {
				// Delivery failures are non-fatal: the item is still
				// recorded so it is never re-notified.
				p.log.Error("send notification",
					"search_id", search.ID, "listing_id", listingID, "error", err)
			} else {
				res.Notified++
			}
		}

		if err := p.record(ctx, res, item); err != nil {
			return res, err
		}
	}

	p.log.Info("poll done",
		"search_id", search.ID, "extracted", res.Extracted,
		"new", res.New, "notified", res.Notified)
	return res, nil
}

// record persists a found item. A duplicate means a concurrent run
// recorded the same pair first; that is a benign outcome, not an error.
func (p *Poller) record(ctx context.Context, res *Result, item *model.FoundItem) error {
	err := p.store.RecordFound(ctx, item)
	if errors.Is(err, storage.ErrDuplicate) {
		p.log.Debug("listing already recorded",
			"search_id", item.SearchID, "listing_id", item.ListingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", phasePersisting, err)
	}
	res.New++
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
