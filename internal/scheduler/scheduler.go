// Package scheduler owns one recurring poll schedule per active search.
// Each search runs as an independent goroutine-and-timer pair; runs for a
// single search are strictly sequential because the next timer is armed
// only after the previous run returns.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/blakev/ksl-april/internal/model"
	"github.com/blakev/ksl-april/internal/poller"
	"github.com/blakev/ksl-april/internal/render"
)

// Runner executes one poll for one search.
type Runner interface {
	RunOnce(ctx context.Context, searchID int64, first bool) (*poller.Result, error)
}

// SearchSource lists the searches to schedule at startup.
type SearchSource interface {
	ListSearches(ctx context.Context) ([]model.Search, error)
}

// Status is a snapshot of one search's schedule.
type Status struct {
	SearchID int64
	Name     string
	Running  bool
	NextRun  time.Time
	// Degraded is set when the most recent run failed to extract any
	// listings before its timeout, and cleared on the next success. The
	// schedule keeps re-arming either way; Degraded only surfaces that
	// the site layout or selector may have changed.
	Degraded bool
	LastErr  string
}

type entry struct {
	id       int64
	name     string
	interval time.Duration
	next     time.Time
	running  bool
	degraded bool
	lastErr  string
	// kick fires an immediate run while the entry is sleeping.
	kick chan struct{}
}

// Scheduler launches and re-arms poll tasks for all active searches.
type Scheduler struct {
	source SearchSource
	runner Runner
	log    *slog.Logger

	mu      sync.Mutex
	entries map[int64]*entry
	ctx     context.Context
}

// New creates a Scheduler.
func New(source SearchSource, runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		source:  source,
		runner:  runner,
		log:     log,
		entries: make(map[int64]*entry),
	}
}

// Start loads all non-deleted searches and launches a first-run poll for
// each concurrently. It returns once every initial run has been issued.
// Failure to read the search source is the only fatal error.
func (s *Scheduler) Start(ctx context.Context) error {
	searches, err := s.source.ListSearches(ctx)
	if err != nil {
		return fmt.Errorf("list searches: %w", err)
	}

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for _, search := range searches {
		s.log.Info("scheduling search", "search_id", search.ID, "name", search.Name)
		s.add(search)
	}
	return nil
}

// Add schedules a newly created search, launching its first run
// immediately. It is a no-op for searches already scheduled.
func (s *Scheduler) Add(search model.Search) {
	if search.Deleted {
		return
	}
	s.add(search)
}

// add inserts the entry and launches its first run. Existence check and
// insert share one critical section so concurrent adds of the same search
// cannot spawn two run loops.
func (s *Scheduler) add(search model.Search) {
	e := &entry{
		id:       search.ID,
		name:     search.Name,
		interval: time.Duration(search.EveryMinutes) * time.Minute,
		kick:     make(chan struct{}, 1),
	}
	s.mu.Lock()
	if s.ctx == nil || s.entries[search.ID] != nil {
		s.mu.Unlock()
		return
	}
	s.entries[search.ID] = e
	ctx := s.ctx
	s.mu.Unlock()

	go s.run(ctx, e, true)
}

// TriggerNow fires a sleeping search's next run immediately. Returns false
// when the search is not scheduled or a run is already in flight.
func (s *Scheduler) TriggerNow(searchID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[searchID]
	if !ok || e.running {
		return false
	}
	// Send under the lock (the channel is buffered) so the running check
	// and the kick are one atomic decision.
	select {
	case e.kick <- struct{}{}:
		return true
	default:
		return false
	}
}

// Snapshot returns the current state of every active schedule, ordered by
// search ID.
func (s *Scheduler) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Status{
			SearchID: e.id,
			Name:     e.name,
			Running:  e.running,
			NextRun:  e.next,
			Degraded: e.degraded,
			LastErr:  e.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SearchID < out[j].SearchID })
	return out
}

func (s *Scheduler) run(ctx context.Context, e *entry, first bool) {
	s.mu.Lock()
	e.running = true
	s.mu.Unlock()

	// A kick that raced the timer is satisfied by this run.
	select {
	case <-e.kick:
	default:
	}

	res, err := s.runner.RunOnce(ctx, e.id, first)

	if errors.Is(err, poller.ErrSearchGone) {
		s.log.Info("search gone, dropping schedule", "search_id", e.id, "name", e.name)
		s.mu.Lock()
		delete(s.entries, e.id)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	e.running = false
	if res != nil && res.Search != nil {
		e.name = res.Search.Name
		e.interval = time.Duration(res.Search.EveryMinutes) * time.Minute
	}
	if err != nil {
		e.lastErr = err.Error()
		e.degraded = errors.Is(err, render.ErrTimeout)
	} else {
		e.lastErr = ""
		e.degraded = false
	}
	interval := e.interval
	e.next = time.Now().Add(interval)
	s.mu.Unlock()

	if err != nil {
		s.log.Error("poll failed", "search_id", e.id, "name", e.name, "error", err)
	}
	if ctx.Err() != nil {
		return
	}

	// Re-arm unconditionally: one bad render must not stall the search.
	go s.wait(ctx, e, interval)
}

func (s *Scheduler) wait(ctx context.Context, e *entry, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	case <-e.kick:
	}
	s.run(ctx, e, false)
}
