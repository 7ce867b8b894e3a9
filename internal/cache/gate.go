// Package cache implements a read-through TTL cache over slice payloads.
//
// A Gate serves its committed payload until it is older than the TTL, then
// refreshes it through a fetch function. Refresh failures and empty results
// never replace a committed payload, so callers keep receiving the last good
// data while upstreams are down.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"subwaylive.org/internal/clock"
)

var (
	// ErrEmptyPayload is returned by a refresh whose fetch produced no elements.
	ErrEmptyPayload = errors.New("cache: fetch returned an empty payload")
	// ErrSuperseded is returned when a newer refresh attempt committed first.
	ErrSuperseded = errors.New("cache: refresh superseded by a newer attempt")
)

// Refresh outcomes reported to an Observer.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeEmpty      = "empty"
	OutcomeSuperseded = "superseded"
)

// FetchFunc produces a fresh payload.
type FetchFunc[E any] func(ctx context.Context) ([]E, error)

// Observer receives cache events. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveCacheRefresh(cacheName, result string)
	ObserveCacheRead(cacheName string, fresh bool)
}

// Entry is a point-in-time view of a gate. Payload must be treated as read-only.
type Entry[E any] struct {
	Payload     []E
	LastUpdated time.Time
	Populated   bool
}

// UpdatedUnix returns the commit time as epoch seconds, or 0 if never populated.
func (e Entry[E]) UpdatedUnix() int64 {
	if !e.Populated {
		return 0
	}
	return e.LastUpdated.Unix()
}

// Status summarizes the freshness of a gate. AttemptStarted is when the
// fetch behind the committed payload began.
type Status struct {
	Name           string    `json:"name"`
	Populated      bool      `json:"populated"`
	LastUpdated    time.Time `json:"lastUpdated"`
	AttemptStarted time.Time `json:"attemptStarted"`
	Stale          bool      `json:"stale"`
	TTLSeconds     int64     `json:"ttlSeconds"`
	Size           int       `json:"size"`
}

type settings struct {
	clock    clock.Clock
	observer Observer
	logger   *slog.Logger
	onCommit func(size int)
}

// Option configures a Gate.
type Option func(*settings)

// WithClock sets the time source used for staleness checks and stamps.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithObserver reports refresh outcomes and reads.
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithCommitHook registers a callback invoked with the new payload size after
// every commit, while the gate's lock is held.
func WithCommitHook(fn func(size int)) Option {
	return func(s *settings) { s.onCommit = fn }
}

// Gate is a read-through TTL cache over a []E payload.
type Gate[E any] struct {
	name  string
	ttl   time.Duration
	fetch FetchFunc[E]
	settings

	mu             sync.RWMutex
	payload        []E
	populated      bool
	lastUpdated    time.Time
	committedSeq   uint64
	committedStart time.Time

	attempts atomic.Uint64
	group    singleflight.Group
}

// New creates a Gate. The gate starts unpopulated, so the first read fetches.
func New[E any](name string, ttl time.Duration, fetch FetchFunc[E], opts ...Option) *Gate[E] {
	s := settings{
		clock:  clock.RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Gate[E]{
		name:     name,
		ttl:      ttl,
		fetch:    fetch,
		settings: s,
	}
}

// Name returns the gate's name.
func (g *Gate[E]) Name() string { return g.name }

// TTL returns the gate's time-to-live.
func (g *Gate[E]) TTL() time.Duration { return g.ttl }

// IsStale reports whether the gate has never been populated or its payload
// is older than the TTL at now.
func (g *Gate[E]) IsStale(now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isStaleLocked(now)
}

func (g *Gate[E]) isStaleLocked(now time.Time) bool {
	return !g.populated || now.Sub(g.lastUpdated) > g.ttl
}

// Snapshot returns the committed state without fetching.
func (g *Gate[E]) Snapshot() Entry[E] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Entry[E]{
		Payload:     g.payload,
		LastUpdated: g.lastUpdated,
		Populated:   g.populated,
	}
}

// Status returns freshness information evaluated at the gate's clock.
func (g *Gate[E]) Status() Status {
	now := g.clock.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		Name:           g.name,
		Populated:      g.populated,
		LastUpdated:    g.lastUpdated,
		AttemptStarted: g.committedStart,
		Stale:          g.isStaleLocked(now),
		TTLSeconds:     int64(g.ttl / time.Second),
		Size:           len(g.payload),
	}
}

// ReadThrough returns the committed payload, refreshing it first when stale.
// Concurrent stale readers share a single in-flight fetch. The fetch runs
// detached from ctx cancellation so an abandoned request cannot starve the
// readers waiting on it. A failed refresh is logged and the previous entry is
// returned unchanged.
func (g *Gate[E]) ReadThrough(ctx context.Context) Entry[E] {
	stale := g.IsStale(g.clock.Now())
	if g.observer != nil {
		g.observer.ObserveCacheRead(g.name, !stale)
	}
	if !stale {
		return g.Snapshot()
	}

	detached := context.WithoutCancel(ctx)
	_, err, _ := g.group.Do("refresh", func() (any, error) {
		// A flight that finished after the check above may already have
		// committed.
		if !g.IsStale(g.clock.Now()) {
			return nil, nil
		}
		return nil, g.refresh(detached)
	})
	if err != nil {
		g.logRefreshError(err)
	}
	return g.Snapshot()
}

// Refresh forces a fetch regardless of staleness and does not join an
// in-flight ReadThrough refresh. When refreshes overlap, a result is
// committed only if its attempt started after the committed one.
func (g *Gate[E]) Refresh(ctx context.Context) error {
	return g.refresh(ctx)
}

func (g *Gate[E]) refresh(ctx context.Context) error {
	seq := g.attempts.Add(1)
	started := g.clock.Now()

	payload, err := g.fetch(ctx)
	if err != nil {
		g.observe(OutcomeError)
		return fmt.Errorf("refresh %s: %w", g.name, err)
	}
	if len(payload) == 0 {
		g.observe(OutcomeEmpty)
		return fmt.Errorf("refresh %s: %w", g.name, ErrEmptyPayload)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if seq <= g.committedSeq {
		g.observe(OutcomeSuperseded)
		return fmt.Errorf("refresh %s started %s: %w", g.name, started.Format(time.RFC3339Nano), ErrSuperseded)
	}

	g.payload = payload
	g.populated = true
	g.lastUpdated = g.clock.Now()
	g.committedSeq = seq
	g.committedStart = started
	if g.onCommit != nil {
		g.onCommit(len(payload))
	}
	g.observe(OutcomeSuccess)
	return nil
}

func (g *Gate[E]) observe(outcome string) {
	if g.observer != nil {
		g.observer.ObserveCacheRefresh(g.name, outcome)
	}
}

func (g *Gate[E]) logRefreshError(err error) {
	level := slog.LevelWarn
	if errors.Is(err, ErrEmptyPayload) || errors.Is(err, ErrSuperseded) {
		level = slog.LevelDebug
	}
	g.logger.Log(context.Background(), level, "cache refresh failed, serving previous entry",
		slog.String("component", "cache"),
		slog.String("cache", g.name),
		slog.String("error", err.Error()))
}
