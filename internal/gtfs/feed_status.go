package gtfs

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// FeedError is one recorded fetch failure.
type FeedError struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// FeedStatus is the observed health of one upstream feed.
type FeedStatus struct {
	FeedID              string      `json:"feedId"`
	URL                 string      `json:"url"`
	LastAttempt         time.Time   `json:"lastAttempt"`
	LastSuccess         time.Time   `json:"lastSuccess"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	EntityCount         int         `json:"entityCount"`
	LastDuration        float64     `json:"lastDurationSeconds"`
	RecentErrors        []FeedError `json:"recentErrors"`
}

type feedState struct {
	status FeedStatus
	ring   []FeedError
	next   int
}

// FeedStatusTracker records per-feed fetch outcomes with a bounded history of
// errors per feed. It is safe for concurrent use.
type FeedStatusTracker struct {
	mu      sync.Mutex
	history int
	feeds   map[string]*feedState
}

// NewFeedStatusTracker keeps up to history errors per feed.
func NewFeedStatusTracker(history int) *FeedStatusTracker {
	if history <= 0 {
		history = DefaultStatusHistory
	}
	return &FeedStatusTracker{
		history: history,
		feeds:   make(map[string]*feedState),
	}
}

func (t *FeedStatusTracker) state(feedID, url string) *feedState {
	st, ok := t.feeds[feedID]
	if !ok {
		st = &feedState{status: FeedStatus{FeedID: feedID}}
		t.feeds[feedID] = st
	}
	st.status.URL = url
	return st
}

// RecordSuccess marks a fetch that decoded entityCount entities.
func (t *FeedStatusTracker) RecordSuccess(feedID, url string, at time.Time, elapsed time.Duration, entityCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(feedID, url)
	st.status.LastAttempt = at
	st.status.LastSuccess = at
	st.status.LastError = ""
	st.status.ConsecutiveFailures = 0
	st.status.EntityCount = entityCount
	st.status.LastDuration = elapsed.Seconds()
}

// RecordFailure marks a failed fetch and appends it to the feed's error ring.
func (t *FeedStatusTracker) RecordFailure(feedID, url string, at time.Time, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(feedID, url)
	st.status.LastAttempt = at
	st.status.LastError = err.Error()
	st.status.ConsecutiveFailures++
	st.status.LastDuration = elapsed.Seconds()

	entry := FeedError{At: at, Message: err.Error()}
	if len(st.ring) < t.history {
		st.ring = append(st.ring, entry)
		return
	}
	st.ring[st.next] = entry
	st.next = (st.next + 1) % t.history
}

// Snapshot returns a copy of every feed's status ordered by feed id, with
// recent errors oldest first.
func (t *FeedStatusTracker) Snapshot() []FeedStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]FeedStatus, 0, len(t.feeds))
	for _, st := range t.feeds {
		s := st.status
		s.RecentErrors = make([]FeedError, 0, len(st.ring))
		s.RecentErrors = append(s.RecentErrors, st.ring[st.next:]...)
		s.RecentErrors = append(s.RecentErrors, st.ring[:st.next]...)
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b FeedStatus) int {
		return strings.Compare(a.FeedID, b.FeedID)
	})
	return out
}
