package gtfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"golang.org/x/sync/errgroup"

	"subwaylive.org/internal/clock"
	"subwaylive.org/internal/logging"
)

// ErrEmptyFeed is returned when an upstream answers 200 with no body.
var ErrEmptyFeed = errors.New("gtfs-rt feed returned an empty body")

// ErrNoFeeds is returned by a fetch with no enabled feeds configured.
var ErrNoFeeds = errors.New("no realtime feeds configured")

// Trip status values.
const (
	StatusStoppedAt   = "STOPPED_AT"
	StatusInTransitTo = "IN_TRANSIT_TO"
)

// realtimeHTTPClient is a dedicated HTTP client for GTFS-RT feed fetching,
// configured with explicit timeouts and transport limits to avoid the pitfalls
// of http.DefaultClient (no timeout, shared global state).
// The transport is cloned from http.DefaultTransport to preserve important
// defaults (ProxyFromEnvironment, DialContext, HTTP/2, keepalives).
var realtimeHTTPClient = newRealtimeHTTPClient()

func newRealtimeHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		// Absolute safety net. Every fetch also carries its own, shorter
		// context timeout (5s realtime, 10s alerts by default).
		Timeout:   15 * time.Second,
		Transport: transport,
	}
}

func loadRealtimeData(ctx context.Context, source string, headers map[string]string) (*gtfs.Realtime, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", source, nil)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Add(key, value)
	}

	resp, err := realtimeHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute GTFS-RT request: %w", err)
	}

	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "gtfs_realtime_downloader")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtfs-rt fetch failed: %s returned %s", source, resp.Status)
	}

	const maxBodySize = 25 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > maxBodySize {
		return nil, fmt.Errorf("GTFS-RT response exceeds size limit of %d bytes", maxBodySize)
	}
	if len(body) == 0 {
		return nil, ErrEmptyFeed
	}

	rt, err := gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode GTFS-RT payload: %w", err)
	}
	return rt, nil
}

// FeedObserver receives one call per upstream fetch. *metrics.Metrics satisfies it.
type FeedObserver interface {
	ObserveFeedFetch(feedID string, err error, elapsed time.Duration)
}

// FetchDeps are the collaborators shared by the realtime and alerts fetchers.
type FetchDeps struct {
	Tracker  *FeedStatusTracker
	Observer FeedObserver
	Clock    clock.Clock
	Logger   *slog.Logger
}

func (d FetchDeps) withDefaults() FetchDeps {
	if d.Tracker == nil {
		d.Tracker = NewFeedStatusTracker(DefaultStatusHistory)
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// fetchFeed downloads and decodes one feed under its own timeout, recording
// the outcome. Failures are logged here; callers only decide what to drop.
func (d FetchDeps) fetchFeed(ctx context.Context, feedID, url string, headers map[string]string, timeout time.Duration) (*gtfs.Realtime, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	at := d.Clock.Now()
	began := time.Now()
	rt, err := loadRealtimeData(fetchCtx, url, headers)
	elapsed := time.Since(began)

	if d.Observer != nil {
		d.Observer.ObserveFeedFetch(feedID, err, elapsed)
	}
	if err != nil {
		d.Tracker.RecordFailure(feedID, url, at, elapsed, err)
		logging.LogError(d.Logger, "Error loading GTFS-RT feed", err,
			slog.String("feed_id", feedID),
			slog.String("url", url),
			slog.Duration("elapsed", elapsed))
		return nil, fmt.Errorf("feed %s: %w", feedID, err)
	}

	d.Tracker.RecordSuccess(feedID, url, at, elapsed, len(rt.Trips)+len(rt.Alerts))
	return rt, nil
}

// RealtimeTripStatus is the live position of one trip, taken from its first
// stop-time update.
type RealtimeTripStatus struct {
	TripID  string `json:"tripId"`
	RouteID string `json:"routeId"`
	StopID  string `json:"stopId"`
	Status  string `json:"status"`
	Time    int64  `json:"time"`
}

// ExtractTripStatuses converts every trip with at least one stop-time update
// into a status. A first update without an arrival means the train is
// stopped at that stop; otherwise it is in transit to it.
func ExtractTripStatuses(rt *gtfs.Realtime) []RealtimeTripStatus {
	if rt == nil {
		return nil
	}

	statuses := make([]RealtimeTripStatus, 0, len(rt.Trips))
	for _, trip := range rt.Trips {
		if len(trip.StopTimeUpdates) == 0 {
			continue
		}
		first := trip.StopTimeUpdates[0]

		status := RealtimeTripStatus{
			TripID:  NormalizeTripID(trip.ID.ID),
			RouteID: trip.ID.RouteID,
			Status:  StatusStoppedAt,
		}
		if first.StopID != nil {
			status.StopID = *first.StopID
		}

		// An arrival event carrying only a delay still counts as an arrival.
		if first.Arrival != nil {
			status.Status = StatusInTransitTo
		}
		switch {
		case first.Arrival != nil && first.Arrival.Time != nil:
			status.Time = first.Arrival.Time.Unix()
		case first.Departure != nil && first.Departure.Time != nil:
			status.Time = first.Departure.Time.Unix()
		}

		statuses = append(statuses, status)
	}
	return statuses
}

// RealtimeAggregator fetches every line-group feed concurrently and merges
// their trip statuses. Feeds cover disjoint lines, so results are appended
// without deduplication, in feed configuration order.
type RealtimeAggregator struct {
	config Config
	feeds  []RTFeedConfig
	deps   FetchDeps
}

func NewRealtimeAggregator(config Config, deps FetchDeps) *RealtimeAggregator {
	config = config.withDefaults()
	return &RealtimeAggregator{
		config: config,
		feeds:  config.enabledFeeds(),
		deps:   deps.withDefaults(),
	}
}

// Feeds returns the enabled feeds.
func (a *RealtimeAggregator) Feeds() []RTFeedConfig { return a.feeds }

// Fetch runs one worker per feed. A failing feed only removes its own
// contribution; an error is returned only when every feed failed.
func (a *RealtimeAggregator) Fetch(ctx context.Context) ([]RealtimeTripStatus, error) {
	if len(a.feeds) == 0 {
		return nil, ErrNoFeeds
	}

	perFeed := make([][]RealtimeTripStatus, len(a.feeds))
	errs := make([]error, len(a.feeds))

	var g errgroup.Group
	g.SetLimit(len(a.feeds))
	for i, feed := range a.feeds {
		g.Go(func() error {
			rt, err := a.deps.fetchFeed(ctx, feed.ID, feed.URL, a.config.headersFor(feed), a.config.RealtimeTimeout)
			if err != nil {
				errs[i] = err
				return nil
			}
			perFeed[i] = ExtractTripStatuses(rt)
			return nil
		})
	}
	_ = g.Wait()

	var merged []RealtimeTripStatus
	failed := 0
	for i := range a.feeds {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, perFeed[i]...)
	}

	if failed == len(a.feeds) {
		return nil, fmt.Errorf("all %d realtime feeds failed: %w", failed, errors.Join(errs...))
	}

	logging.LogOperation(a.deps.Logger, "realtime_feeds_merged",
		slog.Int("feeds", len(a.feeds)),
		slog.Int("failed", failed),
		slog.Int("trips", len(merged)))
	return merged, nil
}
