package gtfs

import (
	"context"
	"errors"

	"github.com/OneBusAway/go-gtfs"
)

// FallbackAlertHeader is used when an alert carries no header text.
const FallbackAlertHeader = "Service Alert"

const alertsFeedID = "alerts"

// Alert is a service alert reduced to what riders see.
type Alert struct {
	ID          string   `json:"id"`
	Header      string   `json:"header"`
	Description string   `json:"description"`
	Routes      []string `json:"routes"`
}

// ExtractAlerts converts decoded alerts. Header and description use the first
// translation; affected routes are deduplicated in first-seen order.
func ExtractAlerts(rt *gtfs.Realtime) []Alert {
	if rt == nil {
		return nil
	}

	alerts := make([]Alert, 0, len(rt.Alerts))
	for _, a := range rt.Alerts {
		alert := Alert{
			ID:     a.ID,
			Header: FallbackAlertHeader,
			Routes: []string{},
		}
		if len(a.Header) > 0 && a.Header[0].Text != "" {
			alert.Header = a.Header[0].Text
		}
		if len(a.Description) > 0 {
			alert.Description = a.Description[0].Text
		}

		seen := make(map[string]struct{})
		for _, entity := range a.InformedEntities {
			if entity.RouteID == nil || *entity.RouteID == "" {
				continue
			}
			if _, dup := seen[*entity.RouteID]; dup {
				continue
			}
			seen[*entity.RouteID] = struct{}{}
			alert.Routes = append(alert.Routes, *entity.RouteID)
		}

		alerts = append(alerts, alert)
	}
	return alerts
}

// AlertsFetcher reads the dedicated service alerts feed. Alert entities that
// appear inside trip update feeds are ignored.
type AlertsFetcher struct {
	config Config
	deps   FetchDeps
}

func NewAlertsFetcher(config Config, deps FetchDeps) *AlertsFetcher {
	return &AlertsFetcher{
		config: config.withDefaults(),
		deps:   deps.withDefaults(),
	}
}

// Fetch downloads and converts the alerts feed.
func (f *AlertsFetcher) Fetch(ctx context.Context) ([]Alert, error) {
	if f.config.AlertsURL == "" {
		return nil, errors.New("alerts feed not configured")
	}
	headers := f.config.headersFor(RTFeedConfig{})
	rt, err := f.deps.fetchFeed(ctx, alertsFeedID, f.config.AlertsURL, headers, f.config.AlertsTimeout)
	if err != nil {
		return nil, err
	}
	return ExtractAlerts(rt), nil
}
