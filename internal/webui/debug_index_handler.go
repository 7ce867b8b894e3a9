package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"subwaylive.org/internal/appconf"
	"subwaylive.org/internal/gtfs"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugData struct {
	Title string
	Pre   string
}

var debugDumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
	MaxDepth:                6,
}

func writeDebugData(w http.ResponseWriter, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   debugDumper.Sdump(data),
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// debugIndexHandler dumps in-memory state. It never fetches upstream, so it
// shows exactly what the caches hold.
func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}
	if webUI.GtfsManager == nil {
		writeDebugData(w, "Not initialized", map[string]string{"error": "transit data manager not initialized"})
		return
	}

	manager := webUI.GtfsManager
	var data any
	var title string

	switch r.URL.Query().Get("dataType") {
	case "routes":
		title = "Schedule - Routes"
		data = scheduleOrError(manager, func(idx *gtfs.ScheduleIndex) any {
			routes := make(map[string]int, idx.RouteCount())
			for _, id := range idx.RouteIDs() {
				routes[id] = len(idx.TripsForRoute(id))
			}
			return routes
		})
	case "stops":
		title = "Schedule - Stops"
		data = scheduleOrError(manager, func(idx *gtfs.ScheduleIndex) any { return idx.Stops() })
	case "feeds":
		title = "Realtime - Feed Status"
		data = map[string]any{
			"enabled": manager.RealtimeFeeds(),
			"status":  manager.FeedStatuses(),
			"caches":  manager.CacheStatuses(),
		}
	case "realtime":
		title = "Realtime - Trips"
		data = manager.PeekRealtime()
	case "alerts":
		title = "Realtime - Alerts"
		data = manager.PeekAlerts()
	case "config":
		title = "Configuration"
		data = map[string]any{
			"app":    webUI.Config,
			"static": manager.StaticStatus(),
		}
	default:
		title = "Choose a data type"
		data = map[string]string{
			"error": "Please use one of the following: routes, stops, feeds, realtime, alerts, config.",
		}
	}

	writeDebugData(w, title, data)
}

func scheduleOrError(manager *gtfs.Manager, view func(*gtfs.ScheduleIndex) any) any {
	idx, err := manager.Schedule()
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return view(idx)
}
