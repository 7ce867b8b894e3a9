package restapi

import (
	"net/http"

	"subwaylive.org/internal/gtfs"
	"subwaylive.org/internal/models"
)

// realtimeHandler serves the realtime cache, refreshing it first when stale.
// A zero "updated" means no refresh has ever succeeded.
func (api *RestAPI) realtimeHandler(w http.ResponseWriter, r *http.Request) {
	entry := api.GtfsManager.Realtime(r.Context())
	api.sendJSON(w, r, http.StatusOK, models.NewRealtimeResponse(entry.UpdatedUnix(), entry.Payload))
}

func (api *RestAPI) alertsHandler(w http.ResponseWriter, r *http.Request) {
	entry := api.GtfsManager.Alerts(r.Context())
	alerts := entry.Payload
	if alerts == nil {
		alerts = []gtfs.Alert{}
	}
	api.sendJSON(w, r, http.StatusOK, alerts)
}
