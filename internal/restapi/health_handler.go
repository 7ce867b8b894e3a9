package restapi

import (
	"encoding/json"
	"net/http"

	"subwaylive.org/internal/models"
)

// healthHandler reports readiness: 200 once the schedule index is loaded,
// 503 otherwise.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	setJSONResponseType(w)

	if api.Application == nil || api.GtfsManager == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(models.HealthResponse{
			Status: models.HealthStarting,
			Detail: "transit data manager not initialized",
		})
		return
	}

	if !api.GtfsManager.IsHealthy() {
		detail := api.GtfsManager.StaticStatus().ScheduleError
		if detail == "" {
			detail = "schedule not loaded"
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(models.HealthResponse{
			Status: models.HealthUnavailable,
			Detail: detail,
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(models.HealthResponse{Status: models.HealthOK})
}
