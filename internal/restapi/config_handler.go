package restapi

import (
	"log/slog"
	"net/http"

	"subwaylive.org/internal/logging"
)

// configHandler serves the route/shape geometry artifact verbatim.
func (api *RestAPI) configHandler(w http.ResponseWriter, r *http.Request) {
	geometry, err := api.GtfsManager.Geometry()
	if err != nil {
		logging.LogError(api.logger(), "config requested before geometry loaded", err)
		api.sendError(w, r, http.StatusInternalServerError, "route configuration not loaded")
		return
	}

	setJSONResponseType(w)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(geometry.Raw()); err != nil {
		api.logger().Debug("failed to write config response", slog.String("error", err.Error()))
	}
}
