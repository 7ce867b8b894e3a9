package restapi

import (
	"fmt"
	"net/http"
	"strconv"

	"subwaylive.org/internal/logging"
	"subwaylive.org/internal/models"
	"subwaylive.org/internal/utils"
)

const (
	defaultNearbyRadius = 500.0
	maxNearbyRadius     = 5000.0
	defaultNearbyLimit  = 20
	maxNearbyLimit      = 100
)

func (api *RestAPI) nearbyStopsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fieldErrors := map[string][]string{}

	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	if latErr != nil {
		fieldErrors["lat"] = append(fieldErrors["lat"], "required decimal degrees")
	}
	lon, lonErr := strconv.ParseFloat(query.Get("lon"), 64)
	if lonErr != nil {
		fieldErrors["lon"] = append(fieldErrors["lon"], "required decimal degrees")
	}
	if latErr == nil && lonErr == nil && !utils.ValidCoordinate(lat, lon) {
		fieldErrors["lat"] = append(fieldErrors["lat"], "coordinate out of range")
	}

	radius := defaultNearbyRadius
	if raw := query.Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > maxNearbyRadius {
			fieldErrors["radius"] = append(fieldErrors["radius"],
				fmt.Sprintf("must be greater than 0 and at most %g meters", maxNearbyRadius))
		} else {
			radius = v
		}
	}

	limit := defaultNearbyLimit
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxNearbyLimit {
			fieldErrors["limit"] = append(fieldErrors["limit"],
				fmt.Sprintf("must be between 1 and %d", maxNearbyLimit))
		} else {
			limit = v
		}
	}

	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	index, err := api.GtfsManager.StopIndex()
	if err != nil {
		logging.LogError(api.logger(), "nearby stops requested before index loaded", err)
		api.sendError(w, r, http.StatusInternalServerError, "schedule not loaded")
		return
	}

	found := index.Nearby(lat, lon, radius, limit)
	api.sendJSON(w, r, http.StatusOK, models.NewNearbyStopsResponse(lat, lon, radius, found))
}
