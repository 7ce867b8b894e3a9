package restapi

import (
	"fmt"
	"net/http"
	"strconv"

	"subwaylive.org/internal/appconf"
	"subwaylive.org/internal/gtfs"
	"subwaylive.org/internal/logging"
	"subwaylive.org/internal/models"
)

func (api *RestAPI) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	before, after, fieldErrors := api.parseWindow(r)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	window, idx, err := api.GtfsManager.ScheduleWindow(before, after)
	if err != nil {
		logging.LogError(api.logger(), "schedule requested before index loaded", err)
		api.sendError(w, r, http.StatusInternalServerError, "schedule not loaded")
		return
	}

	api.sendJSON(w, r, http.StatusOK, models.NewScheduleResponse(window, idx.Stops()))
}

func (api *RestAPI) parseWindow(r *http.Request) (before, after int, fieldErrors map[string][]string) {
	before, after = gtfs.DefaultWindowBefore, gtfs.DefaultWindowAfter
	if api.Config.WindowBefore > 0 {
		before = api.Config.WindowBefore
	}
	if api.Config.WindowAfter > 0 {
		after = api.Config.WindowAfter
	}

	query := r.URL.Query()
	fieldErrors = map[string][]string{}
	before = parseSeconds(query.Get("before"), before, "before", fieldErrors)
	after = parseSeconds(query.Get("after"), after, "after", fieldErrors)
	return before, after, fieldErrors
}

func parseSeconds(raw string, fallback int, field string, fieldErrors map[string][]string) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fieldErrors[field] = append(fieldErrors[field], "must be an integer number of seconds")
		return fallback
	}
	if v < 0 || v > appconf.MaxWindowSeconds {
		fieldErrors[field] = append(fieldErrors[field],
			fmt.Sprintf("must be between 0 and %d", appconf.MaxWindowSeconds))
		return fallback
	}
	return v
}
