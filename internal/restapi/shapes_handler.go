package restapi

import (
	"net/http"

	"subwaylive.org/internal/logging"
	"subwaylive.org/internal/models"
)

func (api *RestAPI) shapesHandler(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("routeId")

	geometry, err := api.GtfsManager.Geometry()
	if err != nil {
		logging.LogError(api.logger(), "shapes requested before geometry loaded", err)
		api.sendError(w, r, http.StatusInternalServerError, "route configuration not loaded")
		return
	}

	route, ok := geometry.Route(routeID)
	if !ok {
		api.sendNotFound(w, r, "route not found")
		return
	}

	polylines := geometry.EncodedPolylines(routeID)
	if polylines == nil {
		polylines = []string{}
	}

	api.sendJSON(w, r, http.StatusOK, models.RouteShapeResponse{
		RouteID:   routeID,
		ShortName: route.ShortName,
		LongName:  route.LongName,
		Color:     route.Color,
		TextColor: route.TextColor,
		Polylines: polylines,
	})
}
