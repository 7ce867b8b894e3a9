package restapi

import (
	"net/http"

	"subwaylive.org/internal/buildinfo"
	"subwaylive.org/internal/models"
)

// statusHandler reports static load state, cache freshness and per-feed
// health without triggering any upstream fetch.
func (api *RestAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	manager := api.GtfsManager

	feeds := manager.RealtimeFeeds()
	enabled := make([]string, 0, len(feeds))
	for _, feed := range feeds {
		enabled = append(enabled, feed.ID)
	}

	response := models.StatusResponse{
		Now: manager.Now(),
		Env: api.Config.Env.String(),
		Build: models.BuildInfo{
			Version:   buildinfo.Version,
			Commit:    buildinfo.ShortCommit(),
			BuildTime: buildinfo.BuildTime,
		},
		Static:  manager.StaticStatus(),
		Caches:  manager.CacheStatuses(),
		Feeds:   manager.FeedStatuses(),
		Enabled: enabled,
	}
	api.sendJSON(w, r, http.StatusOK, response)
}
