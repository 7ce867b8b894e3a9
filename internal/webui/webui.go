// Package webui serves the static map UI and the non-production debug pages.
package webui

import (
	"net/http"

	"subwaylive.org/internal/app"
)

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/", webUI.debugIndexHandler)
	mux.HandleFunc("GET /", webUI.staticHandler)
}
