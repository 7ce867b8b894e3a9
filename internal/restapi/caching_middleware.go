package restapi

import (
	"net/http"
	"strings"

	"subwaylive.org/internal/appconf"
)

// Cache-Control values.
const (
	cacheNoStore       = "no-cache, no-store, must-revalidate"
	cacheDevelopment   = "no-store, no-cache, must-revalidate, max-age=0"
	cacheAPIProduction = "no-cache"
	cacheStaticAssets  = "public, max-age=3600"
)

// isStaticPath reports whether path is served from the UI directory rather
// than by an API, health, metrics or debug handler.
func isStaticPath(path string) bool {
	for _, prefix := range []string{"/api/", "/healthz", "/metrics", "/debug/"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// cacheControlFor picks the header for a successful response.
func cacheControlFor(env appconf.Environment, path string) string {
	if env != appconf.Production {
		return cacheDevelopment
	}
	switch {
	case strings.HasPrefix(path, "/api/"):
		return cacheAPIProduction
	case isStaticPath(path):
		return cacheStaticAssets
	default:
		return cacheNoStore
	}
}

// CacheControlMiddleware sets caching headers by environment. Outside
// production nothing is cached; in production API responses are
// revalidated and static UI files are cached for an hour. Error responses
// are never cached.
func CacheControlMiddleware(env appconf.Environment, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &cacheControlWriter{
			ResponseWriter: w,
			headerValue:    cacheControlFor(env, r.URL.Path),
			noCachePragma:  env != appconf.Production,
		}
		next.ServeHTTP(wrapped, r)
	})
}

type cacheControlWriter struct {
	http.ResponseWriter
	headerValue   string
	noCachePragma bool
	headerWritten bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.headerWritten {
		w.headerWritten = true
		header := w.ResponseWriter.Header()
		if code >= 200 && code < 300 {
			header.Set("Cache-Control", w.headerValue)
		} else {
			header.Set("Cache-Control", cacheNoStore)
		}
		if w.noCachePragma {
			header.Set("Pragma", "no-cache")
			header.Set("Expires", "0")
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cacheControlWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
