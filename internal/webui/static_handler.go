package webui

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"subwaylive.org/internal/appconf"
)

var allowedExtensions = map[string]bool{
	".html": true, ".css": true, ".js": true, ".json": true,
	".png": true, ".jpg": true, ".jpeg": true, ".svg": true,
	".ico": true, ".webmanifest": true,
}

// staticHandler serves whitelisted files from the UI directory. "/" maps to
// index.html.
func (webUI *WebUI) staticHandler(w http.ResponseWriter, r *http.Request) {
	requestPath := r.URL.Path
	if strings.HasSuffix(requestPath, "/") {
		requestPath += "index.html"
	}

	// Ensure no path traversal attempts
	if strings.Contains(requestPath, "..") || strings.Contains(requestPath, `\`) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+requestPath), "/")

	ext := strings.ToLower(filepath.Ext(cleaned))
	if !allowedExtensions[ext] {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	uiDir := appconf.DefaultUIDir
	if webUI.Application != nil && webUI.Config.UIDir != "" {
		uiDir = webUI.Config.UIDir
	}
	rootDir, err := filepath.Abs(uiDir)
	if err != nil {
		http.Error(w, "Internal configuration error", http.StatusInternalServerError)
		return
	}
	absPath := filepath.Join(rootDir, filepath.FromSlash(cleaned))

	// Verify the resolved path is still within the UI directory
	rel, err := filepath.Rel(rootDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		slog.Warn("potential path traversal attempt blocked", "path", absPath)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	stat, err := os.Stat(absPath)
	if err != nil || stat.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, absPath)
}
