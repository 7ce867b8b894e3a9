package gtfs

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"subwaylive.org/internal/logging"
)

const maxArtifactSize = 200 * 1024 * 1024

// readArtifact returns the bytes of a static JSON artifact from a local path
// or an http(s) URL.
func readArtifact(source string, config Config) ([]byte, error) {
	if source == "" {
		return nil, fmt.Errorf("artifact source not configured")
	}

	if !isRemote(source) {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading local artifact: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequest("GET", source, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating artifact request: %w", err)
	}

	if config.StaticAuthHeaderKey != "" && config.StaticAuthHeaderValue != "" {
		req.Header.Set(config.StaticAuthHeaderKey, config.StaticAuthHeaderValue)
	}

	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading artifact: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "artifact_downloader")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download artifact: received HTTP status %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading artifact: %w", err)
	}
	if int64(len(b)) > maxArtifactSize {
		return nil, fmt.Errorf("artifact response exceeds size limit of %d bytes", maxArtifactSize)
	}
	return b, nil
}
